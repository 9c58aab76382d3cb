package kafkaconsumer

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// idDedupe remembers recently applied event ids.
type idDedupe struct {
	mu  sync.Mutex
	lru *lru.Cache[string, struct{}]
}

func newIDDedupe(size int) *idDedupe {
	if size <= 0 {
		size = 4096
	}
	c, _ := lru.New[string, struct{}](size)
	return &idDedupe{lru: c}
}

func (d *idDedupe) seen(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lru.Contains(id)
}

// mark is called only after the event was applied, so a failed event is
// retried on redelivery.
func (d *idDedupe) mark(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lru.Add(id, struct{}{})
}
