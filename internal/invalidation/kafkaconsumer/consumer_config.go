package kafkaconsumer

import (
	"os"
	"strings"
	"time"

	"github.com/mohammed-shakir/suburb-boundary-cache/internal/core/config"
	mylog "github.com/mohammed-shakir/suburb-boundary-cache/internal/logger"
)

type Config struct {
	Brokers             []string
	Topic               string
	GroupID             string
	SessionTimeout      time.Duration
	Heartbeat           time.Duration
	RebalanceTimeout    time.Duration
	InitialOffsetOldest bool
	DedupeSize          int
}

// instanceID names this process inside the group id.
var instanceID = func() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "mapserver"
	}
	return host + "-" + mylog.NewID()[:8]
}

// FromConfig treats KAFKA_GROUP_ID as a prefix. Each process joins its own
// group so every instance receives every event; a shared group would hand
// each partition to a single member.
func FromConfig(c config.InvalidationCfg) Config {
	topic := c.Topic
	if topic == "" {
		topic = "boundary-invalidation"
	}
	prefix := c.GroupID
	if prefix == "" {
		prefix = "boundary-invalidator"
	}
	group := prefix + "-" + instanceID()
	return Config{
		Brokers:          splitCSV(c.Brokers),
		Topic:            topic,
		GroupID:          group,
		SessionTimeout:   30 * time.Second,
		Heartbeat:        3 * time.Second,
		RebalanceTimeout: 30 * time.Second,
		// a fresh group starts from newest; older evictions are already
		// reflected in the shared cache
		InitialOffsetOldest: false,
		DedupeSize:          4096,
	}
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	var out []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
