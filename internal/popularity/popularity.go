// Package popularity keeps an exponentially decaying selection count per
// region, shared by every session of the process.
package popularity

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

const numShards = 16

type Entry struct {
	Region string  `json:"region"`
	Score  float64 `json:"score"`
}

type Tracker struct {
	HalfLife time.Duration

	now func() time.Time

	shards [numShards]shard
}

type shard struct {
	mu sync.RWMutex
	m  map[string]*counter
}

type counter struct {
	score float64
	last  time.Time
}

func New(halfLife time.Duration) *Tracker {
	if halfLife <= 0 {
		halfLife = 10 * time.Minute
	}
	t := &Tracker{HalfLife: halfLife, now: time.Now}
	for i := range t.shards {
		t.shards[i].m = make(map[string]*counter)
	}
	return t
}

func (t *Tracker) Inc(region string) {
	if region == "" {
		return
	}
	s := t.pick(region)
	n := t.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.m[region]
	if c == nil {
		s.m[region] = &counter{score: 1, last: n}
		return
	}
	c.score = decay(c.score, n.Sub(c.last).Seconds(), t.HalfLife.Seconds()) + 1
	c.last = n
}

func (t *Tracker) Score(region string) float64 {
	if region == "" {
		return 0
	}
	s := t.pick(region)

	s.mu.RLock()
	c := s.m[region]
	if c == nil {
		s.mu.RUnlock()
		return 0
	}
	score, last := c.score, c.last
	s.mu.RUnlock()

	return decay(score, t.now().Sub(last).Seconds(), t.HalfLife.Seconds())
}

// Reset forgets the given regions, or every region when none are named.
func (t *Tracker) Reset(regions ...string) {
	if len(regions) == 0 {
		for i := range t.shards {
			t.shards[i].mu.Lock()
			t.shards[i].m = make(map[string]*counter)
			t.shards[i].mu.Unlock()
		}
		return
	}
	for _, r := range regions {
		s := t.pick(r)
		s.mu.Lock()
		delete(s.m, r)
		s.mu.Unlock()
	}
}

// Top returns up to n regions by current score, highest first. Ties are
// broken by name so the order is stable.
func (t *Tracker) Top(n int) []Entry {
	if n <= 0 {
		return nil
	}
	now := t.now()
	hl := t.HalfLife.Seconds()
	var all []Entry
	for i := range t.shards {
		s := &t.shards[i]
		s.mu.RLock()
		for name, c := range s.m {
			all = append(all, Entry{Region: name, Score: decay(c.score, now.Sub(c.last).Seconds(), hl)})
		}
		s.mu.RUnlock()
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Score != all[j].Score {
			return all[i].Score > all[j].Score
		}
		return all[i].Region < all[j].Region
	})
	if len(all) > n {
		all = all[:n]
	}
	return all
}

func (t *Tracker) Size() int {
	total := 0
	for i := range t.shards {
		t.shards[i].mu.RLock()
		total += len(t.shards[i].m)
		t.shards[i].mu.RUnlock()
	}
	return total
}

func decay(score, dt, halfLife float64) float64 {
	if score == 0 || dt <= 0 || halfLife <= 0 {
		return score
	}
	return score * math.Exp(-math.Ln2/halfLife*dt)
}

func (t *Tracker) pick(region string) *shard {
	h := xxhash.Sum64String(region)
	return &t.shards[h&(numShards-1)]
}
