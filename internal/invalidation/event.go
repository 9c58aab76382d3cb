package invalidation

import (
	"fmt"
	"strings"
	"time"
)

const (
	OpEvict = "evict"
	OpClear = "clear"
)

// Event asks every instance to drop cached boundaries: the named regions for
// evict, the whole container for clear.
type Event struct {
	Version int       `json:"version"`
	ID      string    `json:"id"`
	Op      string    `json:"op"`
	Regions []string  `json:"regions,omitempty"`
	TS      time.Time `json:"ts"`
	Source  string    `json:"source,omitempty"`
}

func (e Event) Validate() error {
	if e.Version != 1 {
		return fmt.Errorf("version must be 1")
	}
	if strings.TrimSpace(e.ID) == "" {
		return fmt.Errorf("id is required")
	}
	if e.TS.IsZero() {
		return fmt.Errorf("ts is required")
	}
	switch e.Op {
	case OpEvict:
		if len(e.Regions) == 0 {
			return fmt.Errorf("evict needs at least one region")
		}
		for i, r := range e.Regions {
			if strings.TrimSpace(r) == "" {
				return fmt.Errorf("regions[%d] is blank", i)
			}
		}
	case OpClear:
		if len(e.Regions) > 0 {
			return fmt.Errorf("clear takes no regions")
		}
	default:
		return fmt.Errorf("op must be evict|clear")
	}
	return nil
}
