package balancer

import (
	"fmt"

	"github.com/cuemby/ember/pkg/types"
)

// Record is one historical assignment
type Record struct {
	Environment types.Environment   `json:"environment" yaml:"environment"`
	Origin      types.ClientAddress `json:"origin" yaml:"origin"`
}

// History is a bounded ledger of recent assignments, oldest evicted first.
// Every update returns a new History; existing values never change.
type History struct {
	capacity int
	records  []Record
}

// NewHistory creates an empty ledger holding at most capacity records
func NewHistory(capacity int) (History, error) {
	if capacity <= 0 {
		return History{}, fmt.Errorf("%w: history capacity must be positive, got %d", ErrInvalidConfig, capacity)
	}
	return History{capacity: capacity}, nil
}

// Record appends r, evicting the oldest entry when the ledger is full
func (h History) Record(r Record) History {
	if h.capacity <= 0 {
		return h
	}

	drop := len(h.records) + 1 - h.capacity
	if drop < 0 {
		drop = 0
	}

	next := make([]Record, 0, len(h.records)+1-drop)
	next = append(next, h.records[drop:]...)
	next = append(next, r)

	return History{capacity: h.capacity, records: next}
}

// MostRecentFor returns the environment of the newest record from origin
func (h History) MostRecentFor(origin types.ClientAddress) (types.Environment, bool) {
	for i := len(h.records) - 1; i >= 0; i-- {
		if h.records[i].Origin == origin {
			return h.records[i].Environment, true
		}
	}
	return types.Environment{}, false
}

// Records returns a copy of the ledger, oldest first
func (h History) Records() []Record {
	out := make([]Record, len(h.records))
	copy(out, h.records)
	return out
}

// Len returns the number of retained records
func (h History) Len() int {
	return len(h.records)
}

// Capacity returns the maximum number of retained records
func (h History) Capacity() int {
	return h.capacity
}
