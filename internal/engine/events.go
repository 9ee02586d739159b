package engine

import (
	"sort"
	"sync"
	"time"

	"github.com/pyhu26/post-woman/internal/model"
)

// Snapshot is a read-only copy of run state
type Snapshot struct {
	RunID        string                  `json:"runId"`
	Mode         Mode                    `json:"mode"`
	Name         string                  `json:"name"`
	State        State                   `json:"state"`
	Results      []model.ExecutionResult `json:"results"`
	CurrentIndex int                     `json:"currentIndex"` // -1 when nothing is running
	CurrentID    string                  `json:"currentId,omitempty"`
	Skipped      []string                `json:"skipped,omitempty"`
	StartedAt    time.Time               `json:"startedAt"`
	FinishedAt   time.Time               `json:"finishedAt"`
}

// Result returns the result for a step or node id
func (s Snapshot) Result(id string) (model.ExecutionResult, bool) {
	for _, r := range s.Results {
		if r.ID == id {
			return r, true
		}
	}
	return model.ExecutionResult{}, false
}

// Failed reports whether any result ended in error
func (s Snapshot) Failed() bool {
	for _, r := range s.Results {
		if r.Status == model.StatusError {
			return true
		}
	}
	return false
}

// Counts returns the number of results per status
func (s Snapshot) Counts() map[model.ResultStatus]int {
	counts := make(map[model.ResultStatus]int, 4)
	for _, r := range s.Results {
		counts[r.Status]++
	}
	return counts
}

// EventType names a run lifecycle event
type EventType string

const (
	EventRunStarted     EventType = "run_started"
	EventNodeStarted    EventType = "node_started"
	EventNodeFinished   EventType = "node_finished"
	EventRunFinished    EventType = "run_finished"
	EventResultsCleared EventType = "results_cleared"
)

// Event is delivered to subscribers after every run state change
type Event struct {
	Type     EventType
	NodeID   string
	Snapshot Snapshot
}

// Listener receives run events
type Listener func(Event)

type listeners struct {
	mu   sync.Mutex
	next int
	set  map[int]Listener
}

func (l *listeners) add(fn Listener) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.set == nil {
		l.set = make(map[int]Listener)
	}
	id := l.next
	l.next++
	l.set[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.set, id)
			l.mu.Unlock()
		})
	}
}

// emit calls listeners in registration order without holding the lock
func (l *listeners) emit(ev Event) {
	l.mu.Lock()
	ids := make([]int, 0, len(l.set))
	for id := range l.set {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]Listener, 0, len(ids))
	for _, id := range ids {
		fns = append(fns, l.set[id])
	}
	l.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}
