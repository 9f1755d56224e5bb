// Package progress defines the per-row import progress contract and the
// notifiers that deliver it to a caller-supplied connection.
package progress

import (
	"context"
	"math"
	"sync"
)

// StatusProcessing is the only status emitted while a file is extracted.
const StatusProcessing = "PROCESSING"

// Event is pushed for every processed statement row.
type Event struct {
	FileName   string `json:"fileName"`
	Percentage int    `json:"percentage"`
	Status     string `json:"status"`
}

// Notifier delivers events to the subscribers of a connection id.
// Delivery is fire-and-forget: implementations never block the pipeline on a
// slow consumer and never report failures to the caller.
type Notifier interface {
	Notify(ctx context.Context, connectionID string, event Event)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, connectionID string, event Event)

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, connectionID string, event Event) {
	f(ctx, connectionID, event)
}

// Nop discards every event.
var Nop Notifier = NotifierFunc(func(context.Context, string, Event) {})

// Multi fans every event out to each non-nil notifier in order.
func Multi(notifiers ...Notifier) Notifier {
	var targets []Notifier
	for _, n := range notifiers {
		if n != nil {
			targets = append(targets, n)
		}
	}
	return NotifierFunc(func(ctx context.Context, connectionID string, event Event) {
		for _, n := range targets {
			n.Notify(ctx, connectionID, event)
		}
	})
}

// Tracker reports progress for one file. Percentages never decrease.
type Tracker struct {
	notifier     Notifier
	connectionID string
	fileName     string
	totalRows    int

	mu   sync.Mutex
	last int
}

// NewTracker creates a tracker for a file with totalRows grid rows.
func NewTracker(notifier Notifier, connectionID, fileName string, totalRows int) *Tracker {
	if notifier == nil {
		notifier = Nop
	}
	return &Tracker{
		notifier:     notifier,
		connectionID: connectionID,
		fileName:     fileName,
		totalRows:    totalRows,
	}
}

// Percentage returns round((rowIndex+1)*100/totalRows), clamped to [0,100].
func Percentage(rowIndex, totalRows int) int {
	if totalRows <= 0 {
		return 100
	}
	p := int(math.Round(float64(rowIndex+1) * 100 / float64(totalRows)))
	return min(max(p, 0), 100)
}

// Row publishes the progress reached at rowIndex.
func (t *Tracker) Row(ctx context.Context, rowIndex int) {
	p := Percentage(rowIndex, t.totalRows)

	t.mu.Lock()
	if p < t.last {
		p = t.last
	}
	t.last = p
	t.mu.Unlock()

	t.notifier.Notify(ctx, t.connectionID, Event{
		FileName:   t.fileName,
		Percentage: p,
		Status:     StatusProcessing,
	})
}

// Last returns the highest percentage published so far.
func (t *Tracker) Last() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}
