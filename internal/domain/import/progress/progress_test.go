package progress

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"sync"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []Event
	conns  []string
}

func (r *recordingNotifier) Notify(_ context.Context, connectionID string, event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	r.conns = append(r.conns, connectionID)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPercentage(t *testing.T) {
	assert.Equal(t, 33, Percentage(0, 3))
	assert.Equal(t, 67, Percentage(1, 3))
	assert.Equal(t, 100, Percentage(2, 3))
	assert.Equal(t, 100, Percentage(10, 3))
	assert.Equal(t, 100, Percentage(0, 0))
	assert.Equal(t, 3, Percentage(0, 40)) // 2.5 rounds up
}

func TestTracker_Monotonic(t *testing.T) {
	rec := &recordingNotifier{}
	tracker := NewTracker(rec, "conn-1", "bill.csv", 10)
	ctx := context.Background()

	tracker.Row(ctx, 4)
	tracker.Row(ctx, 2) // out of order must not decrease
	tracker.Row(ctx, 9)

	require.Len(t, rec.events, 3)
	assert.Equal(t, []int{50, 50, 100}, []int{rec.events[0].Percentage, rec.events[1].Percentage, rec.events[2].Percentage})
	for i, ev := range rec.events {
		assert.Equal(t, "bill.csv", ev.FileName)
		assert.Equal(t, StatusProcessing, ev.Status)
		assert.Equal(t, "conn-1", rec.conns[i])
	}
	assert.Equal(t, 100, tracker.Last())
}

func TestTracker_NilNotifier(t *testing.T) {
	tracker := NewTracker(nil, "c", "f.csv", 2)
	tracker.Row(context.Background(), 0)
	assert.Equal(t, 50, tracker.Last())
}

func TestMulti(t *testing.T) {
	first, second := &recordingNotifier{}, &recordingNotifier{}
	n := Multi(first, nil, second)

	n.Notify(context.Background(), "c", Event{FileName: "a.csv", Percentage: 20, Status: StatusProcessing})

	require.Len(t, first.events, 1)
	require.Len(t, second.events, 1)
	assert.Equal(t, 20, second.events[0].Percentage)
}

func TestHub_DeliversPerConnection(t *testing.T) {
	hub := NewHub(4, discardLogger())
	defer hub.Close()

	a, cancelA := hub.Subscribe("a")
	defer cancelA()
	b, cancelB := hub.Subscribe("b")
	defer cancelB()

	hub.Notify(context.Background(), "a", Event{FileName: "x.csv", Percentage: 10, Status: StatusProcessing})

	select {
	case ev := <-a:
		assert.Equal(t, 10, ev.Percentage)
	default:
		t.Fatal("expected event on subscription a")
	}
	select {
	case ev := <-b:
		t.Fatalf("unexpected event on subscription b: %+v", ev)
	default:
	}
}

func TestHub_DropsWhenFull(t *testing.T) {
	hub := NewHub(1, discardLogger())
	ch, cancel := hub.Subscribe("a")

	hub.Notify(context.Background(), "a", Event{Percentage: 1})
	hub.Notify(context.Background(), "a", Event{Percentage: 2}) // dropped, must not block

	ev := <-ch
	assert.Equal(t, 1, ev.Percentage)

	cancel()
	cancel()
	_, open := <-ch
	assert.False(t, open, "channel should be closed after cancel")
}

func TestHub_Close(t *testing.T) {
	hub := NewHub(1, discardLogger())
	ch, cancel := hub.Subscribe("a")
	hub.Close()
	cancel()

	_, open := <-ch
	assert.False(t, open)

	late, _ := hub.Subscribe("a")
	_, open = <-late
	assert.False(t, open, "subscriptions after Close are closed")

	hub.Notify(context.Background(), "a", Event{Percentage: 5})
}

func TestPgNotifier_Notify(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	payload := `{"connectionId":"conn-9","fileName":"extrato.csv","percentage":42,"status":"PROCESSING"}`
	mock.ExpectExec(regexp.QuoteMeta(notifyQuery)).
		WithArgs("import_progress", payload).
		WillReturnResult(pgxmock.NewResult("SELECT", 1))

	notifier := NewPgNotifier(mock, "import_progress", discardLogger())
	notifier.Notify(context.Background(), "conn-9", Event{FileName: "extrato.csv", Percentage: 42, Status: StatusProcessing})

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgNotifier_SwallowsErrors(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(regexp.QuoteMeta(notifyQuery)).
		WithArgs("import_progress", pgxmock.AnyArg()).
		WillReturnError(errors.New("connection reset"))

	notifier := NewPgNotifier(mock, "import_progress", discardLogger())
	assert.NotPanics(t, func() {
		notifier.Notify(context.Background(), "conn-9", Event{FileName: "f.csv", Percentage: 1, Status: StatusProcessing})
	})
	require.NoError(t, mock.ExpectationsWereMet())
}
