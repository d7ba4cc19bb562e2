package reminder

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fireRecorder struct {
	mu    sync.Mutex
	fired []Payload
	ch    chan Payload
}

func newFireRecorder() *fireRecorder {
	return &fireRecorder{ch: make(chan Payload, 16)}
}

func (r *fireRecorder) fire(p Payload) {
	r.mu.Lock()
	r.fired = append(r.fired, p)
	r.mu.Unlock()
	r.ch <- p
}

func (r *fireRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.fired)
}

func newTestQueue(t *testing.T) (*WorkQueue, *fireRecorder) {
	rec := newFireRecorder()
	logger, _ := zap.NewDevelopment()
	q := NewWorkQueue(rec.fire, logger)
	q.Start()
	t.Cleanup(q.Stop)
	return q, rec
}

func TestWorkQueueFiresAfterDelay(t *testing.T) {
	q, rec := newTestQueue(t)

	err := q.ScheduleAt("tag-a", "tag-a_08_00", 10*time.Millisecond, 0, Payload{MedicationID: "med-1"})
	require.NoError(t, err)

	select {
	case p := <-rec.ch:
		assert.Equal(t, "med-1", p.MedicationID)
	case <-time.After(time.Second):
		t.Fatal("trigger did not fire")
	}

	// One-shot entries unregister after firing
	assert.Eventually(t, func() bool {
		return len(q.ActiveKeys("tag-a")) == 0
	}, time.Second, 5*time.Millisecond)
}

func TestWorkQueueReplacesOnSameKey(t *testing.T) {
	q, rec := newTestQueue(t)

	require.NoError(t, q.ScheduleAt("tag-a", "tag-a_08_00", time.Hour, 0, Payload{MedicationID: "old"}))
	require.NoError(t, q.ScheduleAt("tag-a", "tag-a_08_00", 10*time.Millisecond, 0, Payload{MedicationID: "new"}))

	assert.Len(t, q.ActiveKeys("tag-a"), 1)

	select {
	case p := <-rec.ch:
		assert.Equal(t, "new", p.MedicationID)
	case <-time.After(time.Second):
		t.Fatal("replacement trigger did not fire")
	}

	// The replaced trigger never fires
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 1, rec.count())
}

func TestWorkQueueCancelByTag(t *testing.T) {
	q, rec := newTestQueue(t)

	require.NoError(t, q.ScheduleAt("tag-a", "k1", 20*time.Millisecond, 0, Payload{MedicationID: "m"}))
	require.NoError(t, q.ScheduleAt("tag-a", "k2", 20*time.Millisecond, 0, Payload{MedicationID: "m"}))
	require.NoError(t, q.ScheduleAt("tag-b", "k3", 20*time.Millisecond, 0, Payload{MedicationID: "other"}))

	q.CancelByTag("tag-a")
	assert.Empty(t, q.ActiveKeys("tag-a"))

	// Cancelling an unknown tag is a no-op
	q.CancelByTag("tag-missing")

	// tag-b still fires
	select {
	case p := <-rec.ch:
		assert.Equal(t, "other", p.MedicationID)
	case <-time.After(time.Second):
		t.Fatal("surviving trigger did not fire")
	}

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 1, rec.count())
}

func TestWorkQueueRejectsWhenStopped(t *testing.T) {
	rec := newFireRecorder()
	logger, _ := zap.NewDevelopment()
	q := NewWorkQueue(rec.fire, logger)

	err := q.ScheduleAt("tag", "key", time.Millisecond, 0, Payload{})
	assert.Error(t, err)
}

func TestWorkQueueRecurringEntryStaysRegistered(t *testing.T) {
	q, rec := newTestQueue(t)

	require.NoError(t, q.ScheduleAt("tag-a", "tag-a_08_00", 10*time.Millisecond, time.Hour, Payload{MedicationID: "m"}))

	select {
	case <-rec.ch:
	case <-time.After(time.Second):
		t.Fatal("initial fire missing")
	}

	// Recurring entries remain active after the first fire
	assert.Eventually(t, func() bool {
		return len(q.ActiveKeys("tag-a")) == 1
	}, time.Second, 5*time.Millisecond)
}
