package reminder

import (
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	apperrors "github.com/pgorski/dosetrack/internal/errors"
)

// FireFunc handles a fired trigger.
type FireFunc func(payload Payload)

// WorkQueue is the in-process task-scheduling collaborator. Each
// trigger waits out its initial delay on a one-shot timer, fires, and
// then continues on a recurring cron entry when an interval was given.
// Registration under an already-known unique key replaces the earlier
// trigger, which is what makes repeated scheduling calls idempotent.
type WorkQueue struct {
	logger *zap.Logger
	fire   FireFunc
	cron   *cron.Cron

	mu      sync.Mutex
	entries map[string]*workEntry // uniqueKey -> entry
	byTag   map[string]map[string]struct{}
	running bool
}

type workEntry struct {
	tag     string
	key     string
	payload Payload
	every   time.Duration
	timer   *time.Timer
	cronID  cron.EntryID
	hasCron bool
}

func NewWorkQueue(fire FireFunc, logger *zap.Logger) *WorkQueue {
	return &WorkQueue{
		logger:  logger,
		fire:    fire,
		cron:    cron.New(),
		entries: make(map[string]*workEntry),
		byTag:   make(map[string]map[string]struct{}),
	}
}

// Start begins executing triggers. Scheduling before Start is
// rejected.
func (q *WorkQueue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return
	}
	q.running = true
	q.cron.Start()
}

// Stop cancels all triggers and stops the queue.
func (q *WorkQueue) Stop() {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	q.running = false
	for key := range q.entries {
		q.removeLocked(key)
	}
	q.mu.Unlock()

	ctx := q.cron.Stop()
	<-ctx.Done()
	q.logger.Info("Work queue stopped")
}

// ScheduleAt registers a trigger under uniqueKey, replacing any
// existing trigger with the same key. delay is the initial wait;
// every > 0 makes the trigger recur at that interval after the first
// fire.
func (q *WorkQueue) ScheduleAt(tag, uniqueKey string, delay, every time.Duration, payload Payload) error {
	if delay < 0 {
		delay = 0
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.running {
		return apperrors.ErrScheduleStopped
	}

	q.removeLocked(uniqueKey)

	entry := &workEntry{
		tag:     tag,
		key:     uniqueKey,
		payload: payload,
		every:   every,
	}
	entry.timer = time.AfterFunc(delay, func() {
		q.fired(entry)
	})

	q.entries[uniqueKey] = entry
	if q.byTag[tag] == nil {
		q.byTag[tag] = make(map[string]struct{})
	}
	q.byTag[tag][uniqueKey] = struct{}{}

	return nil
}

// CancelByTag removes every trigger registered under tag. Unknown
// tags are a no-op.
func (q *WorkQueue) CancelByTag(tag string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for key := range q.byTag[tag] {
		q.removeLocked(key)
	}
}

// ActiveKeys returns the currently registered unique keys for a tag,
// exposed for tests and diagnostics.
func (q *WorkQueue) ActiveKeys(tag string) []string {
	q.mu.Lock()
	defer q.mu.Unlock()

	keys := make([]string, 0, len(q.byTag[tag]))
	for key := range q.byTag[tag] {
		keys = append(keys, key)
	}
	return keys
}

// fired runs after the initial delay: deliver the payload, then hand
// the entry over to a recurring cron schedule when one was requested.
func (q *WorkQueue) fired(entry *workEntry) {
	q.fire(entry.payload)

	q.mu.Lock()
	defer q.mu.Unlock()

	// The entry may have been replaced or cancelled while firing; only
	// the live registration may attach a recurrence.
	if q.entries[entry.key] != entry || !q.running {
		return
	}

	if entry.every <= 0 {
		q.removeLocked(entry.key)
		return
	}

	entry.cronID = q.cron.Schedule(cron.Every(entry.every), cron.FuncJob(func() {
		q.fire(entry.payload)
	}))
	entry.hasCron = true
}

// removeLocked stops an entry's timer and cron job. Caller holds the
// mutex.
func (q *WorkQueue) removeLocked(uniqueKey string) {
	entry, ok := q.entries[uniqueKey]
	if !ok {
		return
	}

	if entry.timer != nil {
		entry.timer.Stop()
	}
	if entry.hasCron {
		q.cron.Remove(entry.cronID)
	}

	delete(q.entries, uniqueKey)
	if keys, ok := q.byTag[entry.tag]; ok {
		delete(keys, uniqueKey)
		if len(keys) == 0 {
			delete(q.byTag, entry.tag)
		}
	}
}
