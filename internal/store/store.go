package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	_ "github.com/glebarez/go-sqlite" // Pure Go SQLite driver

	apperrors "github.com/pgorski/dosetrack/internal/errors"
	"github.com/pgorski/dosetrack/internal/model"
)

// Store persists medications and fans the current full list out to
// subscribers after every change, mirroring the live snapshot
// subscription the mobile app had against its document store.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger

	subMu       sync.Mutex
	subscribers map[int]chan []model.Medication
	nextSubID   int
}

// Open opens the SQLite database at path and migrates the schema.
func Open(path string, log *zap.Logger) (*Store, error) {
	sqliteDB, err := sql.Open("sqlite", path+"?_journal=WAL&_synchronous=NORMAL&_busy_timeout=5000&_cache_size=-64000")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	sqliteDB.SetMaxOpenConns(10)
	sqliteDB.SetMaxIdleConns(5)
	sqliteDB.SetConnMaxLifetime(time.Hour)

	db, err := gorm.Open(sqlite.Dialector{Conn: sqliteDB}, &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
		PrepareStmt:            true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	return NewWithDB(db, log)
}

// NewWithDB wraps an existing gorm connection. Tests use this with an
// in-memory database.
func NewWithDB(db *gorm.DB, log *zap.Logger) (*Store, error) {
	if err := db.AutoMigrate(&MedicationRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate medications: %w", err)
	}

	return &Store{
		db:          db,
		logger:      log,
		subscribers: make(map[int]chan []model.Medication),
	}, nil
}

// Create stores a new medication and returns its assigned id. The id
// is opaque to callers and never changes afterwards.
func (s *Store) Create(ctx context.Context, med *model.Medication) (string, error) {
	if med.Name == "" {
		return "", apperrors.ErrNameRequired
	}
	if med.ID == "" {
		med.ID = uuid.NewString()
	}
	med.CreatedAt = time.Now()
	med.UpdatedAt = med.CreatedAt

	if err := s.db.WithContext(ctx).Create(toRecord(med)).Error; err != nil {
		s.logger.Error("Failed to create medication", zap.String("name", med.Name), zap.Error(err))
		return "", apperrors.Wrap(err, "STORE_002", "create medication")
	}

	s.notifySubscribers(ctx)
	return med.ID, nil
}

// Get returns the medication with the given id, or nil when absent.
func (s *Store) Get(ctx context.Context, id string) (*model.Medication, error) {
	var rec MedicationRecord
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Wrap(err, "STORE_001", "get medication")
	}
	return rec.toModel(), nil
}

// List returns every stored medication. Read failures degrade to an
// empty list: the consumers of the live feed prefer "no data" over
// stale or partial data.
func (s *Store) List(ctx context.Context) []model.Medication {
	var recs []MedicationRecord
	if err := s.db.WithContext(ctx).Order("created_at ASC").Find(&recs).Error; err != nil {
		s.logger.Error("Failed to list medications", zap.Error(err))
		return []model.Medication{}
	}

	meds := make([]model.Medication, 0, len(recs))
	for i := range recs {
		meds = append(meds, *recs[i].toModel())
	}
	return meds
}

// Update persists the full aggregate state.
func (s *Store) Update(ctx context.Context, med *model.Medication) error {
	med.UpdatedAt = time.Now()
	if err := s.db.WithContext(ctx).Save(toRecord(med)).Error; err != nil {
		s.logger.Error("Failed to update medication", zap.String("id", med.ID), zap.Error(err))
		return apperrors.Wrap(err, "STORE_002", "update medication")
	}

	s.notifySubscribers(ctx)
	return nil
}

// ApplyIntake persists the ledger and supply in a single update so no
// reader observes one without the other.
func (s *Store) ApplyIntake(ctx context.Context, med *model.Medication) error {
	now := time.Now()
	result := s.db.WithContext(ctx).Model(&MedicationRecord{}).
		Where("id = ?", med.ID).
		Updates(map[string]interface{}{
			"ledger_json":      marshalLedger(med.IntakeLedger),
			"available_supply": med.AvailableSupply,
			"updated_at":       now,
		})
	if result.Error != nil {
		s.logger.Error("Failed to apply intake", zap.String("id", med.ID), zap.Error(result.Error))
		return apperrors.Wrap(result.Error, "STORE_002", "apply intake")
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrMedicationNotFound
	}
	med.UpdatedAt = now

	s.notifySubscribers(ctx)
	return nil
}

// Delete removes the aggregate. Cancelling its reminders is the
// caller's job; the store only owns the rows.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.db.WithContext(ctx).Where("id = ?", id).Delete(&MedicationRecord{}).Error; err != nil {
		s.logger.Error("Failed to delete medication", zap.String("id", id), zap.Error(err))
		return apperrors.Wrap(err, "STORE_002", "delete medication")
	}

	s.notifySubscribers(ctx)
	return nil
}

// Subscribe registers a listener that receives the current full
// medication list after every change, plus one initial snapshot.
// The returned cancel func must be called to release the channel.
func (s *Store) Subscribe(ctx context.Context) (<-chan []model.Medication, func()) {
	ch := make(chan []model.Medication, 4)

	s.subMu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = ch
	s.subMu.Unlock()

	// Initial snapshot so late subscribers converge immediately.
	ch <- s.List(ctx)

	cancel := func() {
		s.subMu.Lock()
		if existing, ok := s.subscribers[id]; ok {
			delete(s.subscribers, id)
			close(existing)
		}
		s.subMu.Unlock()
	}
	return ch, cancel
}

func (s *Store) notifySubscribers(ctx context.Context) {
	s.subMu.Lock()
	empty := len(s.subscribers) == 0
	s.subMu.Unlock()
	if empty {
		return
	}

	meds := s.List(ctx)

	// Sends happen under the lock so a concurrent cancel cannot close
	// a channel mid-send. They are non-blocking, so the lock is held
	// only briefly.
	s.subMu.Lock()
	for _, ch := range s.subscribers {
		select {
		case ch <- meds:
		default:
			// Slow subscriber: drop this snapshot, the next change
			// delivers a fresh full list anyway.
		}
	}
	s.subMu.Unlock()
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
