// Package journal persists committed lending events in a SQL table so
// operators can audit recent pool activity.
package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"lendcore/native/lending"
)

const maxRecent = 1_000

// ActionRecord is one committed pool event.
type ActionRecord struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Type      string    `gorm:"column:event_type;size:64;index" json:"type"`
	Asset     string    `gorm:"size:42;index" json:"asset,omitempty"`
	User      string    `gorm:"column:account;size:42;index" json:"user,omitempty"`
	Amount    string    `gorm:"size:80" json:"amount,omitempty"`
	Payload   string    `gorm:"type:text" json:"payload"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

// Filter narrows Recent. Empty fields match everything.
type Filter struct {
	Type  string
	Asset string
	User  string
}

// Journal writes events through gorm. It implements lending.Emitter.
type Journal struct {
	db     *gorm.DB
	logger *slog.Logger
	clock  func() time.Time
}

// Open connects to the journal database. Supported drivers are sqlite and
// postgres.
func Open(driver, dsn string) (*gorm.DB, error) {
	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "sqlite":
		return gorm.Open(sqlite.Open(dsn), cfg)
	case "postgres":
		return gorm.Open(postgres.Open(dsn), cfg)
	default:
		return nil, fmt.Errorf("journal: unsupported driver %q", driver)
	}
}

// New migrates the schema and returns a journal bound to db.
func New(db *gorm.DB, log *slog.Logger) (*Journal, error) {
	if db == nil {
		return nil, errors.New("journal: database required")
	}
	if err := db.AutoMigrate(&ActionRecord{}); err != nil {
		return nil, fmt.Errorf("journal: migrate: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Journal{db: db, logger: log.With(slog.String("component", "journal")), clock: time.Now}, nil
}

// SetClock overrides the timestamp source.
func (j *Journal) SetClock(clock func() time.Time) {
	if clock != nil {
		j.clock = clock
	}
}

// Emit records ev, logging failures. The pool has already committed, so a
// journal error must not surface to the caller.
func (j *Journal) Emit(ev lending.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := j.Record(ctx, ev); err != nil {
		j.logger.Warn("journal write failed", slog.String("type", ev.EventType()), slog.Any("error", err))
	}
}

// Record stores ev and returns the row.
func (j *Journal) Record(ctx context.Context, ev lending.Event) (*ActionRecord, error) {
	if ev == nil {
		return nil, errors.New("journal: nil event")
	}
	attrs := ev.Attributes()
	payload, err := json.Marshal(attrs)
	if err != nil {
		return nil, fmt.Errorf("journal: encode payload: %w", err)
	}
	record := &ActionRecord{
		ID:        uuid.New(),
		Type:      ev.EventType(),
		Asset:     firstOf(attrs, "asset", "debt_asset"),
		User:      firstOf(attrs, "user", "delegator"),
		Amount:    firstOf(attrs, "amount", "debt_to_cover"),
		Payload:   string(payload),
		CreatedAt: j.clock().UTC(),
	}
	if err := j.db.WithContext(ctx).Create(record).Error; err != nil {
		return nil, fmt.Errorf("journal: insert: %w", err)
	}
	return record, nil
}

// Recent returns up to limit records, newest first.
func (j *Journal) Recent(ctx context.Context, limit int, filter Filter) ([]ActionRecord, error) {
	if limit <= 0 || limit > maxRecent {
		limit = maxRecent
	}
	query := j.db.WithContext(ctx).Model(&ActionRecord{})
	if filter.Type != "" {
		query = query.Where("event_type = ?", filter.Type)
	}
	if filter.Asset != "" {
		query = query.Where("asset = ?", filter.Asset)
	}
	if filter.User != "" {
		query = query.Where("account = ?", filter.User)
	}
	var records []ActionRecord
	if err := query.Order("created_at DESC").Limit(limit).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("journal: query: %w", err)
	}
	return records, nil
}

// Attributes decodes the stored payload.
func (r ActionRecord) Attributes() (map[string]string, error) {
	out := make(map[string]string)
	if r.Payload == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(r.Payload), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func firstOf(attrs map[string]string, keys ...string) string {
	for _, key := range keys {
		if value := attrs[key]; value != "" {
			return value
		}
	}
	return ""
}
