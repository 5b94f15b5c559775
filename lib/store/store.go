// Package store persists domain tracking state in a local SQLite database so
// sessions survive daemon restarts.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/focusfinder/server/lib/focus"
)

// Records untouched for this long are discarded on load; a tracking session
// that old is not worth resuming.
const staleCutoff = 6 * time.Hour

type domainRow struct {
	Domain                 string `gorm:"primaryKey"`
	Intention              string
	IntentionSet           bool
	TimeSpent              int
	ReminderTime           int
	IsTracking             bool
	IsPaused               bool
	PauseReason            string
	ReminderShown          bool
	TabIDs                 string // JSON-encoded array
	WidgetExpanded         bool
	LastVisibilityState    bool
	IgnorePauseOnBlurUntil int64 // ms epoch, zero when unset
	WidgetPosition         string
	HasExtended            bool
	SessionID              string
	LastUpdated            int64 // ms epoch
}

func (domainRow) TableName() string { return "domain_states" }

type Store struct {
	db *gorm.DB
}

func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open state db: %w", err)
	}
	if err := db.AutoMigrate(&domainRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate state db: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Load returns every persisted record fresh enough to resume. Stale rows are
// removed on the way out.
func (s *Store) Load(ctx context.Context) (map[string]focus.Snapshot, error) {
	cutoff := time.Now().Add(-staleCutoff).UnixMilli()
	if err := s.db.WithContext(ctx).Where("last_updated < ?", cutoff).Delete(&domainRow{}).Error; err != nil {
		return nil, fmt.Errorf("failed to prune stale domain states: %w", err)
	}

	var rows []domainRow
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load domain states: %w", err)
	}
	out := make(map[string]focus.Snapshot, len(rows))
	for _, row := range rows {
		snap, err := row.snapshot()
		if err != nil {
			return nil, fmt.Errorf("failed to decode domain state for %q: %w", row.Domain, err)
		}
		out[row.Domain] = snap
	}
	return out, nil
}

// SaveAll replaces the whole persisted set with the given snapshots.
func (s *Store) SaveAll(ctx context.Context, snaps map[string]focus.Snapshot) error {
	rows := make([]domainRow, 0, len(snaps))
	for domain, snap := range snaps {
		row, err := rowFromSnapshot(domain, snap)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&domainRow{}).Error; err != nil {
			return fmt.Errorf("failed to clear domain states: %w", err)
		}
		if len(rows) == 0 {
			return nil
		}
		if err := tx.Create(&rows).Error; err != nil {
			return fmt.Errorf("failed to write domain states: %w", err)
		}
		return nil
	})
}

// SaveDomain upserts a single record.
func (s *Store) SaveDomain(ctx context.Context, domain string, snap focus.Snapshot) error {
	row, err := rowFromSnapshot(domain, snap)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to save domain state for %q: %w", domain, err)
	}
	return nil
}

func (s *Store) DeleteDomain(ctx context.Context, domain string) error {
	if err := s.db.WithContext(ctx).Delete(&domainRow{}, "domain = ?", domain).Error; err != nil {
		return fmt.Errorf("failed to delete domain state for %q: %w", domain, err)
	}
	return nil
}

// Reset wipes every record. Used when a settings migration invalidates the
// stored shape.
func (s *Store) Reset(ctx context.Context) error {
	if err := s.db.WithContext(ctx).Where("1 = 1").Delete(&domainRow{}).Error; err != nil {
		return fmt.Errorf("failed to reset domain states: %w", err)
	}
	return nil
}

func rowFromSnapshot(domain string, snap focus.Snapshot) (domainRow, error) {
	tabIDs := snap.TabIDs
	if tabIDs == nil {
		tabIDs = []int{}
	}
	encoded, err := json.Marshal(tabIDs)
	if err != nil {
		return domainRow{}, fmt.Errorf("failed to encode tab ids for %q: %w", domain, err)
	}
	return domainRow{
		Domain:                 domain,
		Intention:              snap.Intention,
		IntentionSet:           snap.IntentionSet,
		TimeSpent:              snap.TimeSpent,
		ReminderTime:           snap.ReminderTime,
		IsTracking:             snap.IsTracking,
		IsPaused:               snap.IsPaused,
		PauseReason:            string(snap.PauseReason),
		ReminderShown:          snap.ReminderShown,
		TabIDs:                 string(encoded),
		WidgetExpanded:         snap.WidgetExpanded,
		LastVisibilityState:    snap.LastVisibilityState,
		IgnorePauseOnBlurUntil: snap.IgnorePauseOnBlurUntil,
		WidgetPosition:         snap.WidgetPosition,
		HasExtended:            snap.HasExtended,
		SessionID:              snap.SessionID,
		LastUpdated:            snap.LastUpdated,
	}, nil
}

func (r domainRow) snapshot() (focus.Snapshot, error) {
	var tabIDs []int
	if r.TabIDs != "" {
		if err := json.Unmarshal([]byte(r.TabIDs), &tabIDs); err != nil {
			return focus.Snapshot{}, err
		}
	}
	return focus.Snapshot{
		Intention:              r.Intention,
		IntentionSet:           r.IntentionSet,
		TimeSpent:              r.TimeSpent,
		ReminderTime:           r.ReminderTime,
		IsTracking:             r.IsTracking,
		IsPaused:               r.IsPaused,
		PauseReason:            focus.PauseReason(r.PauseReason),
		ReminderShown:          r.ReminderShown,
		TabIDs:                 tabIDs,
		WidgetExpanded:         r.WidgetExpanded,
		LastVisibilityState:    r.LastVisibilityState,
		IgnorePauseOnBlurUntil: r.IgnorePauseOnBlurUntil,
		WidgetPosition:         r.WidgetPosition,
		HasExtended:            r.HasExtended,
		SessionID:              r.SessionID,
		LastUpdated:            r.LastUpdated,
	}, nil
}
