package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/nhle/commodity-alerts/internal/model"
	"github.com/nhle/commodity-alerts/internal/reconcile"
)

// SQLiteStore implements the Store interface using a local SQLite database.
type SQLiteStore struct {
	db     *sqlx.DB
	policy reconcile.ReadPolicy
}

// Option configures a SQLiteStore.
type Option func(*SQLiteStore)

// WithReadPolicy sets the policy MergeNotifications applies.
func WithReadPolicy(p reconcile.ReadPolicy) Option {
	return func(s *SQLiteStore) {
		s.policy = p
	}
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string, opts ...Option) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// One connection serializes writers and keeps ":memory:" databases
	// from splitting across pooled connections.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db, policy: reconcile.ReadPolicyMerge}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// notificationRow is the cached form of a notification.
type notificationRow struct {
	ID        string    `db:"id"`
	Position  int       `db:"position"`
	Title     string    `db:"title"`
	Body      string    `db:"body"`
	Type      string    `db:"type"`
	Severity  string    `db:"severity"`
	Commodity string    `db:"commodity"`
	IsRead    bool      `db:"is_read"`
	CreatedAt time.Time `db:"created_at"`
}

func (r notificationRow) toModel() model.Notification {
	return model.Notification{
		ID:        model.ID(r.ID),
		Title:     r.Title,
		Body:      r.Body,
		Type:      model.ParseNotificationType(r.Type),
		Severity:  model.ParseSeverity(r.Severity),
		Commodity: r.Commodity,
		CreatedAt: r.CreatedAt.UTC(),
		IsRead:    r.IsRead,
	}
}

// LoadNotifications returns the cached notifications, newest first.
func (s *SQLiteStore) LoadNotifications(ctx context.Context) ([]model.Notification, error) {
	var rows []notificationRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, position, title, body, type, severity, commodity, is_read, created_at
		FROM notifications
		ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("querying notifications: %w", err)
	}

	list := make([]model.Notification, 0, len(rows))
	for _, r := range rows {
		list = append(list, r.toModel())
	}
	reconcile.SortNewestFirst(list)

	return list, nil
}

// SaveNotifications replaces the cached notification list in a single
// transaction. Readers never observe a partially written list.
func (s *SQLiteStore) SaveNotifications(ctx context.Context, list []model.Notification) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM notifications"); err != nil {
		return fmt.Errorf("clearing notifications: %w", err)
	}

	stmt, err := tx.PreparexContext(ctx, `
		INSERT OR REPLACE INTO notifications (
			id, position, title, body, type, severity, commodity, is_read, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing notification insert: %w", err)
	}
	defer stmt.Close()

	for i, n := range list {
		_, err := stmt.ExecContext(ctx,
			string(n.ID), i, n.Title, n.Body,
			string(n.Type), string(n.Severity), n.Commodity,
			boolToInt(n.IsRead), n.CreatedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("saving notification %s: %w", n.ID, err)
		}
	}

	return tx.Commit()
}

// MergeNotifications reconciles cached and remote lists using the store's
// read policy. It does not touch the database.
func (s *SQLiteStore) MergeNotifications(cached, remote []model.Notification) []model.Notification {
	return reconcile.Merge(cached, remote, s.policy)
}

// MarkAsReadLocally flags a cached notification as read.
func (s *SQLiteStore) MarkAsReadLocally(ctx context.Context, id model.ID) error {
	return s.setRead(ctx, id, true)
}

// MarkAsUnreadLocally clears the read flag of a cached notification.
func (s *SQLiteStore) MarkAsUnreadLocally(ctx context.Context, id model.ID) error {
	return s.setRead(ctx, id, false)
}

func (s *SQLiteStore) setRead(ctx context.Context, id model.ID, read bool) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE notifications SET is_read = ? WHERE id = ?",
		boolToInt(read), string(id),
	)
	if err != nil {
		return fmt.Errorf("updating read state of notification %s: %w", id, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("notification %s: %w", id, ErrNotFound)
	}
	return nil
}

// ClearNotifications removes every cached notification.
func (s *SQLiteStore) ClearNotifications(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM notifications"); err != nil {
		return fmt.Errorf("clearing notifications: %w", err)
	}
	return nil
}

type marketAlertRow struct {
	ID            string          `db:"id"`
	Position      int             `db:"position"`
	Commodity     string          `db:"commodity"`
	Severity      string          `db:"severity"`
	Message       string          `db:"message"`
	ChangePercent sql.NullFloat64 `db:"change_percent"`
	CurrentPrice  sql.NullFloat64 `db:"current_price"`
	CreatedAt     time.Time       `db:"created_at"`
}

func (r marketAlertRow) toModel() model.MarketAlert {
	return model.MarketAlert{
		ID:            model.ID(r.ID),
		Commodity:     r.Commodity,
		Severity:      model.ParseSeverity(r.Severity),
		Message:       r.Message,
		ChangePercent: nullFloatPtr(r.ChangePercent),
		CurrentPrice:  nullFloatPtr(r.CurrentPrice),
		CreatedAt:     r.CreatedAt.UTC(),
	}
}

// LoadMarketAlerts returns the cached market alerts in saved order.
func (s *SQLiteStore) LoadMarketAlerts(ctx context.Context) ([]model.MarketAlert, error) {
	var rows []marketAlertRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, position, commodity, severity, message, change_percent, current_price, created_at
		FROM market_alerts
		ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("querying market alerts: %w", err)
	}

	alerts := make([]model.MarketAlert, 0, len(rows))
	for _, r := range rows {
		alerts = append(alerts, r.toModel())
	}
	return alerts, nil
}

// SaveMarketAlerts replaces the cached market alert list in a single
// transaction.
func (s *SQLiteStore) SaveMarketAlerts(ctx context.Context, alerts []model.MarketAlert) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM market_alerts"); err != nil {
		return fmt.Errorf("clearing market alerts: %w", err)
	}

	stmt, err := tx.PreparexContext(ctx, `
		INSERT OR REPLACE INTO market_alerts (
			id, position, commodity, severity, message,
			change_percent, current_price, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing market alert insert: %w", err)
	}
	defer stmt.Close()

	for i, a := range alerts {
		_, err := stmt.ExecContext(ctx,
			string(a.ID), i, a.Commodity, string(a.Severity), a.Message,
			floatPtrNull(a.ChangePercent), floatPtrNull(a.CurrentPrice),
			a.CreatedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("saving market alert %s: %w", a.ID, err)
		}
	}

	return tx.Commit()
}

// LoadPreferences returns the cached alert preferences, or nil if none
// have been saved.
func (s *SQLiteStore) LoadPreferences(ctx context.Context) (*model.AlertPreferences, error) {
	var data string
	err := s.db.GetContext(ctx, &data, "SELECT data FROM preferences WHERE id = 1")
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying preferences: %w", err)
	}

	var p model.AlertPreferences
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil, fmt.Errorf("unmarshaling preferences: %w", err)
	}
	return &p, nil
}

// SavePreferences stores p as the cached alert preferences.
func (s *SQLiteStore) SavePreferences(ctx context.Context, p model.AlertPreferences) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshaling preferences: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO preferences (id, data, updated_at)
		VALUES (1, ?, ?)`,
		string(data), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("saving preferences: %w", err)
	}
	return nil
}

// boolToInt converts a boolean to 0 or 1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullFloatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	f := n.Float64
	return &f
}

func floatPtrNull(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
