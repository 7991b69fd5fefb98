// Package infra implements infrastructure concerns (storage, clock, process probe).
package infra

import (
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	// Ensure sqlcipher driver is registered.
	_ "github.com/mutecomm/go-sqlcipher/v4"

	"github.com/eliteGoblin/focusd/block_policy/internal/domain"
)

const storeDBName = "blocker.db"

// EncryptedStore persists block rules, temporary unlocks, and workout
// sessions in a SQLCipher encrypted SQLite database. It implements
// domain.RuleStore, domain.UnlockStore, and domain.WorkoutLedger.
//
// The store holds data for exactly one user. That is a product
// constraint, not an accident of the queries: there is no owner column
// anywhere in the schema, and adding multi-user support means a schema
// migration, not a WHERE clause.
//
// Every mutation is a single SQL statement, so SQLite's per-statement
// atomicity gives the single-record transaction semantics the engine
// relies on; concurrent readers never observe a partial write.
type EncryptedStore struct {
	db     *sql.DB
	dbPath string
}

// NewEncryptedStore opens (or creates) the encrypted database in
// dataDir. The key is used as the SQLCipher passphrase via PRAGMA key.
func NewEncryptedStore(dataDir string, key []byte) (*EncryptedStore, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, storeDBName)
	keyHex := hex.EncodeToString(key)

	// Open with SQLCipher key as DSN parameter
	dsn := fmt.Sprintf("%s?_pragma_key=x'%s'&_pragma_cipher_page_size=4096", dbPath, keyHex)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open encrypted database: %w", err)
	}

	// Verify encryption works by running a query
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to encrypted database: %w", err)
	}

	store := &EncryptedStore{db: db, dbPath: dbPath}
	if err := store.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return store, nil
}

// createTables creates the schema if it doesn't exist.
func (s *EncryptedStore) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS block_rules (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		target_apps TEXT NOT NULL,
		block_all INTEGER NOT NULL,
		schedule_days TEXT NOT NULL,
		schedule_start TEXT NOT NULL,
		schedule_end TEXT NOT NULL,
		unlock_method TEXT NOT NULL,
		password TEXT NOT NULL DEFAULT '',
		activity_minutes_required INTEGER NOT NULL,
		edit_lock_days INTEGER NOT NULL,
		edit_locked_until INTEGER,
		allow_temporary_unlock INTEGER NOT NULL,
		temporary_unlock_minutes INTEGER NOT NULL,
		strict_mode INTEGER NOT NULL,
		active INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS temporary_unlocks (
		id TEXT PRIMARY KEY,
		rule_id TEXT NOT NULL,
		app_name TEXT NOT NULL DEFAULT '',
		granted_at INTEGER NOT NULL,
		expires_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_temporary_unlocks_expiry
		ON temporary_unlocks (expires_at);

	CREATE TABLE IF NOT EXISTS workout_sessions (
		id TEXT PRIMARY KEY,
		date TEXT NOT NULL,
		activity TEXT NOT NULL DEFAULT '',
		duration_minutes INTEGER NOT NULL,
		logged_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_workout_sessions_date
		ON workout_sessions (date);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close releases the database connection.
func (s *EncryptedStore) Close() error {
	return s.db.Close()
}

// DBPath returns the database file path (for tests).
func (s *EncryptedStore) DBPath() string {
	return s.dbPath
}

// --- domain.RuleStore implementation ---

const ruleColumns = `id, name, target_apps, block_all,
	schedule_days, schedule_start, schedule_end,
	unlock_method, password, activity_minutes_required,
	edit_lock_days, edit_locked_until,
	allow_temporary_unlock, temporary_unlock_minutes, strict_mode,
	active, created_at`

// Insert persists a new rule.
func (s *EncryptedStore) Insert(ctx context.Context, rule domain.BlockRule) error {
	apps, err := json.Marshal(rule.TargetApps)
	if err != nil {
		return fmt.Errorf("encode target apps: %w", err)
	}
	days, err := json.Marshal(rule.Schedule.Days)
	if err != nil {
		return fmt.Errorf("encode schedule days: %w", err)
	}

	var lockedUntil sql.NullInt64
	if rule.EditLockedUntil != nil {
		lockedUntil = sql.NullInt64{Int64: rule.EditLockedUntil.Unix(), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO block_rules (`+ruleColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rule.ID, rule.Name, string(apps), boolInt(rule.BlockAll),
		string(days), rule.Schedule.Start, rule.Schedule.End,
		string(rule.UnlockMethod), rule.Password, rule.ActivityMinutesRequired,
		rule.EditLockDays, lockedUntil,
		boolInt(rule.AllowTemporaryUnlock), rule.TemporaryUnlockMinutes, boolInt(rule.StrictMode),
		boolInt(rule.Active), rule.CreatedAt.Unix(),
	)
	return err
}

// Get returns the rule or domain.ErrRuleNotFound.
func (s *EncryptedStore) Get(ctx context.Context, id string) (*domain.BlockRule, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+ruleColumns+` FROM block_rules WHERE id = ?`, id)
	rule, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrRuleNotFound
	}
	if err != nil {
		return nil, err
	}
	return rule, nil
}

// List returns all rules, ordered by creation time.
func (s *EncryptedStore) List(ctx context.Context) ([]domain.BlockRule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+ruleColumns+` FROM block_rules ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []domain.BlockRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, *rule)
	}
	return rules, rows.Err()
}

// Update overwrites the stored rule in a single statement.
func (s *EncryptedStore) Update(ctx context.Context, rule domain.BlockRule) error {
	apps, err := json.Marshal(rule.TargetApps)
	if err != nil {
		return fmt.Errorf("encode target apps: %w", err)
	}
	days, err := json.Marshal(rule.Schedule.Days)
	if err != nil {
		return fmt.Errorf("encode schedule days: %w", err)
	}

	var lockedUntil sql.NullInt64
	if rule.EditLockedUntil != nil {
		lockedUntil = sql.NullInt64{Int64: rule.EditLockedUntil.Unix(), Valid: true}
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE block_rules SET
			name = ?, target_apps = ?, block_all = ?,
			schedule_days = ?, schedule_start = ?, schedule_end = ?,
			unlock_method = ?, password = ?, activity_minutes_required = ?,
			edit_lock_days = ?, edit_locked_until = ?,
			allow_temporary_unlock = ?, temporary_unlock_minutes = ?, strict_mode = ?,
			active = ?
		WHERE id = ?`,
		rule.Name, string(apps), boolInt(rule.BlockAll),
		string(days), rule.Schedule.Start, rule.Schedule.End,
		string(rule.UnlockMethod), rule.Password, rule.ActivityMinutesRequired,
		rule.EditLockDays, lockedUntil,
		boolInt(rule.AllowTemporaryUnlock), rule.TemporaryUnlockMinutes, boolInt(rule.StrictMode),
		boolInt(rule.Active),
		rule.ID,
	)
	if err != nil {
		return err
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return domain.ErrRuleNotFound
	}
	return nil
}

// Delete removes the rule. Outstanding temporary unlocks are left in
// place; they age out via the expiry filter.
func (s *EncryptedStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM block_rules WHERE id = ?`, id)
	if err != nil {
		return err
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return domain.ErrRuleNotFound
	}
	return nil
}

// scanner covers *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRule(row scanner) (*domain.BlockRule, error) {
	var (
		rule        domain.BlockRule
		apps, days  string
		method      string
		blockAll    int
		allowTemp   int
		strict      int
		active      int
		lockedUntil sql.NullInt64
		createdAt   int64
	)
	err := row.Scan(
		&rule.ID, &rule.Name, &apps, &blockAll,
		&days, &rule.Schedule.Start, &rule.Schedule.End,
		&method, &rule.Password, &rule.ActivityMinutesRequired,
		&rule.EditLockDays, &lockedUntil,
		&allowTemp, &rule.TemporaryUnlockMinutes, &strict,
		&active, &createdAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(apps), &rule.TargetApps); err != nil {
		return nil, fmt.Errorf("decode target apps: %w", err)
	}
	if err := json.Unmarshal([]byte(days), &rule.Schedule.Days); err != nil {
		return nil, fmt.Errorf("decode schedule days: %w", err)
	}
	rule.UnlockMethod = domain.UnlockMethod(method)
	rule.BlockAll = blockAll != 0
	rule.AllowTemporaryUnlock = allowTemp != 0
	rule.StrictMode = strict != 0
	rule.Active = active != 0
	rule.CreatedAt = time.Unix(createdAt, 0).UTC()
	if lockedUntil.Valid {
		t := time.Unix(lockedUntil.Int64, 0).UTC()
		rule.EditLockedUntil = &t
	}
	return &rule, nil
}

// --- domain.UnlockStore implementation ---

// InsertUnlock persists a freshly granted temporary unlock.
// Named to avoid colliding with the rule Insert on the shared store;
// the domain interfaces are satisfied via the Unlocks view below.
func (s *EncryptedStore) InsertUnlock(ctx context.Context, u domain.TemporaryUnlock) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO temporary_unlocks (id, rule_id, app_name, granted_at, expires_at)
		VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.RuleID, u.AppName, u.GrantedAt.Unix(), u.ExpiresAt.Unix(),
	)
	return err
}

// ListActiveUnlocks returns unlocks with expires_at strictly after now.
func (s *EncryptedStore) ListActiveUnlocks(ctx context.Context, now time.Time) ([]domain.TemporaryUnlock, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, rule_id, app_name, granted_at, expires_at
		FROM temporary_unlocks
		WHERE expires_at > ?
		ORDER BY granted_at, id`,
		now.Unix(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var unlocks []domain.TemporaryUnlock
	for rows.Next() {
		var u domain.TemporaryUnlock
		var granted, expires int64
		if err := rows.Scan(&u.ID, &u.RuleID, &u.AppName, &granted, &expires); err != nil {
			return nil, err
		}
		u.GrantedAt = time.Unix(granted, 0).UTC()
		u.ExpiresAt = time.Unix(expires, 0).UTC()
		unlocks = append(unlocks, u)
	}
	return unlocks, rows.Err()
}

// PruneExpiredUnlocks deletes inert unlock records and reports how many
// went. Storage hygiene only; ListActiveUnlocks is what enforces expiry.
func (s *EncryptedStore) PruneExpiredUnlocks(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM temporary_unlocks WHERE expires_at <= ?`, now.Unix())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// --- domain.WorkoutLedger implementation ---

// LogWorkout records one exercise session.
func (s *EncryptedStore) LogWorkout(ctx context.Context, w domain.WorkoutSession) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO workout_sessions (id, date, activity, duration_minutes, logged_at)
		VALUES (?, ?, ?, ?, ?)`,
		w.ID, w.Date, w.Activity, w.DurationMinutes, w.LoggedAt.Unix(),
	)
	return err
}

// TotalMinutesForDate sums session durations for a UTC calendar day.
// A day with no sessions totals zero.
func (s *EncryptedStore) TotalMinutesForDate(ctx context.Context, date string) (int, error) {
	var total int
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(duration_minutes), 0)
		FROM workout_sessions WHERE date = ?`,
		date,
	).Scan(&total)
	if err != nil {
		return 0, err
	}
	return total, nil
}

// --- interface views ---

// unlockView adapts the store to domain.UnlockStore.
type unlockView struct{ *EncryptedStore }

func (v unlockView) Insert(ctx context.Context, u domain.TemporaryUnlock) error {
	return v.InsertUnlock(ctx, u)
}

func (v unlockView) ListActive(ctx context.Context, now time.Time) ([]domain.TemporaryUnlock, error) {
	return v.ListActiveUnlocks(ctx, now)
}

func (v unlockView) PruneExpired(ctx context.Context, now time.Time) (int64, error) {
	return v.PruneExpiredUnlocks(ctx, now)
}

// Unlocks returns the store viewed as a domain.UnlockStore.
func (s *EncryptedStore) Unlocks() domain.UnlockStore {
	return unlockView{s}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Ensure interface coverage.
var (
	_ domain.RuleStore     = (*EncryptedStore)(nil)
	_ domain.WorkoutLedger = (*EncryptedStore)(nil)
	_ domain.UnlockStore   = unlockView{}
)
