package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"optionstream/internal/errors"
	"optionstream/internal/models"
)

// SQLiteStore implements Store on a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and migrates) the database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Single-row Kite session.
	CREATE TABLE IF NOT EXISTS sessions (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		access_token TEXT NOT NULL,
		user_id TEXT,
		expires_at DATETIME NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Analytics journal: one row per broadcast chain summary.
	CREATE TABLE IF NOT EXISTS snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		expiry DATE NOT NULL,
		spot_price REAL NOT NULL,
		atm_strike REAL NOT NULL,
		max_pain_strike REAL NOT NULL,
		pcr_oi REAL,
		pcr_volume REAL,
		total_call_oi INTEGER NOT NULL,
		total_put_oi INTEGER NOT NULL,
		computed_at DATETIME NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_snapshots_symbol_time
		ON snapshots(symbol, computed_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveSession implements Store.
func (s *SQLiteStore) SaveSession(ctx context.Context, session Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, access_token, user_id, expires_at, updated_at)
		VALUES (1, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			access_token = excluded.access_token,
			user_id = excluded.user_id,
			expires_at = excluded.expires_at,
			updated_at = CURRENT_TIMESTAMP`,
		session.AccessToken, session.UserID, session.ExpiresAt)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// LoadSession implements Store.
func (s *SQLiteStore) LoadSession(ctx context.Context) (Session, error) {
	var session Session
	err := s.db.QueryRowContext(ctx,
		`SELECT access_token, COALESCE(user_id, ''), expires_at FROM sessions WHERE id = 1`).
		Scan(&session.AccessToken, &session.UserID, &session.ExpiresAt)
	if err == sql.ErrNoRows {
		return Session{}, errors.ErrNotAuthenticated
	}
	if err != nil {
		return Session{}, fmt.Errorf("failed to load session: %w", err)
	}

	if session.Expired(time.Now()) {
		return Session{}, errors.ErrSessionExpired
	}
	return session, nil
}

// ClearSession implements Store.
func (s *SQLiteStore) ClearSession(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = 1`)
	return err
}

// SaveSnapshots implements Store. All summaries go in one transaction.
func (s *SQLiteStore) SaveSnapshots(ctx context.Context, summaries []models.Summary) error {
	if len(summaries) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO snapshots
			(symbol, expiry, spot_price, atm_strike, max_pain_strike,
			 pcr_oi, pcr_volume, total_call_oi, total_put_oi, computed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, sm := range summaries {
		_, err := stmt.ExecContext(ctx,
			sm.Symbol,
			sm.Expiry.Format("2006-01-02"),
			sm.SpotPrice,
			sm.ATMStrike,
			sm.MaxPainStrike,
			nullableFloat(sm.PCROI),
			nullableFloat(sm.PCRVolume),
			sm.TotalCallOI,
			sm.TotalPutOI,
			sm.ComputedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert snapshot for %s: %w", sm.Symbol, err)
		}
	}

	return tx.Commit()
}

// GetSnapshots implements Store.
func (s *SQLiteStore) GetSnapshots(ctx context.Context, filter SnapshotFilter) ([]models.Summary, error) {
	query := `
		SELECT symbol, expiry, spot_price, atm_strike, max_pain_strike,
		       pcr_oi, pcr_volume, total_call_oi, total_put_oi, computed_at
		FROM snapshots WHERE 1=1`
	var args []interface{}

	if filter.Symbol != "" {
		query += " AND symbol = ?"
		args = append(args, filter.Symbol)
	}
	if !filter.From.IsZero() {
		query += " AND computed_at >= ?"
		args = append(args, filter.From)
	}
	if !filter.To.IsZero() {
		query += " AND computed_at <= ?"
		args = append(args, filter.To)
	}

	query += " ORDER BY computed_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	var out []models.Summary
	for rows.Next() {
		sm, err := scanSummary(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sm)
	}
	return out, rows.Err()
}

// GetLatestSnapshot implements Store.
func (s *SQLiteStore) GetLatestSnapshot(ctx context.Context, symbol string) (*models.Summary, error) {
	snapshots, err := s.GetSnapshots(ctx, SnapshotFilter{Symbol: symbol, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(snapshots) == 0 {
		return nil, errors.NewDataError("snapshot", symbol, "no journal entries", nil)
	}
	return &snapshots[0], nil
}

// PruneSnapshots implements Store.
func (s *SQLiteStore) PruneSnapshots(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE computed_at < ?`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to prune snapshots: %w", err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSummary(row rowScanner) (models.Summary, error) {
	var sm models.Summary
	var expiry string
	var pcrOI, pcrVol sql.NullFloat64

	err := row.Scan(&sm.Symbol, &expiry, &sm.SpotPrice, &sm.ATMStrike,
		&sm.MaxPainStrike, &pcrOI, &pcrVol, &sm.TotalCallOI, &sm.TotalPutOI,
		&sm.ComputedAt)
	if err != nil {
		return models.Summary{}, fmt.Errorf("failed to scan snapshot: %w", err)
	}

	if t, err := time.Parse("2006-01-02", expiry); err == nil {
		sm.Expiry = t
	}
	if pcrOI.Valid {
		sm.PCROI = &pcrOI.Float64
	}
	if pcrVol.Valid {
		sm.PCRVolume = &pcrVol.Float64
	}
	return sm, nil
}

func nullableFloat(f *float64) interface{} {
	if f == nil {
		return nil
	}
	return *f
}

var _ Store = (*SQLiteStore)(nil)
