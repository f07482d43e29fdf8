// Package store provides persistence: the Kite session token and the
// analytics journal of chain summaries.
package store

import (
	"context"
	"time"

	"optionstream/internal/models"
)

// Session is a persisted Kite access token. Tokens expire at 6 AM IST
// the next day.
type Session struct {
	AccessToken string    `json:"access_token"`
	UserID      string    `json:"user_id"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Expired reports whether the session is past its expiry.
func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// SnapshotFilter narrows a journal query.
type SnapshotFilter struct {
	Symbol string
	From   time.Time
	To     time.Time
	Limit  int
}

// Store persists sessions and analytics snapshots.
type Store interface {
	// SaveSession upserts the Kite session.
	SaveSession(ctx context.Context, session Session) error
	// LoadSession returns the stored session, or errors.ErrNotAuthenticated
	// when none exists; expired sessions yield errors.ErrSessionExpired.
	LoadSession(ctx context.Context) (Session, error)
	// ClearSession removes the stored session.
	ClearSession(ctx context.Context) error

	// SaveSnapshots appends chain summaries to the analytics journal.
	SaveSnapshots(ctx context.Context, summaries []models.Summary) error
	// GetSnapshots returns journal entries, newest first.
	GetSnapshots(ctx context.Context, filter SnapshotFilter) ([]models.Summary, error)
	// GetLatestSnapshot returns the most recent entry for a symbol.
	GetLatestSnapshot(ctx context.Context, symbol string) (*models.Summary, error)
	// PruneSnapshots deletes entries older than before. Returns rows removed.
	PruneSnapshots(ctx context.Context, before time.Time) (int64, error)

	Close() error
}
