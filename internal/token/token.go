package token

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("no token record for user")

	// ErrStale is returned by Swap when the stored refresh token no longer
	// matches the expected previous value: another session won the rotation
	// race and the caller must reread the record.
	ErrStale = errors.New("token record changed concurrently")
)

// Record is the single live OAuth credential pair for one user.
type Record struct {
	UserID       string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Stale reports whether the access token must be refreshed before use.
// The skew window is a safety margin ahead of nominal expiry.
func (r Record) Stale(now time.Time, skew time.Duration) bool {
	return r.ExpiresAt.Before(now.Add(skew))
}

// Store is the sole durable owner of provider credentials.
type Store interface {
	Get(ctx context.Context, userID string) (Record, error)

	// Upsert inserts or replaces the record for rec.UserID unconditionally.
	// Used by the authorization-code exchange, where the provider has just
	// invalidated whatever was stored before.
	Upsert(ctx context.Context, rec Record) error

	// Swap replaces the record for rec.UserID only if the stored refresh
	// token still equals prevRefreshToken. Returns ErrStale when it does
	// not, ErrNotFound when no record exists. This is the conditional
	// update that keeps concurrent refreshes from corrupting the record.
	Swap(ctx context.Context, prevRefreshToken string, rec Record) error

	Delete(ctx context.Context, userID string) error
}
