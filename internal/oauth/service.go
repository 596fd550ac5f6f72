package oauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/GamerLionLeo/CGM-Trakr/internal/config"
	"github.com/GamerLionLeo/CGM-Trakr/internal/token"
	"github.com/GamerLionLeo/CGM-Trakr/internal/xslog"
)

// SkewWindow is the safety margin before nominal expiry: a token expiring
// inside it is refreshed proactively rather than used.
const SkewWindow = 5 * time.Minute

var (
	// ErrNotConnected means the user has no stored credential pair: either
	// they never authorized the provider or the record was invalidated.
	ErrNotConnected = errors.New("no provider connection for user")

	// ErrExchangeFailed means the authorization code was rejected. Codes are
	// single-use, so this is never retried; the caller must obtain a fresh one.
	ErrExchangeFailed = errors.New("authorization code exchange failed")

	// ErrRefreshInvalid means the provider rejected the refresh token
	// (revoked, expired, or superseded). The record has been deleted and the
	// user must re-run the authorization flow.
	ErrRefreshInvalid = errors.New("refresh token rejected, re-authorization required")
)

// Service owns the token lifecycle: code exchange, staleness checks, and
// refresh-with-rotation against the provider token endpoint.
type Service struct {
	dexcom config.Dexcom
	store  token.Store
	logger *slog.Logger

	// Collapses concurrent in-process refreshes for the same user onto one
	// provider call. Cross-process races are resolved by the store's Swap.
	group singleflight.Group

	now func() time.Time
}

func NewService(dexcom config.Dexcom, store token.Store, logger *slog.Logger) *Service {
	return &Service{
		dexcom: dexcom,
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// AuthCodeURL builds the provider authorization URL for the given CSRF state.
func (s *Service) AuthCodeURL(state string) (string, error) {
	if err := s.dexcom.Validate(); err != nil {
		return "", err
	}
	return NewConfig(s.dexcom).AuthCodeURL(state, oauth2.AccessTypeOffline), nil
}

// Exchange converts a single-use authorization code into the initial token
// pair and upserts the user's record. Repeating a consumed code fails with
// ErrExchangeFailed; the provider invalidates codes on first use.
func (s *Service) Exchange(ctx context.Context, userID, code string) (token.Record, error) {
	if err := s.dexcom.Validate(); err != nil {
		return token.Record{}, err
	}

	exchangeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	tok, err := NewConfig(s.dexcom).Exchange(exchangeCtx, code)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return token.Record{}, fmt.Errorf("%w: %s", ErrExchangeFailed, string(retrieveErr.Body))
		}
		return token.Record{}, fmt.Errorf("exchanging authorization code: %w", err)
	}

	rec := token.Record{
		UserID:       userID,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
	}

	if err := s.store.Upsert(ctx, rec); err != nil {
		return token.Record{}, fmt.Errorf("persisting token record: %w", err)
	}

	s.logger.InfoContext(ctx, "authorization code exchanged",
		xslog.UserID(userID),
		xslog.ExpiresAt(rec.ExpiresAt))

	return rec, nil
}

// EnsureFresh returns a record whose access token is usable for at least the
// skew window, refreshing and rotating if needed. Returns ErrNotConnected
// when no record exists and ErrRefreshInvalid when the provider rejected the
// stored refresh token (the record is deleted before returning).
func (s *Service) EnsureFresh(ctx context.Context, userID string) (token.Record, error) {
	rec, err := s.store.Get(ctx, userID)
	if errors.Is(err, token.ErrNotFound) {
		return token.Record{}, ErrNotConnected
	}
	if err != nil {
		return token.Record{}, err
	}

	if !rec.Stale(s.now(), SkewWindow) {
		return rec, nil
	}

	return s.refresh(ctx, rec)
}

// ForceRefresh rotates the pair regardless of the staleness check. Used
// after the data endpoint rejects a token the skew check considered fresh.
func (s *Service) ForceRefresh(ctx context.Context, userID string) (token.Record, error) {
	rec, err := s.store.Get(ctx, userID)
	if errors.Is(err, token.ErrNotFound) {
		return token.Record{}, ErrNotConnected
	}
	if err != nil {
		return token.Record{}, err
	}
	return s.refresh(ctx, rec)
}

// refresh rotates the pair the caller observed. Concurrent in-process
// callers share one provider call via singleflight; a caller arriving
// after a rotation adopts the rotated pair instead of burning the new
// refresh token.
func (s *Service) refresh(ctx context.Context, observed token.Record) (token.Record, error) {
	v, err, _ := s.group.Do(observed.UserID, func() (any, error) {
		return s.refreshObserved(ctx, observed)
	})
	if err != nil {
		return token.Record{}, err
	}
	return v.(token.Record), nil
}

func (s *Service) refreshObserved(ctx context.Context, observed token.Record) (token.Record, error) {
	if err := s.dexcom.Validate(); err != nil {
		return token.Record{}, err
	}

	userID := observed.UserID

	// Reread under the flight: a concurrent caller may have rotated already.
	rec, err := s.store.Get(ctx, userID)
	if errors.Is(err, token.ErrNotFound) {
		return token.Record{}, ErrNotConnected
	}
	if err != nil {
		return token.Record{}, err
	}

	if rec.RefreshToken != observed.RefreshToken {
		// Rotated since the caller looked. The stored pair is the live one.
		return rec, nil
	}

	refreshCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	src := NewConfig(s.dexcom).TokenSource(refreshCtx, &oauth2.Token{RefreshToken: rec.RefreshToken})
	tok, err := src.Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) &&
			(retrieveErr.Response.StatusCode == http.StatusBadRequest ||
				retrieveErr.Response.StatusCode == http.StatusUnauthorized) {
			// A rejected refresh token never becomes valid again. Delete the
			// record so the caller is forced back through authorization.
			if delErr := s.store.Delete(ctx, userID); delErr != nil {
				s.logger.ErrorContext(ctx, "failed to delete invalid token record",
					xslog.UserID(userID),
					xslog.Error(delErr))
			}
			s.logger.WarnContext(ctx, "refresh token rejected by provider",
				xslog.UserID(userID))
			return token.Record{}, fmt.Errorf("%w: %s", ErrRefreshInvalid, string(retrieveErr.Body))
		}
		// Transient failure: keep the record, the next cycle retries.
		return token.Record{}, fmt.Errorf("refreshing token: %w", err)
	}

	next := token.Record{
		UserID:       userID,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
	}
	if next.RefreshToken == "" {
		// The provider rotates the refresh token on every grant; a missing
		// one would strand the user at next expiry.
		next.RefreshToken = rec.RefreshToken
	}

	switch err := s.store.Swap(ctx, rec.RefreshToken, next); {
	case err == nil:
		s.logger.InfoContext(ctx, "token refreshed",
			xslog.UserID(userID),
			xslog.ExpiresAt(next.ExpiresAt))
		return next, nil
	case errors.Is(err, token.ErrStale):
		// Another session rotated first. Its pair is the live one; adopt it.
		current, getErr := s.store.Get(ctx, userID)
		if errors.Is(getErr, token.ErrNotFound) {
			return token.Record{}, ErrNotConnected
		}
		if getErr != nil {
			return token.Record{}, getErr
		}
		return current, nil
	case errors.Is(err, token.ErrNotFound):
		return token.Record{}, ErrNotConnected
	default:
		return token.Record{}, fmt.Errorf("persisting rotated tokens: %w", err)
	}
}

// Disconnect removes the user's credential pair.
func (s *Service) Disconnect(ctx context.Context, userID string) error {
	return s.store.Delete(ctx, userID)
}

// Connected reports whether a live record exists for the user. The token
// store, not client-side settings, is the system of record for this.
func (s *Service) Connected(ctx context.Context, userID string) (bool, error) {
	_, err := s.store.Get(ctx, userID)
	if errors.Is(err, token.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
