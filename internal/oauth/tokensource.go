package oauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/oauth2"

	"github.com/GamerLionLeo/CGM-Trakr/internal/token"
)

// StoreTokenSource serves the access token currently persisted for one
// user. It never refreshes: the poll cycle runs EnsureFresh as its own step
// before any data call, so by the time the transport asks for a token the
// stored one is expected to be usable.
type StoreTokenSource struct {
	store  token.Store
	userID string
}

var _ oauth2.TokenSource = (*StoreTokenSource)(nil)

func NewStoreTokenSource(store token.Store, userID string) *StoreTokenSource {
	return &StoreTokenSource{store: store, userID: userID}
}

func (s *StoreTokenSource) Token() (*oauth2.Token, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rec, err := s.store.Get(ctx, s.userID)
	if errors.Is(err, token.ErrNotFound) {
		return nil, ErrNotConnected
	}
	if err != nil {
		return nil, fmt.Errorf("loading token record: %w", err)
	}

	return &oauth2.Token{
		AccessToken: rec.AccessToken,
		TokenType:   "Bearer",
		Expiry:      rec.ExpiresAt,
	}, nil
}
