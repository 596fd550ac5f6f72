package oauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/GamerLionLeo/CGM-Trakr/internal/config"
	"github.com/GamerLionLeo/CGM-Trakr/internal/token"
)

func testDexcomConfig(baseURL string) config.Dexcom {
	return config.Dexcom{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "https://app.example.com/callback",
		BaseURL:      baseURL,
	}
}

func newTestService(t *testing.T, handler http.HandlerFunc) (*Service, *token.MemoryStore) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	store := token.NewMemoryStore()
	return NewService(testDexcomConfig(srv.URL), store, slog.New(slog.DiscardHandler)), store
}

func tokenResponse(w http.ResponseWriter, access, refresh string, expiresIn int) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"access_token":%q,"token_type":"Bearer","refresh_token":%q,"expires_in":%d}`,
		access, refresh, expiresIn)
}

func TestExchangePersistsRecord(t *testing.T) {
	t.Parallel()

	svc, store := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != tokenPath {
			t.Errorf("token request path = %q, want %q", r.URL.Path, tokenPath)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parsing token request form: %v", err)
		}
		if got := r.PostForm.Get("grant_type"); got != "authorization_code" {
			t.Errorf("grant_type = %q, want authorization_code", got)
		}
		if got := r.PostForm.Get("code"); got != "ABC123" {
			t.Errorf("code = %q, want ABC123", got)
		}
		if got := r.PostForm.Get("client_id"); got != "client-id" {
			t.Errorf("client_id = %q, want form-encoded client-id", got)
		}
		tokenResponse(w, "access-1", "refresh-1", 3600)
	})

	before := time.Now()
	rec, err := svc.Exchange(context.Background(), "u1", "ABC123")
	if err != nil {
		t.Fatalf("Exchange: %v", err)
	}

	if rec.AccessToken != "access-1" || rec.RefreshToken != "refresh-1" {
		t.Errorf("record = %+v, want the exchanged pair", rec)
	}
	if rec.ExpiresAt.Before(before.Add(59 * time.Minute)) {
		t.Errorf("ExpiresAt = %v, want roughly an hour out", rec.ExpiresAt)
	}

	stored, err := store.Get(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Get after Exchange: %v", err)
	}
	if stored != rec {
		t.Errorf("stored record %+v differs from returned %+v", stored, rec)
	}
}

func TestExchangeRejectedCode(t *testing.T) {
	t.Parallel()

	svc, store := newTestService(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":"invalid_grant"}`)
	})

	_, err := svc.Exchange(context.Background(), "u1", "already-used")
	if !errors.Is(err, ErrExchangeFailed) {
		t.Fatalf("Exchange error = %v, want ErrExchangeFailed", err)
	}

	if _, err := store.Get(context.Background(), "u1"); !errors.Is(err, token.ErrNotFound) {
		t.Errorf("record persisted after failed exchange: %v", err)
	}
}

func TestExchangeWithoutCredentials(t *testing.T) {
	t.Parallel()

	svc := NewService(config.Dexcom{}, token.NewMemoryStore(), slog.New(slog.DiscardHandler))

	_, err := svc.Exchange(context.Background(), "u1", "ABC123")
	if !errors.Is(err, config.ErrDexcomConfigMissing) {
		t.Fatalf("Exchange error = %v, want ErrDexcomConfigMissing", err)
	}
}

func TestEnsureFreshNotConnected(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t, func(_ http.ResponseWriter, _ *http.Request) {
		t.Error("unexpected provider call for an unconnected user")
	})

	_, err := svc.EnsureFresh(context.Background(), "u1")
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("EnsureFresh error = %v, want ErrNotConnected", err)
	}
}

func TestEnsureFreshSkipsProviderWhenFresh(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	svc, store := newTestService(t, func(_ http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
	})

	rec := token.Record{
		UserID:       "u1",
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		ExpiresAt:    time.Now().Add(time.Hour),
	}
	if err := store.Upsert(context.Background(), rec); err != nil {
		t.Fatal(err)
	}

	got, err := svc.EnsureFresh(context.Background(), "u1")
	if err != nil {
		t.Fatalf("EnsureFresh: %v", err)
	}
	if got != rec {
		t.Errorf("EnsureFresh = %+v, want stored record unchanged", got)
	}
	if n := calls.Load(); n != 0 {
		t.Errorf("provider called %d times for a fresh token, want 0", n)
	}
}

func TestEnsureFreshRotatesStaleToken(t *testing.T) {
	t.Parallel()

	svc, store := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parsing token request form: %v", err)
		}
		if got := r.PostForm.Get("grant_type"); got != "refresh_token" {
			t.Errorf("grant_type = %q, want refresh_token", got)
		}
		if got := r.PostForm.Get("refresh_token"); got != "refresh-1" {
			t.Errorf("refresh_token = %q, want refresh-1", got)
		}
		tokenResponse(w, "access-2", "refresh-2", 3600)
	})

	stale := token.Record{
		UserID:       "u1",
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		ExpiresAt:    time.Now().Add(time.Minute), // inside the skew window
	}
	if err := store.Upsert(context.Background(), stale); err != nil {
		t.Fatal(err)
	}

	got, err := svc.EnsureFresh(context.Background(), "u1")
	if err != nil {
		t.Fatalf("EnsureFresh: %v", err)
	}

	if got.AccessToken != "access-2" || got.RefreshToken != "refresh-2" {
		t.Errorf("rotated record = %+v, want the provider's new pair", got)
	}
	if !got.ExpiresAt.After(stale.ExpiresAt) {
		t.Errorf("ExpiresAt %v did not increase past %v", got.ExpiresAt, stale.ExpiresAt)
	}

	stored, err := store.Get(context.Background(), "u1")
	if err != nil {
		t.Fatal(err)
	}
	if stored.RefreshToken == "refresh-1" {
		t.Error("superseded refresh token still stored after rotation")
	}
	if stored != got {
		t.Errorf("stored record %+v differs from returned %+v", stored, got)
	}
}

func TestRefreshKeepsOldTokenWhenProviderOmitsRotation(t *testing.T) {
	t.Parallel()

	svc, store := newTestService(t, func(w http.ResponseWriter, _ *http.Request) {
		tokenResponse(w, "access-2", "", 3600)
	})

	if err := store.Upsert(context.Background(), token.Record{
		UserID:       "u1",
		RefreshToken: "refresh-1",
		ExpiresAt:    time.Now().Add(-time.Minute),
	}); err != nil {
		t.Fatal(err)
	}

	got, err := svc.EnsureFresh(context.Background(), "u1")
	if err != nil {
		t.Fatalf("EnsureFresh: %v", err)
	}
	if got.RefreshToken != "refresh-1" {
		t.Errorf("RefreshToken = %q, want the previous token carried forward", got.RefreshToken)
	}
}

func TestRefreshRejectedDeletesRecord(t *testing.T) {
	t.Parallel()

	svc, store := newTestService(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":"invalid_grant"}`)
	})

	if err := store.Upsert(context.Background(), token.Record{
		UserID:       "u1",
		RefreshToken: "revoked",
		ExpiresAt:    time.Now().Add(-time.Minute),
	}); err != nil {
		t.Fatal(err)
	}

	_, err := svc.EnsureFresh(context.Background(), "u1")
	if !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("EnsureFresh error = %v, want ErrRefreshInvalid", err)
	}

	if _, err := store.Get(context.Background(), "u1"); !errors.Is(err, token.ErrNotFound) {
		t.Error("record survived a rejected refresh; user cannot recover without re-auth")
	}
}

func TestRefreshTransientFailureKeepsRecord(t *testing.T) {
	t.Parallel()

	svc, store := newTestService(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	rec := token.Record{
		UserID:       "u1",
		RefreshToken: "refresh-1",
		ExpiresAt:    time.Now().Add(-time.Minute),
	}
	if err := store.Upsert(context.Background(), rec); err != nil {
		t.Fatal(err)
	}

	_, err := svc.EnsureFresh(context.Background(), "u1")
	if err == nil {
		t.Fatal("EnsureFresh succeeded against a failing provider")
	}
	if errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("transient provider failure classified as ErrRefreshInvalid: %v", err)
	}

	stored, getErr := store.Get(context.Background(), "u1")
	if getErr != nil {
		t.Fatalf("record deleted after transient failure: %v", getErr)
	}
	if stored.RefreshToken != "refresh-1" {
		t.Errorf("stored refresh token = %q, want refresh-1 preserved", stored.RefreshToken)
	}
}

func TestConcurrentRefreshCallsProviderOnce(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	svc, store := newTestService(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		time.Sleep(20 * time.Millisecond) // widen the overlap window
		tokenResponse(w, "access-2", "refresh-2", 3600)
	})

	if err := store.Upsert(context.Background(), token.Record{
		UserID:       "u1",
		RefreshToken: "refresh-1",
		ExpiresAt:    time.Now().Add(-time.Minute),
	}); err != nil {
		t.Fatal(err)
	}

	const workers = 8
	results := make([]token.Record, workers)
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec, err := svc.EnsureFresh(context.Background(), "u1")
			if err != nil {
				t.Errorf("EnsureFresh: %v", err)
				return
			}
			results[i] = rec
		}()
	}
	wg.Wait()

	if n := calls.Load(); n != 1 {
		t.Errorf("provider called %d times, want 1", n)
	}
	for i, rec := range results {
		if rec.RefreshToken != "refresh-2" {
			t.Errorf("worker %d got refresh token %q, want the rotated refresh-2", i, rec.RefreshToken)
		}
	}
}

// rereadStore rotates the record between the caller's first read and the
// refresh path's reread, as a concurrent session's completed refresh would.
type rereadStore struct {
	mu      sync.Mutex
	gets    int
	first   token.Record
	rotated token.Record

	upserts atomic.Int32
	swaps   atomic.Int32
}

func (s *rereadStore) Get(context.Context, string) (token.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets++
	if s.gets == 1 {
		return s.first, nil
	}
	return s.rotated, nil
}

func (s *rereadStore) Upsert(context.Context, token.Record) error {
	s.upserts.Add(1)
	return nil
}

func (s *rereadStore) Swap(context.Context, string, token.Record) error {
	s.swaps.Add(1)
	return nil
}

func (s *rereadStore) Delete(context.Context, string) error { return nil }

func TestRefreshAdoptsConcurrentRotationWithoutProviderCall(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		tokenResponse(w, "access-3", "refresh-3", 3600)
	}))
	t.Cleanup(srv.Close)

	rotated := token.Record{
		UserID:       "u1",
		AccessToken:  "access-2",
		RefreshToken: "refresh-2",
		ExpiresAt:    time.Now().Add(time.Hour),
	}
	store := &rereadStore{
		first: token.Record{
			UserID:       "u1",
			AccessToken:  "access-1",
			RefreshToken: "refresh-1",
			ExpiresAt:    time.Now().Add(-time.Minute),
		},
		rotated: rotated,
	}

	svc := NewService(testDexcomConfig(srv.URL), store, slog.New(slog.DiscardHandler))

	got, err := svc.EnsureFresh(context.Background(), "u1")
	if err != nil {
		t.Fatalf("EnsureFresh: %v", err)
	}
	if got != rotated {
		t.Errorf("record = %+v, want the concurrently rotated pair adopted", got)
	}
	if n := calls.Load(); n != 0 {
		t.Errorf("provider called %d times, want 0; the stored rotation must be adopted, not re-refreshed", n)
	}
	if n := store.swaps.Load(); n != 0 {
		t.Errorf("Swap called %d times, want 0", n)
	}
	if n := store.upserts.Load(); n != 0 {
		t.Errorf("Upsert called %d times, want 0", n)
	}
}

// staleSwapStore loses the rotation race at the conditional update: the
// record changes hands after the reread, so Swap observes a mismatched
// refresh token.
type staleSwapStore struct {
	mu      sync.Mutex
	current token.Record
	winner  token.Record
	swapped bool
	deletes atomic.Int32
}

func (s *staleSwapStore) Get(context.Context, string) (token.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.swapped {
		return s.winner, nil
	}
	return s.current, nil
}

func (s *staleSwapStore) Upsert(context.Context, token.Record) error { return nil }

func (s *staleSwapStore) Swap(context.Context, string, token.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.swapped = true
	return token.ErrStale
}

func (s *staleSwapStore) Delete(context.Context, string) error {
	s.deletes.Add(1)
	return nil
}

func TestRefreshLostSwapAdoptsWinner(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		tokenResponse(w, "access-loser", "refresh-loser", 3600)
	}))
	t.Cleanup(srv.Close)

	winner := token.Record{
		UserID:       "u1",
		AccessToken:  "access-winner",
		RefreshToken: "refresh-winner",
		ExpiresAt:    time.Now().Add(time.Hour),
	}
	store := &staleSwapStore{
		current: token.Record{
			UserID:       "u1",
			AccessToken:  "access-1",
			RefreshToken: "refresh-1",
			ExpiresAt:    time.Now().Add(-time.Minute),
		},
		winner: winner,
	}

	svc := NewService(testDexcomConfig(srv.URL), store, slog.New(slog.DiscardHandler))

	got, err := svc.EnsureFresh(context.Background(), "u1")
	if err != nil {
		t.Fatalf("EnsureFresh: %v", err)
	}
	if got != winner {
		t.Errorf("record = %+v, want the winner's pair adopted after the lost swap", got)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("provider called %d times, want 1", n)
	}
	if n := store.deletes.Load(); n != 0 {
		t.Errorf("Delete called %d times after a lost race, want 0; only a provider rejection deletes", n)
	}
}

func TestForceRefreshRotatesFreshToken(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	svc, store := newTestService(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		tokenResponse(w, "access-2", "refresh-2", 3600)
	})

	if err := store.Upsert(context.Background(), token.Record{
		UserID:       "u1",
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		ExpiresAt:    time.Now().Add(time.Hour), // fresh by the skew check
	}); err != nil {
		t.Fatal(err)
	}

	got, err := svc.ForceRefresh(context.Background(), "u1")
	if err != nil {
		t.Fatalf("ForceRefresh: %v", err)
	}
	if got.AccessToken != "access-2" {
		t.Errorf("AccessToken = %q, want the rotated access-2", got.AccessToken)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("provider called %d times, want 1", n)
	}
}

func TestDisconnectAndConnected(t *testing.T) {
	t.Parallel()

	svc, store := newTestService(t, func(_ http.ResponseWriter, _ *http.Request) {})
	ctx := context.Background()

	ok, err := svc.Connected(ctx, "u1")
	if err != nil || ok {
		t.Fatalf("Connected before any record = %v, %v; want false, nil", ok, err)
	}

	if err := store.Upsert(ctx, token.Record{UserID: "u1", RefreshToken: "r1"}); err != nil {
		t.Fatal(err)
	}
	ok, err = svc.Connected(ctx, "u1")
	if err != nil || !ok {
		t.Fatalf("Connected with a record = %v, %v; want true, nil", ok, err)
	}

	if err := svc.Disconnect(ctx, "u1"); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	ok, err = svc.Connected(ctx, "u1")
	if err != nil || ok {
		t.Fatalf("Connected after disconnect = %v, %v; want false, nil", ok, err)
	}
}

func TestAuthCodeURL(t *testing.T) {
	t.Parallel()

	svc := NewService(testDexcomConfig("https://api.dexcom.example"), token.NewMemoryStore(), slog.New(slog.DiscardHandler))

	url, err := svc.AuthCodeURL("state-token")
	if err != nil {
		t.Fatalf("AuthCodeURL: %v", err)
	}
	for _, want := range []string{
		"https://api.dexcom.example" + authPath,
		"state=state-token",
		"client_id=client-id",
		"response_type=code",
	} {
		if !strings.Contains(url, want) {
			t.Errorf("AuthCodeURL %q missing %q", url, want)
		}
	}

	if _, err := NewService(config.Dexcom{}, token.NewMemoryStore(), slog.New(slog.DiscardHandler)).AuthCodeURL("s"); !errors.Is(err, config.ErrDexcomConfigMissing) {
		t.Errorf("AuthCodeURL without credentials = %v, want ErrDexcomConfigMissing", err)
	}
}
