package handler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	go_json "github.com/goccy/go-json"
	"golang.org/x/oauth2"

	"github.com/GamerLionLeo/CGM-Trakr/internal/client/dexcom"
	"github.com/GamerLionLeo/CGM-Trakr/internal/feed"
	"github.com/GamerLionLeo/CGM-Trakr/internal/oauth"
	"github.com/GamerLionLeo/CGM-Trakr/internal/session"
	"github.com/GamerLionLeo/CGM-Trakr/internal/settings"
	"github.com/GamerLionLeo/CGM-Trakr/internal/token"
	"github.com/GamerLionLeo/CGM-Trakr/internal/xcontext"
)

type stubAuthService struct {
	ensureCalls atomic.Int32
	forceCalls  atomic.Int32
	ensureErr   error
	forceErr    error
}

func (s *stubAuthService) AuthCodeURL(state string) (string, error) {
	return "https://provider.example/login?state=" + state, nil
}

func (s *stubAuthService) EnsureFresh(context.Context, string) (token.Record, error) {
	s.ensureCalls.Add(1)
	return token.Record{UserID: "u1", AccessToken: "access-1", ExpiresAt: time.Now().Add(time.Hour)}, s.ensureErr
}

func (s *stubAuthService) ForceRefresh(context.Context, string) (token.Record, error) {
	s.forceCalls.Add(1)
	return token.Record{UserID: "u1", AccessToken: "access-2", ExpiresAt: time.Now().Add(time.Hour)}, s.forceErr
}

func testSessions() *session.Manager {
	return session.NewManager(func(userID string) *session.Session {
		return session.New(session.Config{
			UserID:   userID,
			Source:   feed.NewSimulatedSource(1),
			Settings: settings.NewMemoryStore(),
			Interval: time.Hour,
		})
	})
}

func newDevicesHandler(t *testing.T, auth AuthService, provider http.HandlerFunc) *Dexcom {
	t.Helper()

	srv := httptest.NewServer(provider)
	t.Cleanup(srv.Close)

	clients := func(string) *dexcom.Client {
		return dexcom.New(
			oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "access-1"}),
			dexcom.WithBaseURL(srv.URL),
		)
	}
	return NewDexcom(testSessions(), auth, clients)
}

func getDevices(t *testing.T, h *Dexcom) (int, map[string]any) {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, "/api/dexcom/devices", nil)
	req = req.WithContext(xcontext.SetUserID(req.Context(), "u1"))
	rec := httptest.NewRecorder()

	h.HandleDevices(rec, req)

	var body map[string]any
	_ = go_json.Unmarshal(rec.Body.Bytes(), &body)
	return rec.Code, body
}

func TestHandleDevicesEnsuresFreshToken(t *testing.T) {
	t.Parallel()

	auth := &stubAuthService{}
	h := newDevicesHandler(t, auth, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"records":[{"transmitterId":"8JK123","transmitterGeneration":"g6","displayDevice":"iOS","lastUploadDate":"2026-08-31T12:00:00"}]}`)
	})

	status, body := getDevices(t, h)
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	if n := auth.ensureCalls.Load(); n != 1 {
		t.Errorf("EnsureFresh called %d times, want 1", n)
	}
	if n := auth.forceCalls.Load(); n != 0 {
		t.Errorf("ForceRefresh called %d times for a healthy token, want 0", n)
	}
	if devices, ok := body["devices"].([]any); !ok || len(devices) != 1 {
		t.Errorf("body = %v, want one device", body)
	}
}

func TestHandleDevicesRetriesOnceAfterUnauthorized(t *testing.T) {
	t.Parallel()

	auth := &stubAuthService{}
	var providerCalls atomic.Int32
	h := newDevicesHandler(t, auth, func(w http.ResponseWriter, _ *http.Request) {
		if providerCalls.Add(1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"fault":{"faultstring":"Invalid Access Token"}}`)
			return
		}
		fmt.Fprint(w, `{"records":[{"transmitterId":"8JK123"}]}`)
	})

	status, body := getDevices(t, h)
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200 after the forced-refresh retry", status)
	}
	if n := auth.forceCalls.Load(); n != 1 {
		t.Errorf("ForceRefresh called %d times, want exactly 1", n)
	}
	if n := providerCalls.Load(); n != 2 {
		t.Errorf("provider called %d times, want 2", n)
	}
	if devices, ok := body["devices"].([]any); !ok || len(devices) != 1 {
		t.Errorf("body = %v, want one device", body)
	}
}

func TestHandleDevicesUnauthorizedAfterRetry(t *testing.T) {
	t.Parallel()

	auth := &stubAuthService{}
	var providerCalls atomic.Int32
	h := newDevicesHandler(t, auth, func(w http.ResponseWriter, _ *http.Request) {
		providerCalls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"fault":{"faultstring":"Invalid Access Token"}}`)
	})

	status, body := getDevices(t, h)
	if status != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 when the retry is also rejected", status)
	}
	if got := body["error"]; got != "refresh_invalid" {
		t.Errorf("error code = %v, want refresh_invalid", got)
	}
	if n := auth.forceCalls.Load(); n != 1 {
		t.Errorf("ForceRefresh called %d times, want exactly 1 (no retry loop)", n)
	}
	if n := providerCalls.Load(); n != 2 {
		t.Errorf("provider called %d times, want 2", n)
	}
}

func TestHandleDevicesNotConnected(t *testing.T) {
	t.Parallel()

	auth := &stubAuthService{ensureErr: oauth.ErrNotConnected}
	var providerCalls atomic.Int32
	h := newDevicesHandler(t, auth, func(_ http.ResponseWriter, _ *http.Request) {
		providerCalls.Add(1)
	})

	status, body := getDevices(t, h)
	if status != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 without a stored connection", status)
	}
	if got := body["error"]; got != "not_connected" {
		t.Errorf("error code = %v, want not_connected", got)
	}
	if n := providerCalls.Load(); n != 0 {
		t.Errorf("provider called %d times without a valid token, want 0", n)
	}
}
