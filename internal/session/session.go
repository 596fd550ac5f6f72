package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/GamerLionLeo/CGM-Trakr/internal/client/dexcom"
	"github.com/GamerLionLeo/CGM-Trakr/internal/config"
	"github.com/GamerLionLeo/CGM-Trakr/internal/feed"
	"github.com/GamerLionLeo/CGM-Trakr/internal/glucose"
	"github.com/GamerLionLeo/CGM-Trakr/internal/oauth"
	"github.com/GamerLionLeo/CGM-Trakr/internal/poll"
	"github.com/GamerLionLeo/CGM-Trakr/internal/settings"
	"github.com/GamerLionLeo/CGM-Trakr/internal/xslog"
)

// Hooks receive pipeline events. Callbacks run synchronously on the poll
// goroutine and must not block.
type Hooks struct {
	OnReading func(glucose.Reading)
	OnAlert   func(glucose.AlertKind, glucose.Reading)

	// OnState fires on every connection-state transition. reason is non-nil
	// when the pipeline forced the disconnect (e.g. the provider rejected
	// the refresh token and the user must re-authorize).
	OnState func(state glucose.ConnectionState, reason error)
}

// Alert is a raised notification kept for the client to collect.
type Alert struct {
	Kind    glucose.AlertKind `json:"kind"`
	Reading glucose.Reading   `json:"reading"`
	At      time.Time         `json:"at"`
}

const alertRingSize = 20

type Config struct {
	UserID string

	// Auth is nil for simulated sessions, which have no token lifecycle.
	Auth *oauth.Service

	Source   feed.Source
	Settings settings.Store
	Interval time.Duration
	Horizon  time.Duration
	Logger   *slog.Logger
}

// Session is the explicit per-user context threaded through the pipeline:
// one poller, one history window, one subscriber list. Initialized on
// login, torn down on logout.
type Session struct {
	userID   string
	auth     *oauth.Service
	source   feed.Source
	settings settings.Store
	horizon  time.Duration
	window   *glucose.Window
	poller   *poll.Poller
	logger   *slog.Logger

	mu     sync.Mutex
	hooks  []Hooks
	state  glucose.ConnectionState
	alerts []Alert
}

func New(cfg Config) *Session {
	if cfg.Horizon <= 0 {
		cfg.Horizon = glucose.DefaultHorizon
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Session{
		userID:   cfg.UserID,
		auth:     cfg.Auth,
		source:   cfg.Source,
		settings: cfg.Settings,
		horizon:  cfg.Horizon,
		window:   glucose.NewWindow(cfg.Horizon),
		logger:   cfg.Logger.With(xslog.UserID(cfg.UserID)),
		state:    glucose.Disconnected,
	}
	s.poller = poll.New(cfg.Interval, s.cycle)
	return s
}

// Connect exchanges the authorization code and starts polling. The first
// fetch happens immediately, then one per interval.
func (s *Session) Connect(ctx context.Context, code string) error {
	if s.auth != nil {
		if _, err := s.auth.Exchange(ctx, s.userID, code); err != nil {
			return err
		}
	}
	s.start(ctx)
	return nil
}

// Resume starts polling for a user whose stored connection is still live,
// without re-running the authorization flow. Returns oauth.ErrNotConnected
// when no token record exists.
func (s *Session) Resume(ctx context.Context) error {
	if s.auth != nil {
		connected, err := s.auth.Connected(ctx, s.userID)
		if err != nil {
			return err
		}
		if !connected {
			return oauth.ErrNotConnected
		}
	}
	s.start(ctx)
	return nil
}

func (s *Session) start(ctx context.Context) {
	s.setState(glucose.Connected, nil)
	// The poll loop outlives the request that started it.
	s.poller.Start(context.WithoutCancel(ctx))
}

// Disconnect stops the poller, deletes the stored credentials, and clears
// the history window. Settings survive.
func (s *Session) Disconnect(ctx context.Context) error {
	s.poller.Stop()

	var err error
	if s.auth != nil {
		err = s.auth.Disconnect(ctx, s.userID)
	}

	s.window.Clear()
	s.setState(glucose.Disconnected, nil)
	return err
}

// Polling reports whether the scheduler is in its active state.
func (s *Session) Polling() bool {
	return s.poller.Running()
}

func (s *Session) State() glucose.ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) CurrentReading() (glucose.Reading, bool) {
	return s.window.Latest()
}

// History returns the readings from the last windowHours hours, oldest
// first. Zero means the full retention horizon.
func (s *Session) History(windowHours int) []glucose.Reading {
	return s.window.Snapshot(time.Duration(windowHours) * time.Hour)
}

func (s *Session) Settings(ctx context.Context) (glucose.Settings, error) {
	out, err := s.settings.Get(ctx, s.userID)
	if err != nil {
		return glucose.Settings{}, err
	}
	out.Connection = s.State()
	return out, nil
}

func (s *Session) UpdateSettings(ctx context.Context, patch settings.Patch) (glucose.Settings, error) {
	if err := patch.Validate(); err != nil {
		return glucose.Settings{}, err
	}

	current, err := s.settings.Get(ctx, s.userID)
	if err != nil {
		return glucose.Settings{}, err
	}

	next := patch.Apply(current)
	if err := s.settings.Put(ctx, s.userID, next); err != nil {
		return glucose.Settings{}, err
	}

	next.Connection = s.State()
	return next, nil
}

func (s *Session) Subscribe(h Hooks) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, h)
}

// Alerts drains the alerts raised since the last call, oldest first.
func (s *Session) Alerts() []Alert {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.alerts
	s.alerts = nil
	return out
}

// cycle is one scheduled pass: ensure the token is fresh, fetch the
// window, append new readings, evaluate alerts. Failures never escape the
// scheduler boundary; only unrecoverable kinds stop polling.
func (s *Session) cycle(ctx context.Context) error {
	if s.auth != nil {
		if _, err := s.auth.EnsureFresh(ctx, s.userID); err != nil {
			return s.classifyRefresh(ctx, err)
		}
	}

	end := time.Now()
	start := end.Add(-s.horizon)

	readings, err := s.source.Readings(ctx, start, end)
	if dexcom.IsUnauthorized(err) && s.auth != nil {
		// The staleness check said fresh but the provider disagreed (clock
		// skew or a lost rotation race). Force one refresh and retry once.
		if _, rerr := s.auth.ForceRefresh(ctx, s.userID); rerr != nil {
			return s.classifyRefresh(ctx, rerr)
		}
		readings, err = s.source.Readings(ctx, start, end)
		if dexcom.IsUnauthorized(err) {
			// Still rejected after a fresh rotation: the authorization
			// itself is gone. Same outcome as an invalid refresh token.
			if derr := s.auth.Disconnect(ctx, s.userID); derr != nil {
				s.logger.ErrorContext(ctx, "failed to delete token record", xslog.Error(derr))
			}
			return s.idle(ctx, oauth.ErrRefreshInvalid)
		}
	}
	if err != nil {
		s.classifyFetch(ctx, err)
		return nil
	}

	if ctx.Err() != nil {
		// Session was torn down while the request was in flight; results
		// from a dead session are discarded.
		return nil
	}

	s.ingest(ctx, readings)
	return nil
}

func (s *Session) classifyRefresh(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, oauth.ErrRefreshInvalid), errors.Is(err, oauth.ErrNotConnected):
		return s.idle(ctx, err)
	case errors.Is(err, config.ErrDexcomConfigMissing):
		s.logger.ErrorContext(ctx, "provider credentials not configured, skipping cycle", xslog.Error(err))
		return nil
	default:
		s.logger.WarnContext(ctx, "token refresh failed, skipping cycle", xslog.Error(err))
		return nil
	}
}

func (s *Session) classifyFetch(ctx context.Context, err error) {
	switch {
	case errors.Is(err, dexcom.ErrMalformedResponse):
		s.logger.ErrorContext(ctx, "unexpected provider payload, skipping cycle", xslog.Error(err))
	case dexcom.IsUnavailable(err):
		s.logger.WarnContext(ctx, "provider unavailable, skipping cycle", xslog.Error(err))
	default:
		s.logger.WarnContext(ctx, "fetch failed, skipping cycle", xslog.Error(err))
	}
}

// idle transitions the scheduler to its inactive state from inside a
// cycle: history is cleared and subscribers are told to send the user back
// through authorization.
func (s *Session) idle(ctx context.Context, reason error) error {
	s.logger.WarnContext(ctx, "stopping poll loop", xslog.Error(reason))
	s.window.Clear()
	s.setState(glucose.Disconnected, reason)
	return poll.ErrStop
}

func (s *Session) ingest(ctx context.Context, readings []glucose.Reading) {
	if len(readings) == 0 {
		return
	}

	userSettings, err := s.settings.Get(ctx, s.userID)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to load settings, using defaults", xslog.Error(err))
		userSettings = glucose.DefaultSettings()
	}

	// The fetch window overlaps previous cycles; only readings newer than
	// the last appended one enter the window, preserving append order.
	var since time.Time
	if latest, ok := s.window.Latest(); ok {
		since = latest.Timestamp
	}

	appended := 0
	for _, r := range readings {
		if !since.IsZero() && !r.Timestamp.After(since) {
			continue
		}
		s.window.Append(r)
		appended++

		s.notifyReading(r)

		if kind := glucose.Evaluate(r, userSettings); kind != glucose.AlertNone {
			s.logger.InfoContext(ctx, "glucose alert raised",
				slog.String("kind", string(kind)),
				xslog.GlucoseValue(r.Value))
			s.recordAlert(kind, r)
		}
	}

	if appended > 0 {
		s.logger.DebugContext(ctx, "readings appended", xslog.Count(appended))
	}
}

func (s *Session) setState(state glucose.ConnectionState, reason error) {
	s.mu.Lock()
	if s.state == state {
		s.mu.Unlock()
		return
	}
	s.state = state
	hooks := make([]Hooks, len(s.hooks))
	copy(hooks, s.hooks)
	s.mu.Unlock()

	for _, h := range hooks {
		if h.OnState != nil {
			h.OnState(state, reason)
		}
	}
}

func (s *Session) notifyReading(r glucose.Reading) {
	s.mu.Lock()
	hooks := make([]Hooks, len(s.hooks))
	copy(hooks, s.hooks)
	s.mu.Unlock()

	for _, h := range hooks {
		if h.OnReading != nil {
			h.OnReading(r)
		}
	}
}

func (s *Session) recordAlert(kind glucose.AlertKind, r glucose.Reading) {
	s.mu.Lock()
	s.alerts = append(s.alerts, Alert{Kind: kind, Reading: r, At: time.Now()})
	if len(s.alerts) > alertRingSize {
		s.alerts = s.alerts[len(s.alerts)-alertRingSize:]
	}
	hooks := make([]Hooks, len(s.hooks))
	copy(hooks, s.hooks)
	s.mu.Unlock()

	for _, h := range hooks {
		if h.OnAlert != nil {
			h.OnAlert(kind, r)
		}
	}
}
