package config

import (
	"errors"
	"time"

	"github.com/caarlos0/env/v11"

	appenv "github.com/GamerLionLeo/CGM-Trakr/internal/env"
)

type Config struct {
	Port      string             `env:"PORT" envDefault:"8080"`
	Env       appenv.Environment `env:"ENV" envDefault:"development"`
	Database  Database           `envPrefix:"DATABASE_"`
	Redis     Redis              `envPrefix:"REDIS_"`
	Dexcom    Dexcom             `envPrefix:"DEXCOM_"`
	Auth      Auth               `envPrefix:"AUTH_"`
	Poll      Poll               `envPrefix:"POLL_"`
	RateLimit RateLimit          `envPrefix:"RATE_"`
}

type Database struct {
	URL string `env:"URL,required"`
}

type Redis struct {
	URL string `env:"URL" envDefault:"redis://localhost:6379/0"`
}

// Dexcom holds the provider client credentials. They are deliberately not
// marked required: their absence is a hard error for the operations that
// use them, not for process start.
type Dexcom struct {
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	RedirectURL  string `env:"REDIRECT_URI"`
	BaseURL      string `env:"BASE_URL" envDefault:"https://api.dexcom.com"`
}

var ErrDexcomConfigMissing = errors.New("dexcom client credentials (CLIENT_ID, CLIENT_SECRET, REDIRECT_URI) are not configured")

func (d Dexcom) Validate() error {
	if d.ClientID == "" || d.ClientSecret == "" || d.RedirectURL == "" {
		return ErrDexcomConfigMissing
	}
	return nil
}

type Auth struct {
	JWTSecret string        `env:"JWT_SECRET,required"`
	TokenTTL  time.Duration `env:"TOKEN_TTL" envDefault:"24h"`
}

type Poll struct {
	// Interval matches the provider's data cadence: Dexcom publishes a new
	// EGV roughly every 5 minutes.
	Interval time.Duration `env:"INTERVAL" envDefault:"5m"`
}

type RateLimit struct {
	Limit float64 `env:"LIMIT" envDefault:"10"`
	Burst int     `env:"BURST" envDefault:"20"`
}

func Read() (Config, error) {
	return env.ParseAs[Config]()
}
