// Package config loads the server-wide defaults of §4.N from environment
// variables (optionally backed by a .env file), following the reference
// repository's env-first loader convention (internal/config/loader.go in the
// Manifold pack entry): read each variable, fall back to a named default when
// absent, never fail on an unset optional value.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Defaults mirror §6's documented values.
const (
	DefaultNodeLimit           = 1 << 20 // 1 MiB
	DefaultMaxNameBytes        = 255
	DefaultTicketTTL           = 3600 * time.Second
	DefaultCommitTicketTTL     = 300 * time.Second
	DefaultPendingAuthTTL      = 600 * time.Second
	DefaultAuthorizedPubkeyTTL = 30 * 24 * time.Hour
	DefaultSignedRequestSkew   = 300 * time.Second
	DefaultTreeWalkBudget      = 1000
	DefaultRateLimitCapacity   = 20
	DefaultRateLimitRefill     = 30 * time.Second
	DefaultReaperInterval      = 5 * time.Minute
	DefaultListenAddr          = "127.0.0.1:8077"
)

// Config holds every tunable the engine's components read at startup
// (§4.N). Each field is sourced from a CAS_-prefixed environment variable
// read in Load; the variable names do not always mirror the field names
// (NodeLimit comes from CAS_NODE_LIMIT_BYTES, DelegatedAuthURL from
// CAS_AUTH_URL).
type Config struct {
	ListenAddr string

	NodeLimit    int64
	MaxNameBytes int

	TicketTTL           time.Duration
	CommitTicketTTL     time.Duration
	PendingAuthTTL      time.Duration
	AuthorizedPubkeyTTL time.Duration
	SignedRequestSkew   time.Duration

	TreeWalkBudget int

	RateLimitCapacity int
	RateLimitRefill   time.Duration

	ReaperInterval time.Duration

	DelegatedAuthURL string
}

// Load reads Config from the environment, optionally overlaid by a .env file
// in the working directory (ignored if absent, matching the reference
// loader's `_ = godotenv.Overload()` convention — a missing .env is not an
// error).
func Load() (Config, error) {
	_ = godotenv.Overload()

	cfg := Config{
		ListenAddr:          firstNonEmpty(os.Getenv("CAS_LISTEN_ADDR"), DefaultListenAddr),
		NodeLimit:           DefaultNodeLimit,
		MaxNameBytes:        DefaultMaxNameBytes,
		TicketTTL:           DefaultTicketTTL,
		CommitTicketTTL:     DefaultCommitTicketTTL,
		PendingAuthTTL:      DefaultPendingAuthTTL,
		AuthorizedPubkeyTTL: DefaultAuthorizedPubkeyTTL,
		SignedRequestSkew:   DefaultSignedRequestSkew,
		TreeWalkBudget:      DefaultTreeWalkBudget,
		RateLimitCapacity:   DefaultRateLimitCapacity,
		RateLimitRefill:     DefaultRateLimitRefill,
		ReaperInterval:      DefaultReaperInterval,
		DelegatedAuthURL:    os.Getenv("CAS_AUTH_URL"),
	}

	if v := strings.TrimSpace(os.Getenv("CAS_NODE_LIMIT_BYTES")); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("config: CAS_NODE_LIMIT_BYTES must be a positive integer, got %q", v)
		}
		cfg.NodeLimit = n
	}
	if v := strings.TrimSpace(os.Getenv("CAS_MAX_NAME_BYTES")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("config: CAS_MAX_NAME_BYTES must be a positive integer, got %q", v)
		}
		cfg.MaxNameBytes = n
	}
	if err := parseDurationEnv("CAS_TICKET_TTL_SECONDS", &cfg.TicketTTL); err != nil {
		return Config{}, err
	}
	if err := parseDurationEnv("CAS_COMMIT_TICKET_TTL_SECONDS", &cfg.CommitTicketTTL); err != nil {
		return Config{}, err
	}
	if err := parseDurationEnv("CAS_PENDING_AUTH_TTL_SECONDS", &cfg.PendingAuthTTL); err != nil {
		return Config{}, err
	}
	if err := parseDurationEnv("CAS_AUTHORIZED_PUBKEY_TTL_SECONDS", &cfg.AuthorizedPubkeyTTL); err != nil {
		return Config{}, err
	}
	if err := parseDurationEnv("CAS_SIGNED_REQUEST_SKEW_SECONDS", &cfg.SignedRequestSkew); err != nil {
		return Config{}, err
	}
	if err := parseDurationEnv("CAS_RATE_LIMIT_REFILL_SECONDS", &cfg.RateLimitRefill); err != nil {
		return Config{}, err
	}
	if err := parseDurationEnv("CAS_REAPER_INTERVAL_SECONDS", &cfg.ReaperInterval); err != nil {
		return Config{}, err
	}
	if v := strings.TrimSpace(os.Getenv("CAS_TREE_WALK_BUDGET")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("config: CAS_TREE_WALK_BUDGET must be a positive integer, got %q", v)
		}
		cfg.TreeWalkBudget = n
	}
	if v := strings.TrimSpace(os.Getenv("CAS_RATE_LIMIT_CAPACITY")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("config: CAS_RATE_LIMIT_CAPACITY must be a positive integer, got %q", v)
		}
		cfg.RateLimitCapacity = n
	}

	return cfg, nil
}

func parseDurationEnv(name string, dst *time.Duration) error {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return nil
	}
	seconds, err := strconv.Atoi(v)
	if err != nil || seconds <= 0 {
		return fmt.Errorf("config: %s must be a positive integer number of seconds, got %q", name, v)
	}
	*dst = time.Duration(seconds) * time.Second
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
