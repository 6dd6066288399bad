package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
)

const (
	DiscoveryLogScan = "logscan"
	DiscoveryProbe   = "probe"
)

type Settings struct {
	// Server
	AppPort string
	LogMode string

	// Chain
	RPCURL          string
	ContractAddress common.Address
	DeployBlock     uint64
	ScanChunk       uint64
	TxTimeout       time.Duration
	ReadTimeout     time.Duration

	// Discovery
	Discovery string
	ProbeFrom uint64
	ProbeTo   uint64

	// Watchers
	EventPollInterval    time.Duration
	ProviderPollInterval time.Duration

	// Redis (optional)
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	EventsChannel string

	SessionSecret []byte

	// Browser origins allowed by CORS; defaults to this server's own.
	CORSOrigins []string
}

// RedisEnabled reports whether events should go through Redis pub/sub.
func (s *Settings) RedisEnabled() bool {
	return s.RedisAddr != ""
}

// Load reads the given env files (".env" when none) and then the process
// environment. Missing files are not an error; invalid values are.
func Load(envFiles ...string) (*Settings, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load env file: %w", err)
	}

	s := &Settings{
		AppPort:       getEnv("APP_PORT", "8080"),
		LogMode:       getEnv("LOG_MODE", "development"),
		RPCURL:        os.Getenv("RPC_URL"),
		Discovery:     strings.ToLower(getEnv("DISCOVERY", DiscoveryLogScan)),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		EventsChannel: getEnv("EVENTS_CHANNEL", "credpost:events"),
	}

	var errs []error
	if s.RPCURL == "" {
		errs = append(errs, errors.New("RPC_URL is not set"))
	}

	addr := os.Getenv("CONTRACT_ADDRESS")
	switch {
	case addr == "":
		errs = append(errs, errors.New("CONTRACT_ADDRESS is not set"))
	case !common.IsHexAddress(addr):
		errs = append(errs, fmt.Errorf("CONTRACT_ADDRESS %q is not a hex address", addr))
	default:
		s.ContractAddress = common.HexToAddress(addr)
	}

	if s.Discovery != DiscoveryLogScan && s.Discovery != DiscoveryProbe {
		errs = append(errs, fmt.Errorf("DISCOVERY must be %q or %q, got %q", DiscoveryLogScan, DiscoveryProbe, s.Discovery))
	}

	s.DeployBlock = getUint(&errs, "DEPLOY_BLOCK", 0)
	s.ScanChunk = getUint(&errs, "SCAN_CHUNK", 5000)
	s.ProbeFrom = getUint(&errs, "PROBE_FROM", 1)
	s.ProbeTo = getUint(&errs, "PROBE_TO", 5)
	s.RedisDB = int(getUint(&errs, "REDIS_DB", 0))
	s.TxTimeout = getDuration(&errs, "TX_TIMEOUT", 0)
	s.ReadTimeout = getDuration(&errs, "READ_TIMEOUT", 0)
	s.EventPollInterval = getDuration(&errs, "EVENT_POLL_INTERVAL", 2*time.Second)
	s.ProviderPollInterval = getDuration(&errs, "PROVIDER_POLL_INTERVAL", 2*time.Second)

	if s.ScanChunk == 0 {
		errs = append(errs, errors.New("SCAN_CHUNK must be positive"))
	}
	if s.ProbeFrom > s.ProbeTo {
		errs = append(errs, fmt.Errorf("PROBE_FROM (%d) is after PROBE_TO (%d)", s.ProbeFrom, s.ProbeTo))
	}

	s.CORSOrigins = getList("CORS_ORIGINS", []string{
		"http://localhost:" + s.AppPort,
		"http://127.0.0.1:" + s.AppPort,
	})

	if secret := os.Getenv("SESSION_SECRET"); secret != "" {
		s.SessionSecret = []byte(secret)
	} else {
		s.SessionSecret = randomSecret()
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return s, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getList splits a comma-separated value, dropping empty items.
func getList(key string, defaultValue []string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

func getUint(errs *[]error, key string, defaultValue uint64) uint64 {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return v
}

// getDuration accepts Go durations ("30s") and bare seconds ("30").
func getDuration(errs *[]error, key string, defaultValue time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	if secs, err := strconv.ParseUint(raw, 10, 64); err == nil {
		return time.Duration(secs) * time.Second
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		*errs = append(*errs, fmt.Errorf("%s: invalid duration %q", key, raw))
		return defaultValue
	}
	return d
}

// randomSecret signs session tokens for this process only.
func randomSecret() []byte {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic("session secret: " + err.Error())
	}
	return []byte(hex.EncodeToString(b))
}
