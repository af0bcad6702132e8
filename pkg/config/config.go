package config

import (
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Flags holds parsed command-line flag values and which were set.
type Flags struct {
	Addr   string
	DB     string
	Config string
	Set    map[string]bool
}

// EffectiveConfigResult is the merged view of flags, env and config file
// that the rest of the process consumes.
type EffectiveConfigResult struct {
	Config *Config
	Addr   string
	DBPath string
	Source string // "flags", "env" or "config"
}

// ParseCommandFlags parses command-line flags and returns them as a
// Flags struct.
func ParseCommandFlags() Flags {
	addrPtr := flag.String("addr", ":8080", "HTTP listen address")
	dbPtr := flag.String("db", "./.database", "Pebble DB path")
	cfgPtr := flag.String("config", "./config.yaml", "Path to config file")
	flag.Parse()
	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return Flags{Addr: *addrPtr, DB: *dbPtr, Config: *cfgPtr, Set: set}
}

// Load reads and parses the YAML config file at path.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &cfg, nil
}

// ResolveConfigPath picks the config path: an explicit flag wins, then the
// CHATRELAY_CONFIG env var, then the flag default.
func ResolveConfigPath(flagVal string, flagSet bool) string {
	if flagSet {
		return flagVal
	}
	if p := os.Getenv("CHATRELAY_CONFIG"); p != "" {
		return p
	}
	return flagVal
}

// applyEnv overlays CHATRELAY_* environment variables onto cfg and
// reports whether any were present.
func applyEnv(cfg *Config) bool {
	used := false
	setStr := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
			used = true
		}
	}
	setStr(&cfg.Server.Address, "CHATRELAY_ADDRESS")
	if v := os.Getenv("CHATRELAY_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = p
			used = true
		}
	}
	setStr(&cfg.Server.DBPath, "CHATRELAY_DB_PATH")
	setStr(&cfg.Upstream.ThreadStore.BaseURL, "CHATRELAY_THREADSTORE_URL")
	setStr(&cfg.Upstream.ThreadStore.Token, "CHATRELAY_THREADSTORE_TOKEN")
	setStr(&cfg.Upstream.Gateway.BaseURL, "CHATRELAY_GATEWAY_URL")
	setStr(&cfg.Upstream.Gateway.Token, "CHATRELAY_GATEWAY_TOKEN")
	setStr(&cfg.Webhook.SigningSecret, "CHATRELAY_SIGNING_SECRET")
	setStr(&cfg.Logging.Level, "CHATRELAY_LOG_LEVEL")
	return used
}

// LoadEffective merges config file, environment and flags into the
// canonical runtime view. Flags win over env, env wins over file.
func LoadEffective(flags Flags) (EffectiveConfigResult, error) {
	cfgPath := ResolveConfigPath(flags.Config, flags.Set["config"])
	cfg, err := Load(cfgPath)
	source := "config"
	if err != nil {
		if !os.IsNotExist(err) {
			return EffectiveConfigResult{}, err
		}
		cfg = &Config{}
		source = "defaults"
	}
	if applyEnv(cfg) {
		source = "env"
	}

	addr := cfg.Addr()
	if flags.Set["addr"] || addr == "" {
		addr = flags.Addr
		source = "flags"
	}
	dbPath := cfg.Server.DBPath
	if flags.Set["db"] || dbPath == "" {
		dbPath = flags.DB
	}
	return EffectiveConfigResult{Config: cfg, Addr: addr, DBPath: dbPath, Source: source}, nil
}

// Addr renders the configured listen address, or "" when unset.
func (c *Config) Addr() string {
	if c.Server.Address == "" && c.Server.Port == 0 {
		return ""
	}
	return net.JoinHostPort(c.Server.Address, strconv.Itoa(c.Server.Port))
}
