package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Load reads configuration from the TOML file named by CONFIG_FILE (if any), then applies
// environment variable overrides on top of it.
func Load() (Config, error) {
	cfg := DefaultConfig()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("decode config file %s: %w", path, err)
		}
	}

	if v := os.Getenv("MYSQL_DSN"); v != "" {
		cfg.MySQLDSN = v
	}
	if v := os.Getenv("MYSQL_SERVER_ID"); v != "" {
		if i, err := strconv.ParseUint(v, 10, 32); err == nil {
			cfg.ServerID = uint32(i)
		}
	}
	if v := os.Getenv("MYSQL_FLAVOR"); v != "" {
		cfg.Flavor = v
	}
	if v := os.Getenv("DATABASE_NAME"); v != "" {
		cfg.Database = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.RedisURL = v
	}
	if v := os.Getenv("CHECKPOINT_KEY"); v != "" {
		cfg.CheckpointKey = v
	}
	if v := os.Getenv("CHECKPOINT_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.CheckpointTTL = d
		}
	}
	if v := os.Getenv("CHECKPOINT_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.CheckpointFreq = d
		}
	}
	if v := os.Getenv("NATS_URL"); v != "" {
		cfg.NATSURLs = splitList(v)
	}
	if v := os.Getenv("NATS_USERNAME"); v != "" {
		cfg.NATSUsername = v
	}
	if v := os.Getenv("NATS_PASSWORD"); v != "" {
		cfg.NATSPassword = v
	}
	if v := os.Getenv("NATS_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.NATSTimeout = d
		}
	}
	if v := os.Getenv("NATS_STREAM"); v != "" {
		cfg.NATSStream = v
	}
	if v, ok := os.LookupEnv("HEALTH_ADDR"); ok {
		cfg.HealthAddr = v
	}
	if v := os.Getenv("TABLE_FILTERS"); v != "" {
		cfg.TableFilters = splitList(v)
	}
	if v := os.Getenv("DYNAMIC_SUBSCRIPTIONS"); v != "" {
		cfg.DynamicSubscriptions = splitList(v)
	}
	if v := strings.ToLower(os.Getenv("DEBUG")); v == "1" || v == "true" || v == "yes" {
		cfg.Debug = true
	}
	if v := os.Getenv("TABLE_REGISTRY_SIZE"); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i >= 0 {
			cfg.TableRegistrySize = i
		}
	}
	if v := os.Getenv("PACKET_BUFFER_SIZE"); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i >= 0 {
			cfg.PacketBufferSize = i
		}
	}
	if v := os.Getenv("STATS_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.StatsInterval = d
		}
	}

	return cfg, nil
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
