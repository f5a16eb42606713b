package config

import (
	"time"
)

// Config captures every runtime setting; toml tags name the keys of the optional file.
type Config struct {
	MySQLDSN       string        `toml:"mysql_dsn"`
	ServerID       uint32        `toml:"server_id"`
	Flavor         string        `toml:"flavor"`
	Database       string        `toml:"database"`
	RedisURL       string        `toml:"redis_url"`
	CheckpointKey  string        `toml:"checkpoint_key"`
	CheckpointTTL  time.Duration `toml:"checkpoint_ttl"`
	CheckpointFreq time.Duration `toml:"checkpoint_interval"`
	NATSURLs       []string      `toml:"nats_urls"`
	NATSUsername   string        `toml:"nats_username"`
	NATSPassword   string        `toml:"nats_password"`
	NATSTimeout    time.Duration `toml:"nats_timeout"`
	NATSStream     string        `toml:"nats_stream"`
	HealthAddr     string        `toml:"health_addr"`
	TableFilters   []string      `toml:"table_filters"`
	Debug          bool          `toml:"debug"`

	// Non-canonical notification names to log; any entry enables dynamic fan-out.
	DynamicSubscriptions []string `toml:"dynamic_subscriptions"`
	// Zero keeps the table registry unbounded.
	TableRegistrySize int           `toml:"table_registry_size"`
	PacketBufferSize  int           `toml:"packet_buffer_size"`
	StatsInterval     time.Duration `toml:"stats_interval"`
}

// DefaultConfig provides safe defaults for local prototyping.
func DefaultConfig() Config {
	return Config{
		MySQLDSN:         "repl:repl@tcp(localhost:3306)/",
		ServerID:         1001,
		Flavor:           "mysql",
		Database:         "mysql",
		RedisURL:         "redis://localhost:6379",
		CheckpointKey:    "binlog-router:checkpoint",
		CheckpointTTL:    24 * time.Hour,
		CheckpointFreq:   1 * time.Second,
		NATSURLs:         []string{"nats://localhost:4222"},
		NATSTimeout:      5 * time.Second,
		NATSStream:       "BINLOG",
		HealthAddr:       ":8080",
		PacketBufferSize: 1024,
		StatsInterval:    time.Minute,
	}
}
