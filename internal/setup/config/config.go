package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

var (
	ErrConfigFileNotFound   = errors.New("could not find config file in any config path")
	ErrConfigVersionMissing = errors.New("config file is missing version field")
	ErrConfigVersionWrong   = errors.New("config file version mismatch")
)

// CurrentVersion is the expected version of the config file.
const CurrentVersion = 1

// Config represents the entire application configuration.
type Config struct {
	// Version of the config file.
	Version    int        `koanf:"version"`
	Debug      Debug      `koanf:"debug"`
	Server     Server     `koanf:"server"`
	PostgreSQL PostgreSQL `koanf:"postgresql"`
	Redis      Redis      `koanf:"redis"`
	Realtime   Realtime   `koanf:"realtime"`
	Trending   Trending   `koanf:"trending"`
}

// Debug contains debug-related configuration.
type Debug struct {
	// Log level (debug, info, warn, error).
	LogLevel string `koanf:"log_level"`
	// Enable pprof debugging.
	EnablePprof bool `koanf:"enable_pprof"`
	// pprof server port.
	PprofPort int `koanf:"pprof_port"`
}

// Server contains HTTP server configuration.
type Server struct {
	// Listen hostname.
	Host string `koanf:"host"`
	// Listen port.
	Port int `koanf:"port"`
	// Read timeout in seconds.
	ReadTimeout int `koanf:"read_timeout"`
	// Write timeout in seconds.
	WriteTimeout int `koanf:"write_timeout"`
}

// PostgreSQL contains database connection configuration.
type PostgreSQL struct {
	// Database hostname.
	Host string `koanf:"host"`
	// Database port.
	Port int `koanf:"port"`
	// Database username.
	User string `koanf:"user"`
	// Database password.
	Password string `koanf:"password"`
	// Database name.
	DBName string `koanf:"db_name"`
	// Maximum open connections.
	MaxOpenConns int `koanf:"max_open_conns"`
	// Maximum idle connections.
	MaxIdleConns int `koanf:"max_idle_conns"`
	// Connection lifetime in minutes.
	MaxLifetime int `koanf:"max_lifetime"`
	// Idle timeout in minutes.
	MaxIdleTime int `koanf:"max_idle_time"`
}

// Redis contains Redis connection configuration.
type Redis struct {
	// Redis hostname.
	Host string `koanf:"host"`
	// Redis port.
	Port int `koanf:"port"`
	// Redis username.
	Username string `koanf:"username"`
	// Redis password.
	Password string `koanf:"password"`
}

// Realtime contains WebSocket fan-out configuration.
type Realtime struct {
	// Interval between server pings in seconds.
	PingInterval int `koanf:"ping_interval"`
	// Seconds of silence before a connection is dropped.
	ClientTimeout int `koanf:"client_timeout"`
	// Outbound event buffer size per connection.
	SendBuffer int `koanf:"send_buffer"`
	// Maximum size of inbound client messages in bytes.
	MaxMessageSize int64 `koanf:"max_message_size"`
}

// Trending contains trending ranker configuration.
type Trending struct {
	// Recompute cadence in seconds.
	Interval int `koanf:"interval"`
	// Vote counting window in hours.
	WindowHours int `koanf:"window_hours"`
	// Score decay half-life in hours.
	HalfLifeHours float64 `koanf:"half_life_hours"`
	// Weight applied to the likes counter.
	LikeWeight float64 `koanf:"like_weight"`
	// Maximum number of ranked polls kept per snapshot.
	MaxEntries int `koanf:"max_entries"`
	// Maximum concurrent per-poll recomputes.
	MaxConcurrent int `koanf:"max_concurrent"`
}

// LoadConfig loads the configuration from the first config path that has one.
// Returns the config along with the used config directory.
func LoadConfig() (*Config, string, error) {
	k := koanf.New(".")

	// Get user's home directory
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, "", fmt.Errorf("failed to get home directory: %w", err)
	}

	// List search paths
	configPaths := []string{
		".pulsevote",
		homeDir + "/.pulsevote/config",
		"/etc/pulsevote/config",
		"/app/config",
		"config",
		".",
	}

	var usedConfigPath string

	for _, path := range configPaths {
		configPath := path + "/config.toml"
		if err := k.Load(file.Provider(configPath), toml.Parser()); err == nil {
			usedConfigPath = path
			break
		}
	}

	if usedConfigPath == "" {
		return nil, "", fmt.Errorf("%w: config.toml", ErrConfigFileNotFound)
	}

	var config Config
	if err := k.Unmarshal("", &config); err != nil {
		return nil, "", fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := checkConfigVersion(config.Version); err != nil {
		return nil, "", err
	}

	return &config, usedConfigPath, nil
}

// checkConfigVersion checks if the config file version is correct.
func checkConfigVersion(current int) error {
	if current == 0 {
		return fmt.Errorf("%w: config.toml", ErrConfigVersionMissing)
	}

	if current != CurrentVersion {
		return fmt.Errorf("%w: config.toml (got: %d, expected: %d)",
			ErrConfigVersionWrong, current, CurrentVersion)
	}

	return nil
}
