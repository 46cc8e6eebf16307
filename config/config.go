// Package config holds the engine's configuration surface and loads it from
// YAML, TOML or JSON files.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config is the set of options recognized by the parser, the body framing
// layer, the pipelining driver and the WebSocket codec. Zero values of the
// optional limits mean "no limit"; MaxHeadSize and MaxHeaderCount are
// required.
type Config struct {
	MaxHeadSize    int `yaml:"max_head_size" toml:"max_head_size" json:"max_head_size"`
	MaxHeaderCount int `yaml:"max_header_count" toml:"max_header_count" json:"max_header_count"`
	// MaxChunkLine bounds a chunk-size line including extensions.
	MaxChunkLine int   `yaml:"max_chunk_line" toml:"max_chunk_line" json:"max_chunk_line"`
	MaxBodySize  int64 `yaml:"max_body_size" toml:"max_body_size" json:"max_body_size"`

	IdleTimeout      Duration `yaml:"idle_timeout" toml:"idle_timeout" json:"idle_timeout"`
	HandshakeTimeout Duration `yaml:"handshake_timeout" toml:"handshake_timeout" json:"handshake_timeout"`

	EnableUpgrade       bool `yaml:"enable_upgrade" toml:"enable_upgrade" json:"enable_upgrade"`
	AllowCloseDelimited bool `yaml:"allow_close_delimited" toml:"allow_close_delimited" json:"allow_close_delimited"`

	// MaxOutput is the number of buffered output bytes above which the
	// driver reports back-pressure.
	MaxOutput int `yaml:"max_output" toml:"max_output" json:"max_output"`

	MaxFramePayload int64 `yaml:"max_frame_payload" toml:"max_frame_payload" json:"max_frame_payload"`
	MaxMessageSize  int64 `yaml:"max_message_size" toml:"max_message_size" json:"max_message_size"`
	// MaxFrameSize splits outbound WebSocket messages into fragments.
	MaxFrameSize int `yaml:"max_frame_size" toml:"max_frame_size" json:"max_frame_size"`
}

// Default returns the configuration used when none is supplied.
func Default() Config {
	return Config{
		MaxHeadSize:         8 << 10,
		MaxHeaderCount:      100,
		MaxChunkLine:        4 << 10,
		MaxBodySize:         0,
		IdleTimeout:         Duration(60 * time.Second),
		HandshakeTimeout:    Duration(10 * time.Second),
		EnableUpgrade:       true,
		AllowCloseDelimited: true,
		MaxOutput:           256 << 10,
		MaxFramePayload:     16 << 20,
		MaxMessageSize:      32 << 20,
		MaxFrameSize:        64 << 10,
	}
}

// Validate reports the first invalid option.
func (c Config) Validate() error {
	switch {
	case c.MaxHeadSize <= 0:
		return errors.New("config: max_head_size must be positive")
	case c.MaxHeaderCount <= 0:
		return errors.New("config: max_header_count must be positive")
	case c.MaxChunkLine < 0:
		return errors.New("config: max_chunk_line must not be negative")
	case c.MaxBodySize < 0:
		return errors.New("config: max_body_size must not be negative")
	case c.IdleTimeout < 0 || c.HandshakeTimeout < 0:
		return errors.New("config: timeouts must not be negative")
	case c.MaxOutput < 0:
		return errors.New("config: max_output must not be negative")
	case c.MaxFramePayload < 0 || c.MaxMessageSize < 0 || c.MaxFrameSize < 0:
		return errors.New("config: websocket limits must not be negative")
	}
	return nil
}

// Load reads a configuration file. Options missing from the file keep their
// Default values.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse TOML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return cfg, fmt.Errorf("unsupported config file format: %s (use .yaml, .yml, .toml, or .json)", ext)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
