// Package config loads server settings from the environment.
package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"

	"github.com/zsiec/dabplus/superframe"
)

// Config holds the dabplus server settings.
type Config struct {
	SRTAddr string `env:"SRT_ADDR, default=:6000"`
	H3Addr  string `env:"H3_ADDR, default=:4443"`
	APIAddr string `env:"API_ADDR, default=:4444"`

	// CertHosts are extra DNS names or IPs for the self-signed certificate.
	CertHosts []string `env:"CERT_HOSTS"`

	// Bitrate is the default DAB+ sub-channel bitrate in kbit/s. It fixes
	// the superframe size for streams whose SRT stream ID carries none.
	Bitrate int `env:"SUBCHANNEL_BITRATE, default=64"`

	FirecodeCheck   bool `env:"FIRECODE_CHECK, default=true"`
	StripAUCRC      bool `env:"STRIP_AU_CRC, default=true"`
	ResyncThreshold int  `env:"RESYNC_THRESHOLD, default=3"`

	Debug bool `env:"DEBUG"`
}

// Load reads an optional .env file from the working directory, then the
// process environment, and validates the result.
func Load(ctx context.Context) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}
	return process(ctx, envconfig.OsLookuper())
}

func process(ctx context.Context, l envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: l,
	}); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings that the environment parser cannot.
func (c *Config) Validate() error {
	if _, err := superframe.SizeForBitrate(c.Bitrate); err != nil {
		return fmt.Errorf("config: SUBCHANNEL_BITRATE: %w", err)
	}
	if c.ResyncThreshold < 1 {
		return fmt.Errorf("config: RESYNC_THRESHOLD must be at least 1, got %d", c.ResyncThreshold)
	}
	return nil
}

// SuperFrameSize returns the superframe length for the default bitrate.
func (c *Config) SuperFrameSize() int {
	size, _ := superframe.SizeForBitrate(c.Bitrate)
	return size
}
