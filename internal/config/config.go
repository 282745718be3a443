// Package config loads xbtool settings from a TOML file.
package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"gni.dev/xbox/internal/dbg/debugger"
	"gni.dev/xbox/internal/dbg/kernel"
	"gni.dev/xbox/internal/dbg/xbdm"
	"gni.dev/xbox/internal/logging"
)

// DefaultBufferSize matches the socket buffers used by the disk mirroring
// tool.
const DefaultBufferSize = 80192

type Config struct {
	Address       string
	DialTimeout   time.Duration
	Timeout       time.Duration
	SendBuffer    int
	ReceiveBuffer int
	Proxy         string
	KernelBase    uint32
	LogLevel      xbdm.Level
	LogNoColor    bool
	MetricsListen string
}

type fileConfig struct {
	Address    string `toml:"address"`
	Connection struct {
		DialTimeout   string `toml:"dial_timeout"`
		Timeout       string `toml:"timeout"`
		SendBuffer    int    `toml:"send_buffer"`
		ReceiveBuffer int    `toml:"receive_buffer"`
		Proxy         string `toml:"proxy"`
	} `toml:"connection"`
	Kernel struct {
		Base int64 `toml:"base"`
	} `toml:"kernel"`
	Log struct {
		Level   string `toml:"level"`
		NoColor bool   `toml:"no_color"`
	} `toml:"log"`
	Metrics struct {
		Listen string `toml:"listen"`
	} `toml:"metrics"`
}

func Default() Config {
	return Config{
		DialTimeout:   5 * time.Second,
		Timeout:       30 * time.Second,
		SendBuffer:    DefaultBufferSize,
		ReceiveBuffer: DefaultBufferSize,
		KernelBase:    kernel.DefaultBase,
		LogLevel:      xbdm.LevelInfo,
	}
}

// Load reads path over the defaults. Keys missing from the file keep their
// default value; unknown keys are an error.
func Load(path string) (Config, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Config{}, fmt.Errorf("load config: unknown keys: %s", strings.Join(keys, ", "))
	}

	if meta.IsDefined("address") {
		cfg.Address = strings.TrimSpace(raw.Address)
	}
	if meta.IsDefined("connection", "dial_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Connection.DialTimeout))
		if err != nil {
			return Config{}, fmt.Errorf("parse connection.dial_timeout: %w", err)
		}
		cfg.DialTimeout = d
	}
	if meta.IsDefined("connection", "timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Connection.Timeout))
		if err != nil {
			return Config{}, fmt.Errorf("parse connection.timeout: %w", err)
		}
		cfg.Timeout = d
	}
	if meta.IsDefined("connection", "send_buffer") {
		cfg.SendBuffer = raw.Connection.SendBuffer
	}
	if meta.IsDefined("connection", "receive_buffer") {
		cfg.ReceiveBuffer = raw.Connection.ReceiveBuffer
	}
	if meta.IsDefined("connection", "proxy") {
		cfg.Proxy = strings.TrimSpace(raw.Connection.Proxy)
	}
	if meta.IsDefined("kernel", "base") {
		if raw.Kernel.Base < 0 || raw.Kernel.Base > 0xFFFFFFFF {
			return Config{}, fmt.Errorf("parse kernel.base: %#x out of range", raw.Kernel.Base)
		}
		cfg.KernelBase = uint32(raw.Kernel.Base)
	}
	if meta.IsDefined("log", "level") {
		lvl, ok := logging.ParseLevel(raw.Log.Level)
		if !ok {
			return Config{}, fmt.Errorf("parse log.level: unknown level %q", raw.Log.Level)
		}
		cfg.LogLevel = lvl
	}
	if meta.IsDefined("log", "no_color") {
		cfg.LogNoColor = raw.Log.NoColor
	}
	if meta.IsDefined("metrics", "listen") {
		cfg.MetricsListen = strings.TrimSpace(raw.Metrics.Listen)
	}

	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	var errs []error
	if c.DialTimeout < 0 {
		errs = append(errs, errors.New("dial timeout must not be negative"))
	}
	if c.Timeout < 0 {
		errs = append(errs, errors.New("timeout must not be negative"))
	}
	if c.SendBuffer < 0 || c.ReceiveBuffer < 0 {
		errs = append(errs, errors.New("buffer sizes must not be negative"))
	}
	if c.KernelBase%0x1000 != 0 {
		errs = append(errs, fmt.Errorf("kernel base %#08x is not page aligned", c.KernelBase))
	}
	if c.Proxy != "" {
		if _, _, err := net.SplitHostPort(c.Proxy); err != nil {
			errs = append(errs, fmt.Errorf("proxy %q: %w", c.Proxy, err))
		}
	}
	if c.MetricsListen != "" {
		if _, _, err := net.SplitHostPort(c.MetricsListen); err != nil {
			errs = append(errs, fmt.Errorf("metrics listen %q: %w", c.MetricsListen, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Options converts c into connection options. log and obs may be nil.
func (c Config) Options(log xbdm.Logger, obs xbdm.Observer) debugger.Options {
	return debugger.Options{
		Options: xbdm.Options{
			DialTimeout:       c.DialTimeout,
			Timeout:           c.Timeout,
			SendBufferSize:    c.SendBuffer,
			ReceiveBufferSize: c.ReceiveBuffer,
			Proxy:             c.Proxy,
			Logger:            log,
			Observer:          obs,
		},
		Kernel: kernel.Options{Base: c.KernelBase},
	}
}

// Logging returns the logger settings held by c.
func (c Config) Logging() logging.Config {
	return logging.Config{Level: c.LogLevel, NoColor: c.LogNoColor}
}
