// Package config loads the optional canrecon TOML file.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/roffe/canrecon/pkg/bus"
	"github.com/roffe/canrecon/pkg/dcm"
)

// SimAdapter selects the built-in ECU simulator instead of hardware.
const SimAdapter = "sim"

type Config struct {
	Adapter Adapter
	Timing  Timing
}

type Adapter struct {
	Name            string
	Port            string
	Baudrate        int
	CANRate         float64
	MinSendInterval time.Duration
}

type Timing struct {
	SettleDelay       time.Duration
	SubFunctionDelay  time.Duration
	ContinuationDelay time.Duration
	DelayStep         time.Duration
}

func Default() Config {
	d := dcm.DefaultConfig()
	return Config{
		Adapter: Adapter{
			Name:     SimAdapter,
			Baudrate: 115200,
			CANRate:  500,
		},
		Timing: Timing{
			SettleDelay:       d.SettleDelay,
			SubFunctionDelay:  d.SubFunctionDelay,
			ContinuationDelay: d.ContinuationDelay,
			DelayStep:         d.DelayStep,
		},
	}
}

type fileConfig struct {
	Adapter struct {
		Name            string  `toml:"name"`
		Port            string  `toml:"port"`
		Baudrate        int     `toml:"baudrate"`
		CANRate         float64 `toml:"canrate"`
		MinSendInterval string  `toml:"min_send_interval"`
	} `toml:"adapter"`
	Timing struct {
		SettleDelay       string `toml:"settle_delay"`
		SubFunctionDelay  string `toml:"subfunction_delay"`
		ContinuationDelay string `toml:"continuation_delay"`
		DelayStep         string `toml:"delay_step"`
	} `toml:"timing"`
}

// Load reads path over the defaults. Keys missing from the file keep their
// default value.
func Load(path string) (Config, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("load config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("adapter", "name") {
		cfg.Adapter.Name = strings.TrimSpace(raw.Adapter.Name)
	}
	if meta.IsDefined("adapter", "port") {
		cfg.Adapter.Port = strings.TrimSpace(raw.Adapter.Port)
	}
	if meta.IsDefined("adapter", "baudrate") {
		cfg.Adapter.Baudrate = raw.Adapter.Baudrate
	}
	if meta.IsDefined("adapter", "canrate") {
		cfg.Adapter.CANRate = raw.Adapter.CANRate
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"adapter.min_send_interval", raw.Adapter.MinSendInterval, &cfg.Adapter.MinSendInterval},
		{"timing.settle_delay", raw.Timing.SettleDelay, &cfg.Timing.SettleDelay},
		{"timing.subfunction_delay", raw.Timing.SubFunctionDelay, &cfg.Timing.SubFunctionDelay},
		{"timing.continuation_delay", raw.Timing.ContinuationDelay, &cfg.Timing.ContinuationDelay},
		{"timing.delay_step", raw.Timing.DelayStep, &cfg.Timing.DelayStep},
	}
	for _, d := range durations {
		if !meta.IsDefined(strings.Split(d.key, ".")...) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.dst = v
	}

	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	var errs []error
	if c.Adapter.Name == "" {
		errs = append(errs, errors.New("adapter.name is required"))
	}
	if c.Adapter.Name != SimAdapter && c.Adapter.CANRate <= 0 {
		errs = append(errs, fmt.Errorf("adapter.canrate must be positive: %v", c.Adapter.CANRate))
	}
	if c.Adapter.MinSendInterval < 0 {
		errs = append(errs, fmt.Errorf("adapter.min_send_interval is negative: %s", c.Adapter.MinSendInterval))
	}
	for name, d := range map[string]time.Duration{
		"timing.settle_delay":       c.Timing.SettleDelay,
		"timing.subfunction_delay":  c.Timing.SubFunctionDelay,
		"timing.continuation_delay": c.Timing.ContinuationDelay,
		"timing.delay_step":         c.Timing.DelayStep,
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("%s is negative: %s", name, d))
		}
	}
	return errors.Join(errs...)
}

// AdapterConfig converts the adapter section for bus.Open.
func (c Config) AdapterConfig() bus.AdapterConfig {
	return bus.AdapterConfig{
		Name:            c.Adapter.Name,
		Port:            c.Adapter.Port,
		Baudrate:        c.Adapter.Baudrate,
		CANRate:         c.Adapter.CANRate,
		MinSendInterval: c.Adapter.MinSendInterval,
	}
}

// Discovery builds the dcm configuration from the timing section.
func (c Config) Discovery() dcm.Config {
	d := dcm.DefaultConfig()
	d.SettleDelay = c.Timing.SettleDelay
	d.SubFunctionDelay = c.Timing.SubFunctionDelay
	d.ContinuationDelay = c.Timing.ContinuationDelay
	d.DelayStep = c.Timing.DelayStep
	return d
}
