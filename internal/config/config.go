// Package config handles global configuration loading using viper.
package config

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"firestige.xyz/lowpan/internal/core"
)

// GlobalConfig represents the top-level static configuration.
// Maps to the `lowpan:` root key in YAML.
type GlobalConfig struct {
	Node       NodeConfig       `mapstructure:"node"`
	Link       LinkConfig       `mapstructure:"link"`
	Pool       PoolConfig       `mapstructure:"pool"`
	Registry   RegistryConfig   `mapstructure:"registry"`
	Reassembly ReassemblyConfig `mapstructure:"reassembly"`
	Transport  TransportConfig  `mapstructure:"transport"`
	Tap        TapConfig        `mapstructure:"tap"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Log        LogConfig        `mapstructure:"log"`
}

// ─── Node Identity ───

// NodeConfig contains node identification settings.
type NodeConfig struct {
	LinkAddr         string `mapstructure:"link_addr"`         // EUI-64, colon-separated hex
	Role             string `mapstructure:"role"`              // host | border-router
	AdvertisedPrefix string `mapstructure:"advertised_prefix"` // border-router only

	// Parsed during validation.
	Addr     core.LinkAddr `mapstructure:"-"`
	NodeRole core.Role     `mapstructure:"-"`
}

// ─── Link ───

// LinkConfig contains link-layer settings.
type LinkConfig struct {
	MTU          int    `mapstructure:"mtu"`
	Compression  bool   `mapstructure:"compression"`
	ContextsFile string `mapstructure:"contexts_file"` // optional YAML context table
}

// ─── Delivery ───

// PoolConfig configures the assembled-frame buffer pool.
type PoolConfig struct {
	Slots int `mapstructure:"slots"`
}

// RegistryConfig configures the consumer registry.
type RegistryConfig struct {
	Capacity int `mapstructure:"capacity"`
}

// ─── Reassembly ───

// ReassemblyConfig configures the fragment reassembly table.
type ReassemblyConfig struct {
	Capacity      int    `mapstructure:"capacity"`
	Timeout       string `mapstructure:"timeout"`        // e.g. "15s"
	SweepInterval string `mapstructure:"sweep_interval"` // e.g. "1s"

	// Parsed during validation.
	TimeoutD       time.Duration `mapstructure:"-"`
	SweepIntervalD time.Duration `mapstructure:"-"`
}

// ─── Transport ───

// TransportConfig configures the UDP multicast channel standing in for
// the radio.
type TransportConfig struct {
	Group     string `mapstructure:"group"`
	Port      int    `mapstructure:"port"`
	Interface string `mapstructure:"interface"`
}

// ─── Tap ───

// TapConfig configures the pcap frame taps.
type TapConfig struct {
	FramesPath    string `mapstructure:"frames_path"`
	DatagramsPath string `mapstructure:"datagrams_path"`
}

// ─── Metrics ───

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
	Path    string `mapstructure:"path"`
}

// ─── Log ───

// LogConfig contains logging settings.
type LogConfig struct {
	Level   string           `mapstructure:"level"`  // debug / info / warn / error
	Format  string           `mapstructure:"format"` // json / text / console
	Outputs LogOutputsConfig `mapstructure:"outputs"`
}

// LogOutputsConfig contains structured log output destinations.
type LogOutputsConfig struct {
	File FileOutputConfig `mapstructure:"file"`
}

// FileOutputConfig configures file log output.
type FileOutputConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Path     string         `mapstructure:"path"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb"`
	MaxAgeDays int  `mapstructure:"max_age_days"`
	MaxBackups int  `mapstructure:"max_backups"`
	Compress   bool `mapstructure:"compress"`
}

// ─── Loading ───

// configRoot is the top-level wrapper matching the YAML structure `lowpan: ...`.
type configRoot struct {
	LoWPAN GlobalConfig `mapstructure:"lowpan"`
}

// Load loads configuration from file. The YAML file uses `lowpan:` as
// root key; env vars override via the key replacer (e.g. the key
// "lowpan.log.level" maps to env "LOWPAN_LOG_LEVEL").
func Load(path string) (*GlobalConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.LoWPAN

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default values for configuration. All keys use the
// "lowpan." prefix to match the YAML root wrapper.
func setDefaults(v *viper.Viper) {
	v.SetDefault("lowpan.node.role", "host")

	v.SetDefault("lowpan.link.mtu", 127)
	v.SetDefault("lowpan.link.compression", true)

	v.SetDefault("lowpan.pool.slots", 8)
	v.SetDefault("lowpan.registry.capacity", 4)

	v.SetDefault("lowpan.reassembly.capacity", 8)
	v.SetDefault("lowpan.reassembly.timeout", "15s")
	v.SetDefault("lowpan.reassembly.sweep_interval", "1s")

	v.SetDefault("lowpan.transport.group", "ff15::6c70")
	v.SetDefault("lowpan.transport.port", 27760)

	v.SetDefault("lowpan.metrics.enabled", true)
	v.SetDefault("lowpan.metrics.listen", ":9478")
	v.SetDefault("lowpan.metrics.path", "/metrics")

	v.SetDefault("lowpan.log.level", "info")
	v.SetDefault("lowpan.log.format", "json")
	v.SetDefault("lowpan.log.outputs.file.enabled", false)
	v.SetDefault("lowpan.log.outputs.file.path", "/var/log/lowpan/lowpand.log")
	v.SetDefault("lowpan.log.outputs.file.rotation.max_size_mb", 100)
	v.SetDefault("lowpan.log.outputs.file.rotation.max_age_days", 30)
	v.SetDefault("lowpan.log.outputs.file.rotation.max_backups", 5)
	v.SetDefault("lowpan.log.outputs.file.rotation.compress", true)
}

// ValidateAndApplyDefaults validates configuration and resolves the
// parsed fields (link address, role, durations).
func (cfg *GlobalConfig) ValidateAndApplyDefaults() error {
	// ── Log validation ──
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug/info/warn/error)", cfg.Log.Level)
	}
	switch cfg.Log.Format {
	case "json", "text", "console":
	default:
		return fmt.Errorf("invalid log format: %s (must be json/text/console)", cfg.Log.Format)
	}

	// ── Node ──
	addr, err := ParseLinkAddr(cfg.Node.LinkAddr)
	if err != nil {
		return fmt.Errorf("node.link_addr: %w", err)
	}
	cfg.Node.Addr = addr

	switch cfg.Node.Role {
	case "host":
		cfg.Node.NodeRole = core.RoleHost
	case "border-router":
		cfg.Node.NodeRole = core.RoleBorderRouter
		if cfg.Node.AdvertisedPrefix == "" {
			return fmt.Errorf("node.advertised_prefix is required for role border-router")
		}
	default:
		return fmt.Errorf("invalid node.role: %s (must be host/border-router)", cfg.Node.Role)
	}

	// ── Link ──
	if cfg.Link.MTU < 16 || cfg.Link.MTU > 255 {
		return fmt.Errorf("link.mtu %d out of range [16,255]", cfg.Link.MTU)
	}

	// ── Reassembly durations ──
	cfg.Reassembly.TimeoutD, err = time.ParseDuration(cfg.Reassembly.Timeout)
	if err != nil {
		return fmt.Errorf("reassembly.timeout: %w", err)
	}
	cfg.Reassembly.SweepIntervalD, err = time.ParseDuration(cfg.Reassembly.SweepInterval)
	if err != nil {
		return fmt.Errorf("reassembly.sweep_interval: %w", err)
	}

	return nil
}

// ParseLinkAddr parses a colon-separated hex EUI-64 like
// "02:11:22:33:44:55:66:77".
func ParseLinkAddr(s string) (core.LinkAddr, error) {
	var addr core.LinkAddr
	parts := strings.Split(s, ":")
	if len(parts) != 8 {
		return addr, fmt.Errorf("want 8 colon-separated octets, got %q", s)
	}
	for i, p := range parts {
		b, err := hex.DecodeString(p)
		if err != nil || len(b) != 1 {
			return addr, fmt.Errorf("bad octet %q in %q", p, s)
		}
		addr[i] = b[0]
	}
	return addr, nil
}
