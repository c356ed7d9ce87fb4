// Package config loads the construction-time parameters spec.md leaves as
// literal constants into a Config struct, so a deployment can relocate
// them without a rebuild. Precedence, highest first: cobra-bound flags,
// environment variables (VDEVICE_ prefixed), an optional YAML file,
// compiled-in defaults matching spec.md's literal names and sizes.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/glbridge/vdevice/internal/vdevice"
)

// Config mirrors vdevice.Options plus the ambient logging knobs spec.md
// itself has nothing to say about.
type Config struct {
	BaseAddr         uint32 `mapstructure:"base_addr"`
	SocketPath       string `mapstructure:"socket_path"`
	ParamsRegionName string `mapstructure:"params_region_name"`
	HostBufferName   string `mapstructure:"host_buffer_name"`
	HostBufferSize   int    `mapstructure:"host_buffer_size"`
	SyncSemName      string `mapstructure:"sync_sem_name"`
	ResetSemName     string `mapstructure:"reset_sem_name"`

	LogLevel  string `mapstructure:"log_level"`
	LogPretty bool   `mapstructure:"log_pretty"`
}

// defaultBaseAddr is the MMIO base address spec.md §6 assumes when the
// surrounding emulator doesn't otherwise dictate one.
const defaultBaseAddr = 0x1f000000

// Defaults returns a Config populated with spec.md's literal names and
// sizes, used both as the zero-config fallback and as viper's defaults
// layer so a partial YAML file only overrides what it mentions.
func Defaults() Config {
	opts := vdevice.DefaultOptions(defaultBaseAddr)
	return Config{
		BaseAddr:         opts.BaseAddr,
		SocketPath:       opts.SocketPath,
		ParamsRegionName: opts.ParamsRegionName,
		HostBufferName:   opts.HostBufferName,
		HostBufferSize:   opts.HostBufferSize,
		SyncSemName:      opts.SyncSemName,
		ResetSemName:     opts.ResetSemName,
		LogLevel:         "info",
		LogPretty:        false,
	}
}

// Load reads configuration from an optional YAML file at path (skipped
// entirely if path is empty or the file doesn't exist) and from
// VDEVICE_-prefixed environment variables, layered over Defaults(). It
// never fails on a missing file; it does fail on a malformed one.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("vdevice")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := Defaults()
	v.SetDefault("base_addr", def.BaseAddr)
	v.SetDefault("socket_path", def.SocketPath)
	v.SetDefault("params_region_name", def.ParamsRegionName)
	v.SetDefault("host_buffer_name", def.HostBufferName)
	v.SetDefault("host_buffer_size", def.HostBufferSize)
	v.SetDefault("sync_sem_name", def.SyncSemName)
	v.SetDefault("reset_sem_name", def.ResetSemName)
	v.SetDefault("log_level", def.LogLevel)
	v.SetDefault("log_pretty", def.LogPretty)

	if path != "" {
		if _, statErr := os.Stat(path); statErr == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return Config{}, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else if !os.IsNotExist(statErr) {
			return Config{}, fmt.Errorf("config: stat %s: %w", path, statErr)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	return cfg, nil
}

// VDeviceOptions converts Config into the vdevice.Options New expects.
func (c Config) VDeviceOptions() vdevice.Options {
	return vdevice.Options{
		BaseAddr:         c.BaseAddr,
		SocketPath:       c.SocketPath,
		ParamsRegionName: c.ParamsRegionName,
		HostBufferName:   c.HostBufferName,
		HostBufferSize:   c.HostBufferSize,
		SyncSemName:      c.SyncSemName,
		ResetSemName:     c.ResetSemName,
	}
}
