package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad_NoFileReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, Defaults(), cfg)
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	require.Equal(t, Defaults(), cfg)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vdevice.yaml")
	yaml := "host_buffer_size: 2097152\nsocket_path: /tmp/custom-proxy-socket\n"
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 2097152, cfg.HostBufferSize)
	require.Equal(t, "/tmp/custom-proxy-socket", cfg.SocketPath)
	require.Equal(t, Defaults().BaseAddr, cfg.BaseAddr, "fields absent from the file keep their default")
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vdevice.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: warn\n"), 0644))

	t.Setenv("VDEVICE_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_MalformedFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vdevice.yaml")
	require.NoError(t, os.WriteFile(path, []byte("not: valid: yaml: [[["), 0644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestVDeviceOptions_RoundTripsAllFields(t *testing.T) {
	cfg := Defaults()
	cfg.BaseAddr = 0xdeadbeef
	opts := cfg.VDeviceOptions()
	require.Equal(t, cfg.BaseAddr, opts.BaseAddr)
	require.Equal(t, cfg.SocketPath, opts.SocketPath)
	require.Equal(t, cfg.ParamsRegionName, opts.ParamsRegionName)
	require.Equal(t, cfg.HostBufferName, opts.HostBufferName)
	require.Equal(t, cfg.HostBufferSize, opts.HostBufferSize)
	require.Equal(t, cfg.SyncSemName, opts.SyncSemName)
	require.Equal(t, cfg.ResetSemName, opts.ResetSemName)
}
