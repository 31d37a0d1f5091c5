package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func inTempDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	inTempDir(t)
	t.Setenv("CONFIG_ENV", "test")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 54*time.Second, cfg.PingPeriod)
	assert.Equal(t, 256, cfg.SendBuffer)
	assert.Equal(t, 64, cfg.MaxClientIDLen)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := inTempDir(t)
	t.Setenv("CONFIG_ENV", "test")
	t.Setenv("VOICECALL_SEND_BUFFER", "8")

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "config"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config", "config.test.yaml"),
		[]byte("port: 9090\nmode: debug\n"), 0o644))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "debug", cfg.Mode)
	assert.Equal(t, 8, cfg.SendBuffer)
}

func TestLoadClientFlags(t *testing.T) {
	inTempDir(t)
	t.Setenv("CONFIG_ENV", "test")

	flags := pflag.NewFlagSet("client", pflag.ContinueOnError)
	flags.String("id", "", "")
	flags.String("encoding", "json", "")
	require.NoError(t, flags.Parse([]string{"--id", "alice", "--encoding", "rtp"}))

	cfg, err := LoadClient(flags)
	require.NoError(t, err)
	assert.Equal(t, "alice", cfg.ClientID)
	assert.Equal(t, "rtp", cfg.AudioEncoding)
	assert.Equal(t, 512, cfg.CaptureBlock)
	assert.Equal(t, 44100, cfg.PlaybackRate)
}

func TestLoadClientRejectsEncoding(t *testing.T) {
	inTempDir(t)
	t.Setenv("CONFIG_ENV", "test")
	t.Setenv("VOICECALL_AUDIO_ENCODING", "opus")

	_, err := LoadClient(nil)
	assert.Error(t, err)
}
