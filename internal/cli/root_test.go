package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/testworker/internal/config"
)

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "worker", cmd.Use)
	assert.Contains(t, cmd.Long, "event delivery URL")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"serve", "status", "events"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err, "command %s should exist", name)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()
	flags := cmd.PersistentFlags()

	verbose := flags.Lookup("verbose")
	require.NotNil(t, verbose)
	assert.Equal(t, "v", verbose.Shorthand)
	assert.Equal(t, "false", verbose.DefValue)

	for flag, def := range map[string]string{
		"format":     "text",
		"log-format": "text",
		"config":     "",
		"db":         "worker.db",
	} {
		f := flags.Lookup(flag)
		require.NotNil(t, f, flag)
		assert.Equal(t, def, f.DefValue, flag)
	}
}

func TestServeCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	serve, _, err := cmd.Find([]string{"serve"})
	require.NoError(t, err)

	for _, flag := range []string{"listen", "compiler", "delegator", "source-dir", "target-dir", "concurrency"} {
		assert.NotNil(t, serve.Flags().Lookup(flag), flag)
	}
}

func TestFlagsBindToConfig(t *testing.T) {
	opts := &RootOptions{Viper: config.New()}
	cmd := newRootCommand(opts)
	serve, _, err := cmd.Find([]string{"serve"})
	require.NoError(t, err)
	require.NoError(t, serve.ParseFlags([]string{"--db", "/tmp/other.db", "--listen", ":9999", "--concurrency", "3"}))

	cfg, err := opts.loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/other.db", cfg.Database)
	assert.Equal(t, ":9999", cfg.Listen)
	assert.Equal(t, 3, cfg.Worker.Concurrency)
}

func TestInvalidFormat(t *testing.T) {
	_, err := execute(t, "status", "--format", "yaml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid format")

	_, err = execute(t, "status", "--log-format", "logfmt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log format")
}

func TestInvalidConfig(t *testing.T) {
	t.Setenv("WORKER_DELIVERY_MAX_ATTEMPTS", "0")
	_, err := execute(t, "status", "--db", t.TempDir()+"/worker.db")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "delivery.max_attempts")
}
