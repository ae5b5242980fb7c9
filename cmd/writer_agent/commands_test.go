package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/content-writer/internal/config"
	"github.com/jonathan/content-writer/internal/events"
	"github.com/jonathan/content-writer/internal/pipeline"
	"github.com/jonathan/content-writer/internal/server"
)

// execute runs the root command in-process with flags reset to defaults.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	reset := func(fs *pflag.FlagSet) {
		fs.VisitAll(func(f *pflag.Flag) {
			_ = f.Value.Set(f.DefValue)
			f.Changed = false
		})
	}
	reset(rootCmd.PersistentFlags())
	for _, c := range rootCmd.Commands() {
		reset(c.Flags())
	}

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	_, err := rootCmd.ExecuteC()
	return out.String(), err
}

func useMemoryStore(t *testing.T) {
	t.Setenv("STORE", config.StoreMemory)
	t.Setenv("GENERATOR_PROVIDER", config.ProviderDify)
	t.Setenv("DIFY_API_BASE_URL", "http://127.0.0.1:1")
	t.Setenv("LOG_LEVEL", "error")
}

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "migrate", "create", "stage", "rewind", "cancel", "status", "token"} {
		assert.True(t, names[want], "missing command %s", want)
	}
}

func TestTokenCommand(t *testing.T) {
	t.Setenv("JWT_SECRET", "cli-test-secret")
	t.Setenv("JWT_EXPIRATION_HOURS", "2")

	out, err := execute(t, "token", "--subject", "ci")
	require.NoError(t, err)

	jwtService := server.NewJWTService(&config.JWTConfig{Secret: "cli-test-secret", ExpirationHours: 2})
	claims, err := jwtService.ValidateToken(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "ci", claims.Principal())
}

func TestTokenCommand_Errors(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	_, err := execute(t, "token", "--subject", "ci")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")

	t.Setenv("JWT_SECRET", "s")
	_, err = execute(t, "token")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "subject")
}

func TestStatusCommand(t *testing.T) {
	useMemoryStore(t)

	_, err := execute(t, "status", "--project", "not-a-uuid")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--project must be a UUID")

	_, err = execute(t, "status", "--project", uuid.NewString())
	assert.ErrorIs(t, err, pipeline.ErrProjectNotFound)
}

func TestCreateCommand(t *testing.T) {
	useMemoryStore(t)
	t.Setenv("DEFAULT_LANGUAGE", "English")

	out, err := execute(t, "create", "--topic", "  Rye bread ")
	require.NoError(t, err)
	assert.Contains(t, out, "Created project")
	assert.Contains(t, out, "(Rye bread, English)")

	_, err = execute(t, "create", "--topic", "x", "--seed-file", "/does/not/exist")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "seed document")
}

func TestStageCommand_RequiresFlags(t *testing.T) {
	_, err := execute(t, "stage", "--project", uuid.NewString())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stage")
}

func TestMigrateCommand_RequiresPostgres(t *testing.T) {
	useMemoryStore(t)
	_, err := execute(t, "migrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres")
}

func TestProgressPrinter(t *testing.T) {
	var buf bytes.Buffer
	printer := progressPrinter(&buf)
	section := 1

	printer(events.Event{Type: events.TypeStageStarted, Stage: 5, StageName: "Content generation"})
	printer(events.Event{Type: events.TypeSectionStarted, Stage: 5, Section: &section, Heading: "Baking day", Total: 3})
	printer(events.Event{Type: events.TypeSectionCompleted, Stage: 5, Section: &section, Completed: 2, Total: 3})
	printer(events.Event{Type: events.TypeStageFailed, Stage: 5, Message: "boom"})

	assert.Equal(t, "Stage 5 (Content generation) started\n"+
		"  [2/3] Baking day\n"+
		"  [2/3] done\n"+
		"Stage 5 failed: boom\n", buf.String())
}
