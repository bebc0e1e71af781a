package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrisonrobin/tasklink/pkg/model"
	"github.com/harrisonrobin/tasklink/pkg/scheduler"
)

const clientSecrets = `{"installed":{"client_id":"id.apps.googleusercontent.com","client_secret":"secret",
"auth_uri":"https://accounts.google.com/o/oauth2/auth","token_uri":"https://oauth2.googleapis.com/token",
"redirect_uris":["http://localhost"]}}`

// setupEnv points the configuration at a scratch database and client secrets.
func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)

	secrets := filepath.Join(dir, "credentials.json")
	require.NoError(t, os.WriteFile(secrets, []byte(clientSecrets), 0o600))

	t.Setenv("TASKLINK_LOG_LEVEL", "ERROR")
	t.Setenv("TASKLINK_DB_DSN", filepath.Join(dir, "tasklink.db"))
	t.Setenv("TASKLINK_CLIENT_SECRETS", secrets)
	return filepath.Join(dir, "missing.yaml")
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestUserAndProjectCommands(t *testing.T) {
	cfg := setupEnv(t)

	out, err := run(t, "", "--config", cfg, "user", "add", "Owner@Example.com", "--name", "Owner")
	require.NoError(t, err)
	var u model.User
	require.NoError(t, json.Unmarshal([]byte(out), &u))
	assert.Equal(t, "owner@example.com", u.Email)
	assert.NotEmpty(t, u.ID)

	out, err = run(t, "", "--config", cfg, "project", "add", "Launch", "--owner", u.ID, "--member", "someone")
	require.NoError(t, err)
	var p model.Project
	require.NoError(t, json.Unmarshal([]byte(out), &p))
	assert.Equal(t, "Launch", p.Name)

	out, err = run(t, "", "--config", cfg, "project", "show", p.ID)
	require.NoError(t, err)
	var shown model.Project
	require.NoError(t, json.Unmarshal([]byte(out), &shown))
	assert.Equal(t, u.ID, shown.OwnerID)
	assert.Equal(t, []string{"someone"}, shown.Members)
	assert.False(t, shown.SyncEnabled)
}

func TestTickWithNothingToSync(t *testing.T) {
	cfg := setupEnv(t)

	out, err := run(t, "", "--config", cfg, "tick")
	require.NoError(t, err)

	var tally scheduler.Tally
	require.NoError(t, json.Unmarshal([]byte(out), &tally))
	assert.Equal(t, scheduler.Tally{}, tally)
}

func TestSyncRequiresKnownProject(t *testing.T) {
	cfg := setupEnv(t)

	_, err := run(t, "", "--config", cfg, "sync", "nope", "--user", "u1", "--token", "tok")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestNotifyHook(t *testing.T) {
	cfg := setupEnv(t)

	_, err := run(t, "", "--config", cfg, "notify-hook")
	assert.NoError(t, err, "empty input is not an error")

	event := `{"id":"t1","project_id":"p1","title":"Write docs","assignee_id":"a@example.com"}`
	_, err = run(t, event, "--config", cfg, "notify-hook")
	assert.ErrorIs(t, err, errNotifyDisabled)
}

func TestMissingClientSecrets(t *testing.T) {
	cfg := setupEnv(t)
	t.Setenv("TASKLINK_CLIENT_SECRETS", filepath.Join(t.TempDir(), "absent.json"))

	_, err := run(t, "", "--config", cfg, "tick")
	assert.ErrorContains(t, err, "client secret")
}

func TestMustMakeLogger(t *testing.T) {
	assert.NotNil(t, mustMakeLogger("debug"))
	assert.NotNil(t, mustMakeLogger(""))
	assert.Panics(t, func() { mustMakeLogger("loud") })
}
