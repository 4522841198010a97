package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--env", filepath.Join(t.TempDir(), "missing.env"), "--log-level", "error"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func memoryEnv(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	seed := filepath.Join(dir, "seed.yaml")
	require.NoError(t, os.WriteFile(seed, []byte(`
founders:
  - id: ada
    name: Ada
    votes: 2
  - id: grace
    name: Grace
winners:
  - founder: ada
    week: 1
`), 0o600))
	t.Setenv("DATA_STORE", "memory")
	t.Setenv("MEMORY_SEED_FILE", seed)
	t.Setenv("STATE_PATH", filepath.Join(dir, "state.db"))
	t.Setenv("SOLANA_RPC", "http://127.0.0.1:8899")
	t.Setenv("WALLET_ENABLED", "false")
}

func TestFoundersCommand(t *testing.T) {
	memoryEnv(t)
	out, err := execute(t, "founders", "--json")
	require.NoError(t, err, out)

	var founders []struct {
		ID        string `json:"id"`
		VoteCount int64  `json:"vote_count"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &founders))
	require.Len(t, founders, 2)
	assert.Equal(t, "ada", founders[0].ID)
	assert.Equal(t, int64(2), founders[0].VoteCount)
}

func TestVoteAndWinnersCommands(t *testing.T) {
	memoryEnv(t)
	out, err := execute(t, "vote", "grace")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Vote recorded")

	out, err = execute(t, "winners")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Ada")
}

func TestReconcileCommandWithEmptyJournal(t *testing.T) {
	memoryEnv(t)
	out, err := execute(t, "reconcile")
	require.NoError(t, err, out)
	assert.Contains(t, out, "checked 0")
}

func TestWalletAdaptersRequiresWallets(t *testing.T) {
	memoryEnv(t)
	_, err := execute(t, "wallet", "adapters")
	assert.Error(t, err)
}

func TestMigrateRequiresDatabaseURL(t *testing.T) {
	memoryEnv(t)
	t.Setenv("DATABASE_URL", "")
	_, err := execute(t, "migrate", "up")
	assert.ErrorContains(t, err, "DATABASE_URL")
}
