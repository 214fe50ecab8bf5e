package cmd_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/SheetMetalConnect/api-workshop/cmd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	root := cmd.GetRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	t.Cleanup(func() { root.SetArgs(nil) })
	err := root.Execute()
	return out.String(), err
}

func TestRootCommand_Subcommands(t *testing.T) {
	root := cmd.GetRootCmd()
	assert.Equal(t, "mes-operations", root.Use)

	names := make([]string, 0)
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"server", "migrate", "rules", "states"} {
		assert.Contains(t, names, want)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := cmd.LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadConfig_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9090\ndatabase:\n  driver: sqlite\n  path: ':memory:'\n"), 0o600))

	cfg, err := cmd.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
}

func TestStatesCommand(t *testing.T) {
	out, err := run(t, "states")
	require.NoError(t, err)
	assert.Contains(t, out, "IN_PROGRESS")
	assert.Contains(t, out, "authorized_cancellation")
	assert.Equal(t, 1+6+1+1+10, strings.Count(out, "\n"))
}

func TestRulesListCommand(t *testing.T) {
	out, err := run(t, "rules", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "1. quantity_relationships")
	assert.Contains(t, out, "operation_sequence")
}

func TestRulesValidateCommand(t *testing.T) {
	dir := t.TempDir()

	valid := filepath.Join(dir, "valid.json")
	require.NoError(t, os.WriteFile(valid, []byte(`{"order_no":"WO-1","asset_id":1,"operation_no":"0010","status":"PLANNED","qty_desired":100}`), 0o600))
	out, err := run(t, "rules", "validate", valid)
	require.NoError(t, err)
	assert.Contains(t, out, `"operation": "WO-1/1/0010"`)
	assert.Contains(t, out, `"valid": true`)

	invalid := filepath.Join(dir, "invalid.json")
	require.NoError(t, os.WriteFile(invalid, []byte(`[
		{"order_no":"WO-1","asset_id":1,"operation_no":"0010","status":"PLANNED","qty_desired":100},
		{"order_no":"WO-1","asset_id":1,"operation_no":"0020","status":"PLANNED","qty_desired":100,"qty_processed":150}
	]`), 0o600))
	out, err = run(t, "rules", "validate", invalid)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2")
	assert.Contains(t, out, "Processed quantity (150) cannot exceed desired quantity (100)")

	_, err = run(t, "rules", "validate", filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestMigrateCommand_SQLite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	dbPath := filepath.Join(dir, "mes.db")
	require.NoError(t, os.WriteFile(path, []byte("database:\n  driver: sqlite\n  path: "+dbPath+"\n  max_retries: 1\n"), 0o600))

	out, err := run(t, "migrate", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "migrations applied")

	_, err = os.Stat(dbPath)
	assert.NoError(t, err)
}
