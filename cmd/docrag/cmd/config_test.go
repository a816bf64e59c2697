package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigInitCmd_HasForceFlag(t *testing.T) {
	cmd := NewRootCmd()

	initCmd, _, err := cmd.Find([]string{"config", "init"})
	require.NoError(t, err)

	flag := initCmd.Flags().Lookup("force")
	assert.NotNil(t, flag, "should have --force flag")
	assert.Equal(t, "false", flag.DefValue, "default should be false")
}

func TestConfigShowCmd_HasJSONFlag(t *testing.T) {
	cmd := NewRootCmd()

	showCmd, _, err := cmd.Find([]string{"config", "show"})
	require.NoError(t, err)

	flag := showCmd.Flags().Lookup("json")
	assert.NotNil(t, flag, "should have --json flag")
	assert.Equal(t, "false", flag.DefValue, "default should be false")
}

func TestConfigPathCmd_OutputsPath(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmpDir, ".config"))

	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"config", "path"})

	err := cmd.Execute()

	require.NoError(t, err)
	output := buf.String()
	assert.Contains(t, output, "docrag", "should contain docrag in path")
	assert.Contains(t, output, "config.yaml", "should contain config.yaml")
}

func TestConfigInit_NewFile(t *testing.T) {
	tmpDir := t.TempDir()
	configDir := filepath.Join(tmpDir, ".config", "docrag")
	t.Setenv("HOME", tmpDir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmpDir, ".config"))

	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"config", "init"})

	err := cmd.Execute()

	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Created", "should indicate creation")

	configPath := filepath.Join(configDir, "config.yaml")
	_, err = os.Stat(configPath)
	assert.NoError(t, err, "config file should exist")
}

func TestConfigInit_ExistingFile_RequiresForce(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmpDir, ".config"))

	cmd := NewRootCmd()
	cmd.SetArgs([]string{"config", "init"})
	require.NoError(t, cmd.Execute())

	cmd2 := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd2.SetOut(buf)
	cmd2.SetErr(buf)
	cmd2.SetArgs([]string{"config", "init"})

	require.NoError(t, cmd2.Execute())
	assert.Contains(t, buf.String(), "already exists")
}

func TestConfigInit_Force_BacksUpExisting(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmpDir, ".config"))

	cmd := NewRootCmd()
	cmd.SetArgs([]string{"config", "init"})
	require.NoError(t, cmd.Execute())

	cmd2 := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd2.SetOut(buf)
	cmd2.SetErr(buf)
	cmd2.SetArgs([]string{"config", "init", "--force"})

	err := cmd2.Execute()
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Backup")

	entries, err := os.ReadDir(filepath.Join(tmpDir, ".config", "docrag"))
	require.NoError(t, err)
	var sawBackup bool
	for _, e := range entries {
		if strings.Contains(e.Name(), ".bak.") {
			sawBackup = true
		}
	}
	assert.True(t, sawBackup, "a backup file should have been written")
}

func TestConfigShow_OutputsYAML(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmpDir, ".config"))

	oldDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(tmpDir))
	defer func() { _ = os.Chdir(oldDir) }()

	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"config", "show"})

	err := cmd.Execute()

	require.NoError(t, err)
	assert.Contains(t, buf.String(), "corpus:")
	assert.Contains(t, buf.String(), "chunks_path:")
}
