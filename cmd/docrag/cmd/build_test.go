package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docrag/docrag/internal/vectorindex"
)

func TestBuildCmd_WritesVectorIndex(t *testing.T) {
	tmpDir := t.TempDir()
	writeTestCorpus(t, tmpDir)

	oldDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(tmpDir))
	defer func() { _ = os.Chdir(oldDir) }()

	buildTestCorpus(t, tmpDir)

	idx, err := vectorindex.Load(filepath.Join(tmpDir, "corpus.index"))
	require.NoError(t, err)
	assert.Equal(t, 3, idx.N(), "every chunk should have been embedded")
}

func TestBuildCmd_RequiresChunkFile(t *testing.T) {
	tmpDir := t.TempDir()

	oldDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(tmpDir))
	defer func() { _ = os.Chdir(oldDir) }()

	rootCmd := NewRootCmd()
	buf := &bytes.Buffer{}
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs([]string{"build", "--chunks", "does-not-exist.jsonl", "--output", "out.index"})

	err := rootCmd.Execute()
	require.Error(t, err)
}

func TestBuildCmd_FlagsOverrideConfig(t *testing.T) {
	tmpDir := t.TempDir()
	writeTestCorpus(t, tmpDir)

	oldDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(tmpDir))
	defer func() { _ = os.Chdir(oldDir) }()

	altIndex := filepath.Join(tmpDir, "alt.index")
	rootCmd := NewRootCmd()
	buf := &bytes.Buffer{}
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs([]string{"build", "--output", altIndex})

	require.NoError(t, rootCmd.Execute(), buf.String())

	_, err := os.Stat(altIndex)
	assert.NoError(t, err, "build --output should write to the overridden path")
}

func TestBuildCmd_BatchSizeFlag(t *testing.T) {
	rootCmd := NewRootCmd()
	buildCmd, _, _ := rootCmd.Find([]string{"build"})
	require.NotNil(t, buildCmd)

	flag := buildCmd.Flags().Lookup("batch-size")
	assert.NotNil(t, flag)
	assert.Equal(t, "64", flag.DefValue)
}
