package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitSelect(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitSelect("a,b"))
	assert.Equal(t, []string{"a", "b"}, splitSelect(" a , b "))
	assert.Equal(t, []string{"a"}, splitSelect("a,,"))
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "12345678", shortID("123456789abcdef"))
	assert.Equal(t, "abc", shortID("abc"))
}

func TestRelevantEvent(t *testing.T) {
	rules := "/proj/rules.yaml"

	assert.True(t, relevantEvent(fsnotify.Event{Name: "/proj/sources/pwt.csv", Op: fsnotify.Write}, rules))
	assert.True(t, relevantEvent(fsnotify.Event{Name: "/proj/sources/pwt.xlsx", Op: fsnotify.Create}, rules))
	assert.True(t, relevantEvent(fsnotify.Event{Name: "/proj/rules.yaml", Op: fsnotify.Write}, rules))
	assert.False(t, relevantEvent(fsnotify.Event{Name: "/proj/rules.yaml", Op: fsnotify.Chmod}, rules))
	assert.False(t, relevantEvent(fsnotify.Event{Name: "/proj/notes.txt", Op: fsnotify.Write}, rules))
}

func TestVersionCommand(t *testing.T) {
	cmd := NewVersionCommand("1.2.3")
	var buf bytes.Buffer
	cmd.SetOut(&buf)

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "pwtgen v1.2.3")
}

func TestInitCommand(t *testing.T) {
	dir := t.TempDir()

	cmd := NewInitCommand()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{dir})

	require.NoError(t, cmd.Execute())

	for _, f := range []string{"pwtgen.yaml", "rules.yaml", filepath.Join("sources", "example.csv")} {
		if _, err := os.Stat(filepath.Join(dir, f)); err != nil {
			t.Errorf("expected %s to exist: %v", f, err)
		}
	}
	assert.Contains(t, buf.String(), "initialized")
}

func TestInitCommand_ExistingConfig(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pwtgen.yaml"), []byte("sources_dir: raw\n"), 0o644))

	cmd := NewInitCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{dir})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	// --force overwrites.
	cmd = NewInitCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{dir, "--force"})
	require.NoError(t, cmd.Execute())

	content, err := os.ReadFile(filepath.Join(dir, "pwtgen.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(content), "reference_year")
}
