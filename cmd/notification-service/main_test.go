package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amoylab/notification-service/pkg/version"
)

func captureOutput(f func()) string {
	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w
	defer func() { os.Stdout = old }()

	f()
	_ = w.Close()
	var buf bytes.Buffer
	_, _ = io.Copy(&buf, r)
	return buf.String()
}

func TestRootCmd_Version(t *testing.T) {
	t.Cleanup(func() { rootCmd.SetArgs([]string{}) })
	rootCmd.SetArgs([]string{"version"})
	out := captureOutput(func() { _ = rootCmd.Execute() })
	assert.Equal(t, "notification-service version "+version.Get()+"\n", out)
}

func TestRootCmd_Help(t *testing.T) {
	t.Cleanup(func() { rootCmd.SetArgs([]string{}) })
	rootCmd.SetArgs([]string{"--help"})
	require.NoError(t, rootCmd.Execute())
}

func TestTestCommand_SucceedsWithTempConfig(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "notification-service.yaml")
	yaml := []byte("port: ${TEST_NOTIFY_PORT:4010}\nstorage:\n  type: memory\nlimits:\n  max_per_ip: 5\n")
	require.NoError(t, os.WriteFile(cfgPath, yaml, 0644))

	t.Cleanup(func() { rootCmd.SetArgs([]string{}) })
	rootCmd.SetArgs([]string{"test", "--conf", cfgPath})
	out := captureOutput(func() { require.NoError(t, rootCmd.Execute()) })
	assert.Contains(t, out, "is valid")
}

func TestTestCommand_FailsWithInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("storage:\n  type: disk\n"), 0644))

	t.Cleanup(func() { rootCmd.SetArgs([]string{}) })
	rootCmd.SetArgs([]string{"test", "--conf", cfgPath})
	assert.Error(t, rootCmd.Execute())

	rootCmd.SetArgs([]string{"test", "--conf", filepath.Join(dir, "missing.yaml")})
	assert.Error(t, rootCmd.Execute())
}
