package cmd

import (
	"bytes"
	"strings"
	"testing"
)

func TestRootCommandPersistentFlags(t *testing.T) {
	flags := []string{"log-level", "log-format"}
	for _, flag := range flags {
		if f := rootCmd.PersistentFlags().Lookup(flag); f == nil {
			t.Errorf("expected persistent flag %q to be defined", flag)
		}
	}
}

func TestRootCommandSubcommands(t *testing.T) {
	expectedCommands := []string{"serve", "import", "migrate", "version", "healthcheck"}
	for _, cmdName := range expectedCommands {
		found := false
		for _, subCmd := range rootCmd.Commands() {
			if subCmd.Name() == cmdName {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("expected subcommand %q to be registered", cmdName)
		}
	}
}

func TestMigrateSubcommands(t *testing.T) {
	expectedCommands := []string{"up", "down"}
	for _, cmdName := range expectedCommands {
		found := false
		for _, subCmd := range migrateCmd.Commands() {
			if subCmd.Name() == cmdName {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("expected migrate subcommand %q to be registered", cmdName)
		}
	}
}

func TestVersionCommand(t *testing.T) {
	// Save original version variables
	origVersion := Version
	origGitCommit := GitCommit
	origBuildDate := BuildDate
	defer func() {
		Version = origVersion
		GitCommit = origGitCommit
		BuildDate = origBuildDate
	}()

	Version = "1.0.0"
	GitCommit = "abc123"
	BuildDate = "2026-01-27T12:00:00Z"

	buf := new(bytes.Buffer)
	versionCmd.SetOut(buf)
	versionCmd.Run(versionCmd, nil)

	output := buf.String()
	expectedStrings := []string{
		"Tomato",
		"Version:    1.0.0",
		"Git commit: abc123",
		"Build date: 2026-01-27T12:00:00Z",
		"Go version:",
		"Platform:",
	}
	for _, expected := range expectedStrings {
		if !strings.Contains(output, expected) {
			t.Errorf("expected output to contain %q, got:\n%s", expected, output)
		}
	}
}
