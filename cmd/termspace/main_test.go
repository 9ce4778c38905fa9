package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := newRootCmd()
	want := []string{"serve", "host", "sessions", "attach", "config", "version"}
	for _, name := range want {
		found := false
		for _, sub := range root.Commands() {
			if sub.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Fatalf("expected subcommand %q", name)
		}
	}
}

func TestConfigInitWritesFile(t *testing.T) {
	dir := t.TempDir()
	root := newRootCmd()
	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetErr(out)
	root.SetArgs([]string{"config", "init", "-o", dir + "/config.yaml"})
	if err := root.Execute(); err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(out.String(), "config.yaml") {
		t.Fatalf("expected written path in output, got %q", out.String())
	}
}

func TestVersionCommandPrintsModule(t *testing.T) {
	root := newRootCmd()
	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetArgs([]string{"version"})
	if err := root.Execute(); err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.Contains(out.String(), "termspace") {
		t.Fatalf("expected module in output, got %q", out.String())
	}
}
