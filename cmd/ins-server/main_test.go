package main

import (
	"bytes"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/ins/ins/internal/platform/auth"
)

func TestWriteHash(t *testing.T) {
	var buf bytes.Buffer
	if err := writeHash(&buf, "nurse123", bcrypt.MinCost); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	hash := strings.TrimSpace(buf.String())
	if !auth.CheckPassword("nurse123", hash) {
		t.Errorf("expected %q to verify nurse123", hash)
	}
}

func TestWriteHash_Rejects(t *testing.T) {
	var buf bytes.Buffer
	if err := writeHash(&buf, "", bcrypt.MinCost); err == nil {
		t.Error("expected error for empty password")
	}
	if err := writeHash(&buf, "secret", 1); err == nil {
		t.Error("expected error for cost below minimum")
	}
}

func TestHashPasswordCommand(t *testing.T) {
	cmd := rootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"hash-password", "--cost", "4", "admin123"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !auth.CheckPassword("admin123", strings.TrimSpace(out.String())) {
		t.Errorf("expected printed hash to verify, got %q", out.String())
	}
}

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd().Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "hash-password"} {
		if !names[want] {
			t.Errorf("expected %s subcommand", want)
		}
	}
}
