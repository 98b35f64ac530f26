package toolpolicy

import (
	"testing"
	"time"
)

func TestPresetDefaultsOrdering(t *testing.T) {
	permissive := PresetDefaults(PresetPermissive)
	balanced := PresetDefaults(PresetBalanced)
	strict := PresetDefaults(PresetStrict)
	hardened := PresetDefaults(PresetHardened)

	if !(permissive.MaxOutputBytes > balanced.MaxOutputBytes &&
		balanced.MaxOutputBytes > strict.MaxOutputBytes &&
		strict.MaxOutputBytes > hardened.MaxOutputBytes) {
		t.Fatalf("expected strictly decreasing byte caps: %d %d %d %d",
			permissive.MaxOutputBytes, balanced.MaxOutputBytes, strict.MaxOutputBytes, hardened.MaxOutputBytes)
	}
	if permissive.CommandAllowlist != nil {
		t.Fatal("permissive preset should not restrict commands")
	}
	if strict.CommandAllowlist == nil || hardened.CommandAllowlist == nil {
		t.Fatal("strict and hardened presets should restrict commands")
	}
}

func TestAllowsCommand(t *testing.T) {
	permissive := PresetDefaults(PresetPermissive)
	if !permissive.AllowsCommand("rm") {
		t.Fatal("permissive should allow any command")
	}

	strict := PresetDefaults(PresetStrict)
	if !strict.AllowsCommand("ls") {
		t.Fatal("strict should allow ls")
	}
	if strict.AllowsCommand("rm") {
		t.Fatal("strict should not allow rm")
	}
}

func TestResolveOverrides(t *testing.T) {
	maxBytes := 1234
	duration := 42 * time.Second
	sandbox := SandboxIsolated

	policy := Resolve(PresetBalanced, Overrides{
		MaxOutputBytes:   &maxBytes,
		MaxExecutionTime: &duration,
		Sandbox:          &sandbox,
		AllowCommands:    []string{"ls", "cat", "rm"},
		DenyCommands:     []string{"rm"},
	})

	if policy.MaxOutputBytes != maxBytes {
		t.Fatalf("MaxOutputBytes = %d, want %d", policy.MaxOutputBytes, maxBytes)
	}
	if policy.MaxExecutionTime != duration {
		t.Fatalf("MaxExecutionTime = %v, want %v", policy.MaxExecutionTime, duration)
	}
	if policy.Sandbox != SandboxIsolated {
		t.Fatalf("Sandbox = %v, want isolated", policy.Sandbox)
	}
	if !policy.AllowsCommand("ls") || !policy.AllowsCommand("cat") {
		t.Fatal("expected ls and cat to remain allowed")
	}
	if policy.AllowsCommand("rm") {
		t.Fatal("expected rm to be denied after DenyCommands override")
	}
}
