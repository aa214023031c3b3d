package kconfig

import (
	"strings"
	"testing"
)

func TestParseOverridesDefaults(t *testing.T) {
	cfg := Default()
	src := strings.NewReader(`
# boot configuration
policy = mlfqs
kernel-frames = 8
user-frames = 128
swap-slots = 64
debug = true
run alarm-multiple
run "priority-donate-one arg"
`)
	if err := Parse(src, cfg); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Policy != PolicyMLFQS {
		t.Fatalf("Policy = %q, want %q", cfg.Policy, PolicyMLFQS)
	}
	if cfg.KernelFrames != 8 || cfg.UserFrames != 128 || cfg.SwapSlots != 64 {
		t.Fatalf("frame/slot counts not applied: %+v", cfg)
	}
	if !cfg.Debug {
		t.Fatal("debug = false, want true")
	}
	if len(cfg.RunCommands) != 2 {
		t.Fatalf("RunCommands = %v, want 2 entries", cfg.RunCommands)
	}
}

func TestParseIgnoresBlankAndCommentLines(t *testing.T) {
	cfg := Default()
	src := strings.NewReader("\n  \n# nothing here\npolicy = priority\n")
	if err := Parse(src, cfg); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Policy != PolicyPriority {
		t.Fatalf("Policy = %q, want %q", cfg.Policy, PolicyPriority)
	}
}

func TestParseUnknownKeyErrors(t *testing.T) {
	cfg := Default()
	if err := Parse(strings.NewReader("bogus-key = 1"), cfg); err == nil {
		t.Fatal("expected an error for an unregistered key")
	}
}

func TestParseBadPolicyErrors(t *testing.T) {
	cfg := Default()
	if err := Parse(strings.NewReader("policy = warp-speed"), cfg); err == nil {
		t.Fatal("expected an error for an unknown policy name")
	}
}

func TestParseBadIntegerErrors(t *testing.T) {
	cfg := Default()
	if err := Parse(strings.NewReader("user-frames = lots"), cfg); err == nil {
		t.Fatal("expected an error for a non-integer value")
	}
}

func TestSplitDirectiveAcceptsSpaceSeparated(t *testing.T) {
	key, value, err := splitDirective("run some-test")
	if err != nil {
		t.Fatalf("splitDirective: %v", err)
	}
	if key != "run" || value != "some-test" {
		t.Fatalf("got (%q, %q)", key, value)
	}
}
