package config

import "testing"

func TestDefaultTemplateParses(t *testing.T) {
	cfg, err := FromYAML([]byte(GenerateDefault()))
	if err != nil {
		t.Fatalf("parse default template: %v", err)
	}
	if cfg.Server.Addr != "127.0.0.1:8484" || cfg.Planner.FixedDay != 28 {
		t.Fatalf("defaults: %+v", cfg)
	}
	if cfg.Server.AllowLegacyUserHeader {
		t.Fatal("legacy header auth must be off by default")
	}
}

func TestLegacyHeaderKnob(t *testing.T) {
	cfg, err := FromYAML([]byte("server:\n  allow_legacy_user_header: true\n"))
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Server.AllowLegacyUserHeader {
		t.Fatal("allow_legacy_user_header not honored")
	}
}

func TestValidateRejectsBadFixedDay(t *testing.T) {
	if _, err := FromYAML([]byte("planner:\n  fixed_day: 31\n")); err == nil {
		t.Fatal("fixed_day 31 must be rejected")
	}
	if _, err := FromYAML([]byte("planner:\n  fixed_day: 0\n")); err != nil {
		t.Fatalf("unset fixed_day must pass: %v", err)
	}
}
