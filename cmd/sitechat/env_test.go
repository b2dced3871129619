package main

import "testing"

func TestGetEnv(t *testing.T) {
	t.Setenv("SITECHAT_TEST_STR", "value")
	if got := getEnv("SITECHAT_TEST_STR", "default"); got != "value" {
		t.Errorf("getEnv = %q, want value", got)
	}
	if got := getEnv("SITECHAT_TEST_UNSET", "default"); got != "default" {
		t.Errorf("getEnv = %q, want default", got)
	}
}

func TestGetEnvInt(t *testing.T) {
	tests := []struct {
		value string
		want  int
	}{
		{"42", 42},
		{"", 7},
		{"abc", 7},
	}
	for _, tt := range tests {
		t.Setenv("SITECHAT_TEST_INT", tt.value)
		if got := getEnvInt("SITECHAT_TEST_INT", 7); got != tt.want {
			t.Errorf("getEnvInt(%q) = %d, want %d", tt.value, got, tt.want)
		}
	}
}

func TestGetEnvFloat(t *testing.T) {
	t.Setenv("SITECHAT_TEST_FLOAT", "2.5")
	if got := getEnvFloat("SITECHAT_TEST_FLOAT", 0); got != 2.5 {
		t.Errorf("getEnvFloat = %v, want 2.5", got)
	}
	t.Setenv("SITECHAT_TEST_FLOAT", "fast")
	if got := getEnvFloat("SITECHAT_TEST_FLOAT", 1); got != 1 {
		t.Errorf("getEnvFloat = %v, want fallback 1", got)
	}
}

func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"true", true},
		{"1", true},
		{"yes", true},
		{"false", false},
		{"no", false},
		{"", true},
	}
	for _, tt := range tests {
		t.Setenv("SITECHAT_TEST_BOOL", tt.value)
		if got := getEnvBool("SITECHAT_TEST_BOOL", true); got != tt.want {
			t.Errorf("getEnvBool(%q) = %v, want %v", tt.value, got, tt.want)
		}
	}
}

func TestRootCommand_HasModes(t *testing.T) {
	want := map[string]bool{"api": false, "worker": false, "all": false, "migrate": false, "version": false}
	for _, cmd := range rootCmd.Commands() {
		if _, ok := want[cmd.Name()]; ok {
			want[cmd.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("missing subcommand %q", name)
		}
	}
}
