package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFindConfig_Explicit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	os.WriteFile(path, []byte("server:\n  port: 9999\n"), 0600)

	got, err := FindConfig(path)
	if err != nil {
		t.Fatalf("FindConfig(%q) error: %v", path, err)
	}
	if got != path {
		t.Errorf("FindConfig(%q) = %q, want %q", path, got, path)
	}
}

func TestFindConfig_ExplicitMissing(t *testing.T) {
	_, err := FindConfig("/nonexistent/config.yaml")
	if err == nil {
		t.Fatal("FindConfig with missing explicit path should error")
	}
}

func TestFindConfig_SearchPath(t *testing.T) {
	// Override searchPathsFunc to avoid finding real config files on
	// developer/deploy machines.
	dir := t.TempDir()
	orig := searchPathsFunc
	searchPathsFunc = func() []string {
		return []string{filepath.Join(dir, "config.yaml")}
	}
	defer func() { searchPathsFunc = orig }()

	_, err := FindConfig("")
	if err == nil {
		t.Fatal("FindConfig(\"\") with no config files should error")
	}
}

func TestFindConfig_CWD(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	os.WriteFile(path, []byte("server:\n  port: 8080\n"), 0600)

	orig, _ := os.Getwd()
	os.Chdir(dir)
	defer os.Chdir(orig)

	got, err := FindConfig("")
	if err != nil {
		t.Fatalf("FindConfig(\"\") error: %v", err)
	}
	if got != "config.yaml" {
		t.Errorf("FindConfig(\"\") = %q, want %q", got, "config.yaml")
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("server.port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.NotifyMinPriority != "medium" {
		t.Errorf("notify_min_priority = %q, want medium", cfg.NotifyMinPriority)
	}
	if len(cfg.Filing.Forms) == 0 {
		t.Error("expected default filing forms list to be non-empty")
	}
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	os.WriteFile(path, []byte("server:\n  port: 9090\nquotes:\n  enabled: true\n  symbols:\n    - AAPL\n    - TSLA\n  threshold_pct: 3.5\n"), 0600)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("server.port = %d, want 9090", cfg.Server.Port)
	}
	if !cfg.Quotes.Enabled || len(cfg.Quotes.Symbols) != 2 {
		t.Errorf("quotes = %+v, want enabled with 2 symbols", cfg.Quotes)
	}
	if cfg.Quotes.ThresholdPct != 3.5 {
		t.Errorf("quotes.threshold_pct = %v, want 3.5", cfg.Quotes.ThresholdPct)
	}
}

func TestLoad_EnvVarsOverrideYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	os.WriteFile(path, []byte("server:\n  port: 9090\n"), 0600)

	os.Setenv("DUETTO_SERVER__PORT", "7070")
	defer os.Unsetenv("DUETTO_SERVER__PORT")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("server.port = %d, want 7070 from env override", cfg.Server.Port)
	}
}

func TestLoad_ChatBotFromEnv(t *testing.T) {
	os.Setenv("DUETTO_CHATBOT__TOKEN", "tok123")
	os.Setenv("DUETTO_CHATBOT__CHAT_ID", "chat1")
	defer os.Unsetenv("DUETTO_CHATBOT__TOKEN")
	defer os.Unsetenv("DUETTO_CHATBOT__CHAT_ID")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if !cfg.ChatBot.Configured() {
		t.Errorf("expected chatbot configured from env, got %+v", cfg.ChatBot)
	}
}

func TestValidate_BadNotifyMinPriority(t *testing.T) {
	cfg := Default()
	cfg.NotifyMinPriority = "urgent"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for unrecognized notify_min_priority")
	}
}

func TestValidate_BadWebhookFormat(t *testing.T) {
	cfg := Default()
	cfg.Webhook = WebhookConfig{URL: "https://example.test/hook", Format: "bogus"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for unrecognized webhook.format")
	}
}

func TestValidate_AIEnabledRequiresKeyForChatProvider(t *testing.T) {
	cfg := Default()
	cfg.AI = AIConfig{Enabled: true, Provider: "chat_v1"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for missing ai.api_key")
	}
}

func TestValidate_AIRuleProviderNeedsNoKey(t *testing.T) {
	cfg := Default()
	cfg.AI = AIConfig{Enabled: true, Provider: "rule"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
}

func TestValidate_QuotesEnabledNeedsPositiveThreshold(t *testing.T) {
	cfg := Default()
	cfg.Quotes = QuotesConfig{Enabled: true, Symbols: []string{"AAPL"}, ThresholdPct: 0}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for zero threshold_pct")
	}
}

func TestDefault_IsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default() should be valid, got: %v", err)
	}
}

func TestSMTPConfig_Configured(t *testing.T) {
	tests := []struct {
		name string
		cfg  SMTPConfig
		want bool
	}{
		{"all set", SMTPConfig{Host: "smtp.test", From: "a@test", To: []string{"b@test"}}, true},
		{"no host", SMTPConfig{From: "a@test", To: []string{"b@test"}}, false},
		{"no recipients", SMTPConfig{Host: "smtp.test", From: "a@test"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.Configured(); got != tt.want {
				t.Errorf("Configured() = %v, want %v", got, tt.want)
			}
		})
	}
}
