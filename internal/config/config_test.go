package config

import "testing"

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"BASE_URL", "DISCORD_CLIENT_ID", "DISCORD_CLIENT_SECRET", "DISCORD_REDIRECT",
		"DISCORD_GUILD_ID", "DISCORD_ROLE_ID", "DISCORD_BOT_TOKEN", "DISCORD_API_BASE",
		"OWNER_ID", "STORE_DIR", "SESSION_COOKIE_NAME", "SESSION_COOKIE_DOMAIN",
		"SESSION_COOKIE_SECURE", "PORTAL_TARGET_URL", "PORTAL_REQUIRE_COPY_SUCCESS",
		"VERIFIER_MOCKS",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadRequiresCredentialsOrMocks(t *testing.T) {
	clearEnv(t)
	if _, err := Load(); err == nil {
		t.Fatalf("expected error without Discord credentials")
	}

	t.Setenv("VERIFIER_MOCKS", "1")
	if _, err := Load(); err != nil {
		t.Fatalf("mocks should allow loading without credentials: %v", err)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("VERIFIER_MOCKS", "1")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.BaseURL != "https://gaming-mods.com" {
		t.Fatalf("unexpected default base URL %q", cfg.BaseURL)
	}
	if cfg.Portal.TargetURL != "https://gaming-mods.com/keys.html" {
		t.Fatalf("unexpected default target URL %q", cfg.Portal.TargetURL)
	}
	if cfg.Session.CookieName != "verifier_session" {
		t.Fatalf("unexpected default cookie name %q", cfg.Session.CookieName)
	}
	if !cfg.Session.Secure {
		t.Fatalf("cookies should default to secure")
	}
	if cfg.Portal.RequireCopySuccess {
		t.Fatalf("copy-success gate should default off")
	}
	if cfg.Discord.APIBase != "https://discord.com/api" {
		t.Fatalf("unexpected default API base %q", cfg.Discord.APIBase)
	}
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("DISCORD_CLIENT_ID", "id")
	t.Setenv("DISCORD_CLIENT_SECRET", "secret")
	t.Setenv("BASE_URL", "https://example.com/")
	t.Setenv("PORTAL_TARGET_URL", "https://example.com/dl?src=portal")
	t.Setenv("PORTAL_REQUIRE_COPY_SUCCESS", "1")
	t.Setenv("SESSION_COOKIE_SECURE", "0")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.BaseURL != "https://example.com" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.BaseURL)
	}
	if cfg.Portal.TargetURL != "https://example.com/dl?src=portal" {
		t.Fatalf("target URL override ignored: %q", cfg.Portal.TargetURL)
	}
	if !cfg.Portal.RequireCopySuccess {
		t.Fatalf("expected copy-success gate enabled")
	}
	if cfg.Session.Secure {
		t.Fatalf("expected secure cookies disabled")
	}
	if !cfg.Discord.Enabled() {
		t.Fatalf("expected Discord enabled with credentials")
	}
	if cfg.Discord.BotConfigured() {
		t.Fatalf("bot should not be configured without guild and token")
	}
}
