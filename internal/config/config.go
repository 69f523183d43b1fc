package config

import (
	"fmt"
	"os"
	"strings"
)

type Config struct {
	BaseURL string        `json:"base_url"`
	Discord DiscordConfig `json:"discord"`
	Owner   OwnerConfig   `json:"owner"`
	Store   StoreConfig   `json:"store"`
	Session SessionConfig `json:"session"`
	Portal  PortalConfig  `json:"portal"`
	Mocks   MocksConfig   `json:"mocks"`
}

type DiscordConfig struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	RedirectURI  string `json:"redirect_uri"` // optional override, must match the Discord app
	GuildID      string `json:"guild_id"`
	RoleID       string `json:"role_id"`
	BotToken     string `json:"bot_token"`
	APIBase      string `json:"api_base"`
}

type OwnerConfig struct {
	ID string `json:"id"`
}

type StoreConfig struct {
	Dir string `json:"dir"`
}

type SessionConfig struct {
	CookieName   string `json:"cookie_name"`
	CookieDomain string `json:"cookie_domain"`
	Secure       bool   `json:"secure"`
}

// PortalConfig drives the verify page and its form controller script.
type PortalConfig struct {
	// TargetURL is the base URL the continue button navigates to with the
	// discord_id parameter appended. Empty is allowed; the redirect then
	// degrades to a query-only relative link.
	TargetURL string `json:"target_url"`
	// RequireCopySuccess gates enabling the continue button on the copy
	// actually landing on the clipboard instead of on any attempt.
	RequireCopySuccess bool `json:"require_copy_success"`
}

type MocksConfig struct {
	Enable bool `json:"enable"`
}

func (d DiscordConfig) Enabled() bool {
	return d.ClientID != "" && d.ClientSecret != ""
}

// BotConfigured reports whether guild lookups and role mutation can work.
func (d DiscordConfig) BotConfigured() bool {
	return d.GuildID != "" && d.BotToken != ""
}

func Load() (*Config, error) {
	config := &Config{
		BaseURL: strings.TrimRight(getEnvOrDefault("BASE_URL", "https://gaming-mods.com"), "/"),
		Discord: DiscordConfig{
			ClientID:     os.Getenv("DISCORD_CLIENT_ID"),
			ClientSecret: os.Getenv("DISCORD_CLIENT_SECRET"),
			RedirectURI:  strings.TrimSpace(os.Getenv("DISCORD_REDIRECT")),
			GuildID:      os.Getenv("DISCORD_GUILD_ID"),
			RoleID:       os.Getenv("DISCORD_ROLE_ID"),
			BotToken:     os.Getenv("DISCORD_BOT_TOKEN"),
			APIBase:      getEnvOrDefault("DISCORD_API_BASE", "https://discord.com/api"),
		},
		Owner: OwnerConfig{
			ID: os.Getenv("OWNER_ID"),
		},
		Store: StoreConfig{
			Dir: getEnvOrDefault("STORE_DIR", "."),
		},
		Session: SessionConfig{
			CookieName:   getEnvOrDefault("SESSION_COOKIE_NAME", "verifier_session"),
			CookieDomain: os.Getenv("SESSION_COOKIE_DOMAIN"),
			Secure:       getEnvOrDefault("SESSION_COOKIE_SECURE", "1") != "0",
		},
		Portal: PortalConfig{
			TargetURL:          os.Getenv("PORTAL_TARGET_URL"),
			RequireCopySuccess: os.Getenv("PORTAL_REQUIRE_COPY_SUCCESS") == "1",
		},
		Mocks: MocksConfig{
			Enable: os.Getenv("VERIFIER_MOCKS") == "1",
		},
	}

	if config.Portal.TargetURL == "" {
		config.Portal.TargetURL = config.BaseURL + "/keys.html"
	}

	if !config.Mocks.Enable && !config.Discord.Enabled() {
		return nil, fmt.Errorf("DISCORD_CLIENT_ID and DISCORD_CLIENT_SECRET are required (or set VERIFIER_MOCKS=1)")
	}

	return config, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
