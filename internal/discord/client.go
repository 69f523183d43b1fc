package discord

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/sync/singleflight"

	"verifier/internal/config"
)

var (
	ErrNotMember        = errors.New("discord: user is not a guild member")
	ErrBotNotConfigured = errors.New("discord: guild or bot token not configured")
)

// StatusError carries the Discord API status for non-200 responses the caller
// may want to map onto its own status codes.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("discord: unexpected status %d: %s", e.Status, e.Body)
}

type Token struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	Scope        string `json:"scope"`
}

type User struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	Discriminator string `json:"discriminator"`
}

type Member struct {
	Roles []string `json:"roles"`
}

var idPattern = regexp.MustCompile(`^\d{1,24}$`)

// ValidID reports whether s looks like a Discord snowflake.
func ValidID(s string) bool {
	return idPattern.MatchString(s)
}

const exchangeCacheTTL = 2 * time.Minute

type cachedExchange struct {
	token *Token
	ts    time.Time
}

// Client talks to the Discord HTTP API. Outbound calls go through a retrying
// HTTP client, which also waits out 429 responses using Retry-After.
type Client struct {
	cfg  config.DiscordConfig
	http *http.Client

	// The same OAuth code must never be exchanged twice: Discord invalidates
	// it on first use, and double-clicked callbacks would otherwise fail.
	exchanges  singleflight.Group
	exchangeMu sync.Mutex
	recent     map[string]cachedExchange
}

func NewClient(cfg config.DiscordConfig) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.HTTPClient.Timeout = 15 * time.Second
	rc.Logger = nil

	return &Client{
		cfg:    cfg,
		http:   rc.StandardClient(),
		recent: make(map[string]cachedExchange),
	}
}

// AuthorizeURL builds the consent URL the login redirect sends the browser to.
func (c *Client) AuthorizeURL(state, redirectURI string) string {
	params := url.Values{}
	params.Set("client_id", c.cfg.ClientID)
	params.Set("redirect_uri", redirectURI)
	params.Set("response_type", "code")
	params.Set("scope", "identify")
	params.Set("state", state)
	params.Set("prompt", "consent")
	return c.cfg.APIBase + "/oauth2/authorize?" + params.Encode()
}

// ExchangeCode trades an OAuth code for a token. Concurrent calls with the
// same code share one exchange, and the result is kept briefly so a replayed
// callback gets the original token instead of an invalid_grant error.
func (c *Client) ExchangeCode(ctx context.Context, code, redirectURI string) (*Token, error) {
	if code == "" {
		return nil, errors.New("discord: missing oauth code")
	}

	c.exchangeMu.Lock()
	if cached, ok := c.recent[code]; ok && time.Since(cached.ts) < exchangeCacheTTL {
		c.exchangeMu.Unlock()
		return cached.token, nil
	}
	c.exchangeMu.Unlock()

	result, err, _ := c.exchanges.Do(code, func() (any, error) {
		token, err := c.exchangeCode(ctx, code, redirectURI)
		if err != nil {
			return nil, err
		}
		c.exchangeMu.Lock()
		c.recent[code] = cachedExchange{token: token, ts: time.Now()}
		for k, v := range c.recent {
			if time.Since(v.ts) >= exchangeCacheTTL {
				delete(c.recent, k)
			}
		}
		c.exchangeMu.Unlock()
		return token, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*Token), nil
}

func (c *Client) exchangeCode(ctx context.Context, code, redirectURI string) (*Token, error) {
	form := url.Values{}
	form.Set("client_id", c.cfg.ClientID)
	form.Set("client_secret", c.cfg.ClientSecret)
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", redirectURI)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIBase+"/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	var token Token
	if err := c.do(req, &token); err != nil {
		return nil, fmt.Errorf("token exchange failed: %w", err)
	}
	if token.AccessToken == "" {
		return nil, errors.New("discord: token exchange returned no access token")
	}
	return &token, nil
}

// CurrentUser fetches the identity behind a user access token.
func (c *Client) CurrentUser(ctx context.Context, accessToken string) (*User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.APIBase+"/users/@me", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	var user User
	if err := c.do(req, &user); err != nil {
		return nil, fmt.Errorf("user fetch failed: %w", err)
	}
	return &user, nil
}

// GuildMember looks up guild membership with the bot token. Returns
// ErrNotMember on 404.
func (c *Client) GuildMember(ctx context.Context, did string) (*Member, error) {
	if !c.cfg.BotConfigured() {
		return nil, ErrBotNotConfigured
	}
	req, err := c.botRequest(ctx, http.MethodGet, fmt.Sprintf("/guilds/%s/members/%s", c.cfg.GuildID, did))
	if err != nil {
		return nil, err
	}

	var member Member
	if err := c.do(req, &member); err != nil {
		var se *StatusError
		if errors.As(err, &se) && se.Status == http.StatusNotFound {
			return nil, ErrNotMember
		}
		return nil, fmt.Errorf("member lookup failed: %w", err)
	}
	return &member, nil
}

// IsBanned reports whether the guild has a ban entry for the user. Lookup
// problems are treated as "not banned", matching the portal's lenient stance.
func (c *Client) IsBanned(ctx context.Context, did string) bool {
	if !c.cfg.BotConfigured() {
		return false
	}
	req, err := c.botRequest(ctx, http.MethodGet, fmt.Sprintf("/guilds/%s/bans/%s", c.cfg.GuildID, did))
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer drain(resp.Body)
	return resp.StatusCode == http.StatusOK
}

// HasRole reports whether the member carries the configured role.
func (c *Client) HasRole(member *Member) bool {
	if member == nil || c.cfg.RoleID == "" {
		return false
	}
	for _, role := range member.Roles {
		if role == c.cfg.RoleID {
			return true
		}
	}
	return false
}

func (c *Client) AddRole(ctx context.Context, did string) error {
	return c.mutateRole(ctx, http.MethodPut, did)
}

func (c *Client) RemoveRole(ctx context.Context, did string) error {
	return c.mutateRole(ctx, http.MethodDelete, did)
}

func (c *Client) mutateRole(ctx context.Context, method, did string) error {
	if !c.cfg.BotConfigured() || c.cfg.RoleID == "" {
		return ErrBotNotConfigured
	}
	req, err := c.botRequest(ctx, method, fmt.Sprintf("/guilds/%s/members/%s/roles/%s", c.cfg.GuildID, did, c.cfg.RoleID))
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer drain(resp.Body)
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Status: resp.StatusCode, Body: string(body)}
	}
	return nil
}

// Ready probes the unauthenticated gateway endpoint.
func (c *Client) Ready(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.APIBase+"/gateway", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer drain(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("discord gateway returned %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) botRequest(ctx context.Context, method, path string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.APIBase+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bot "+c.cfg.BotToken)
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer drain(resp.Body)

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Status: resp.StatusCode, Body: string(body)}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func drain(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 4096))
	_ = body.Close()
}
