package discord

import "context"

// API is the surface the HTTP handlers need. The real Client and the offline
// mock both satisfy it.
type API interface {
	AuthorizeURL(state, redirectURI string) string
	ExchangeCode(ctx context.Context, code, redirectURI string) (*Token, error)
	CurrentUser(ctx context.Context, accessToken string) (*User, error)
	GuildMember(ctx context.Context, did string) (*Member, error)
	IsBanned(ctx context.Context, did string) bool
	HasRole(member *Member) bool
	AddRole(ctx context.Context, did string) error
	RemoveRole(ctx context.Context, did string) error
	Ready(ctx context.Context) error
}

var _ API = (*Client)(nil)
var _ API = (*MockAPI)(nil)

// MockAPI runs the portal without Discord credentials. Every login becomes the
// configured fake user with the role present.
type MockAPI struct {
	User   User
	RoleID string
	Banned map[string]bool
	// MemberRoles overrides the roles reported for the fake member.
	// Nil means the member carries RoleID.
	MemberRoles []string
}

func NewMock() *MockAPI {
	return &MockAPI{
		User:   User{ID: "100000000000000001", Username: "mockuser", Discriminator: "0"},
		RoleID: "200000000000000002",
	}
}

func (m *MockAPI) AuthorizeURL(state, redirectURI string) string {
	return redirectURI + "?code=mock&state=" + state
}

func (m *MockAPI) ExchangeCode(context.Context, string, string) (*Token, error) {
	return &Token{AccessToken: "mock-token", TokenType: "Bearer"}, nil
}

func (m *MockAPI) CurrentUser(context.Context, string) (*User, error) {
	u := m.User
	return &u, nil
}

func (m *MockAPI) GuildMember(_ context.Context, did string) (*Member, error) {
	if did != m.User.ID {
		return nil, ErrNotMember
	}
	roles := m.MemberRoles
	if roles == nil {
		roles = []string{m.RoleID}
	}
	return &Member{Roles: roles}, nil
}

func (m *MockAPI) IsBanned(_ context.Context, did string) bool {
	return m.Banned[did]
}

func (m *MockAPI) HasRole(member *Member) bool {
	if member == nil {
		return false
	}
	for _, role := range member.Roles {
		if role == m.RoleID {
			return true
		}
	}
	return false
}

func (m *MockAPI) AddRole(context.Context, string) error    { return nil }
func (m *MockAPI) RemoveRole(context.Context, string) error { return nil }
func (m *MockAPI) Ready(context.Context) error              { return nil }
