package session

import (
	"time"

	"golang.org/x/oauth2"
)

// User is the authenticated dashboard identity as reported by the admin API.
type User struct {
	ID          string   `json:"id"`
	Email       string   `json:"email"`
	Name        string   `json:"name,omitempty"`
	Role        string   `json:"role,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
}

// Grant is the token pair issued by a login or refresh call.
type Grant struct {
	AccessToken  string
	RefreshToken string
	// ExpiresIn is the access token lifetime declared by the server. Zero means unknown.
	ExpiresIn time.Duration
	User      *User
}

// Credentials is the persisted form of a session.
type Credentials struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	Expiry       time.Time `json:"expiry,omitzero"`
	User         *User     `json:"user,omitempty"`
}

// Credentials converts the grant into a persistable record issued at now.
// previous supplies the refresh token and user when the server omits them.
func (g *Grant) Credentials(now time.Time, previous *Credentials) *Credentials {
	c := &Credentials{
		AccessToken:  g.AccessToken,
		RefreshToken: g.RefreshToken,
		User:         g.User,
	}
	if g.ExpiresIn > 0 {
		c.Expiry = now.Add(g.ExpiresIn)
	}
	if previous != nil {
		if c.RefreshToken == "" {
			c.RefreshToken = previous.RefreshToken
		}
		if c.User == nil {
			c.User = previous.User
		}
	}
	return c
}

// Token returns the access token in oauth2 form.
func (c *Credentials) Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  c.AccessToken,
		TokenType:    "Bearer",
		RefreshToken: c.RefreshToken,
		Expiry:       c.Expiry,
	}
}
