package coordinator

import (
	"encoding/base64"
	"strconv"
	"testing"
	"time"
)

func TestTokenExpiresBefore(t *testing.T) {
	now := epoch
	unsigned := func(payload string) string {
		enc := base64.RawURLEncoding
		return enc.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`)) + "." + enc.EncodeToString([]byte(payload)) + ".sig"
	}

	tests := []struct {
		name    string
		token   string
		expired bool
	}{
		{"expires after buffer", signToken(t, "a", now.Add(301*time.Second)), false},
		{"expires inside buffer", signToken(t, "a", now.Add(299*time.Second)), true},
		{"already expired", signToken(t, "a", now.Add(-time.Minute)), true},
		{"signature not checked", unsigned(`{"exp":` + strconv.FormatInt(now.Add(time.Hour).Unix(), 10) + `}`), false},
		{"missing exp", unsigned(`{"sub":"a"}`), true},
		{"payload not json", unsigned(`not-json`), true},
		{"not base64", "a.%%%.b", true},
		{"wrong segment count", "abc", true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TokenExpiresBefore(tt.token, now.Add(DefaultExpiryBuffer)); got != tt.expired {
				t.Errorf("TokenExpiresBefore() = %v, want %v", got, tt.expired)
			}
		})
	}
}

func TestIsTokenExpiredUsesBuffer(t *testing.T) {
	h := newHarness(t, WithExpiryBuffer(time.Minute))
	token := signToken(t, "a", h.clock.Now().Add(2*time.Minute))

	if h.c.IsTokenExpired(token) {
		t.Fatal("token expiring after the buffer reported expired")
	}
	h.clock.Advance(90 * time.Second)
	if !h.c.IsTokenExpired(token) {
		t.Fatal("token expiring inside the buffer reported valid")
	}
}
