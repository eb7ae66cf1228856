package tokenstore

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/florianilch/claudine-auth/internal/session"
)

func encode(creds *session.Credentials) ([]byte, error) {
	if creds == nil {
		return nil, errors.New("credentials cannot be nil")
	}
	if creds.AccessToken == "" {
		return nil, errors.New("access token cannot be empty")
	}
	return json.Marshal(creds)
}

func decode(data []byte) (*session.Credentials, error) {
	creds := &session.Credentials{}
	if err := json.Unmarshal(data, creds); err != nil {
		return nil, fmt.Errorf("decoding stored credentials: %w", err)
	}
	if creds.AccessToken == "" {
		return nil, ErrNotFound
	}
	return creds, nil
}
