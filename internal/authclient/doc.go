// Package authclient talks to the admin dashboard's authentication endpoints.
//
// The dashboard does not speak standard OAuth2 on the wire: login and refresh
// exchange camelCase JSON envelopes and report failures in-band through a
// success flag, so the grant flow is implemented here directly. Identity lookups
// reuse oauth2.Transport to attach the bearer token.
//
// # Endpoints
//
//	POST /auth/login    {"email", "password"}  -> token envelope
//	POST /auth/refresh  {"refreshToken"}       -> token envelope
//	GET  /auth/me       Authorization: Bearer  -> {"success", "user"}
//
// # Custom Base Transport
//
// Configure a custom base transport (e.g., for proxies or tests):
//
//	client, err := authclient.New(baseURL, authclient.WithTransport(customTransport))
package authclient
