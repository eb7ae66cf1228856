// Package tokenstore provides persistent storage for dashboard session credentials.
//
// Supports four storage backends with different security and deployment tradeoffs:
//   - File: Local filesystem storage with atomic writes and secure permissions
//   - Keyring: OS-native credential storage (macOS Keychain, Windows Credential Manager, etc.)
//   - Redis: Shared storage for headless deployments running several ambassadors
//   - Memory: Process-local storage that is lost on exit
//
// Every backend stores the whole credential record (access token, refresh token,
// expiry and cached user) as a single JSON document, so a record is always replaced
// atomically and never observed half-written.
package tokenstore
