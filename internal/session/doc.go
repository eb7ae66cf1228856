// Package session holds the credential and identity records shared by the
// token store, the admin API client and the refresh coordinator.
package session
