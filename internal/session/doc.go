// Package session issues and verifies session tokens and tracks the
// client-side current session.
//
// Tokens are HS256 JWTs carrying the user (sub), the role and a UUIDv7
// session ID (sid). The server verifies them on every request through
// Manager.Middleware; clients hold the current session in a State and
// subscribe to its changes.
package session
