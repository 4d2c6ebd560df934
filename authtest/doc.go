// Package authtest provides an in-process fake of the marketplace auth
// backend for tests and load generation.
//
// The server issues a short-lived JWT access cookie and an opaque rotating
// refresh cookie on login and signup, rotates the refresh secret on every
// refresh and revokes the session when a rotated-out secret is replayed.
// Routes registered with [Server.HandleProtected] require a current access
// cookie and answer 401 otherwise.
//
// Test controls ([Server.ExpireSessions], [Server.FailRefresh],
// [Server.HoldRefresh]) drive the client through session expiry, refresh
// rejection and slow refresh windows.
package authtest
