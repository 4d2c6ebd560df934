// Package goSession provides an HTTP client for the stays marketplace backend
// that carries the session cookies ambiently and renews an expired session
// without the caller noticing.
//
// Clients are built once through [Builder.Build] and are safe to use from
// many goroutines.
//
// # Session recovery
//
// A 401 on a protected path means the session expired. The first request to
// see it becomes the leader of a refresh episode and calls the refresh
// endpoint; requests failing meanwhile queue behind it on the
// [SessionCoordinator] and are released in arrival order with its outcome.
// Every request is replayed at most once. A 401 under the auth prefix (bad
// password on login or signup) is returned untouched. When the session cannot
// be renewed the cookies are cleared and [Client.OnSessionExpired] subscribers
// are told where to send the user.
//
// Clients built with [Builder.WithSessionOf] share one cookie jar and one
// coordinator, so they refresh a common session at most once between them.
//
// # Architecture boundaries
//
// goSession never reads cookie values and holds no business rules. Typed
// marketplace calls live in the marketplace package; cookie persistence
// lives in the session package.
//
// # What this package must NOT do
//
//   - Retry a request more than once, or retry anything other than a 401.
//   - Refresh on a 401 from the auth domain or from the refresh call itself.
//   - Navigate or render; session loss is only reported.
package goSession
