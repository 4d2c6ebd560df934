// Package session persists the ambient credentials (cookies) of a client
// session.
//
// # Binary encoding
//
// Cookie sets are stored in a compact versioned binary format. Decode reads
// every supported version; Encode always writes the current one.
//
// # Stores
//
// [MemoryStore] lives and dies with the process, [FileStore] keeps one file
// per host for CLI use, and [RedisStore] keeps it in Redis so a session
// outlives any one process.
//
// # Architecture boundaries
//
// This package never inspects cookie values. Deciding when a session is
// expired, refreshing it or clearing it belongs to the client.
package session
