// Package persistence holds the shared store backends: in-memory, JSON
// file, SQL (SQLite and PostgreSQL), Redis and MongoDB.
package persistence

import (
	"github.com/petrijr/pocketflow/pkg/api"
)

// DefaultPrefix namespaces keys in shared backends.
const DefaultPrefix = "pocketflow"

// Ensure every backend implements api.Store.
var (
	_ api.Store = (*InMemoryStore)(nil)
	_ api.Store = (*FileStore)(nil)
	_ api.Store = (*SQLStore)(nil)
	_ api.Store = (*RedisStore)(nil)
	_ api.Store = (*MongoStore)(nil)
)

func prefixOrDefault(prefix string) string {
	if prefix == "" {
		return DefaultPrefix
	}
	return prefix
}
