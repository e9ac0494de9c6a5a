package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// SchemaQualifier is the namespace prefix tried first by the dashboard queries
// and the table-existence probes. Deployments that rely on search_path leave it
// at the default; split-schema deployments override it.
//
// Set via env:
// - DB_SCHEMA_QUALIFIER (default "public")
func SchemaQualifier() string {
	v := strings.TrimSpace(os.Getenv("DB_SCHEMA_QUALIFIER"))
	if v == "" {
		return "public"
	}
	return v
}

// SnapshotCacheEnabled gates the redis-backed schema snapshot cache.
// When disabled (default) every conformance check introspects the live database.
//
// Set via env:
// - ENABLE_SNAPSHOT_CACHE=true
func SnapshotCacheEnabled() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("ENABLE_SNAPSHOT_CACHE")))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

// SnapshotCacheTTL controls how long a cached schema snapshot is served.
// Env: SNAPSHOT_CACHE_TTL_SECONDS (default 120s)
func SnapshotCacheTTL() time.Duration {
	ttl := 120
	if v := strings.TrimSpace(os.Getenv("SNAPSHOT_CACHE_TTL_SECONDS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			ttl = n
		}
	}
	return time.Duration(ttl) * time.Second
}
