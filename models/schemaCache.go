package models

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/salesdesk_backend/config"
	"bitbucket.org/mmdatafocus/salesdesk_backend/utils"
)

// The query layer in front of the database serves a cached view of the schema
// to all connections. After a DDL change there is a window where probes against
// columns that genuinely exist fail with "column does not exist". This file
// disambiguates that state (transient, recoverable) from a genuinely missing
// column (caller bug, do not retry) and drives the reload path.

// SettleDelay is the minimum wait between issuing a reload signal and
// re-probing. The cache layer gives no synchronous acknowledgement.
const SettleDelay = 200 * time.Millisecond

type CacheFreshnessResult struct {
	IsValid        bool     `json:"is_valid"`
	MissingColumns []string `json:"missing_columns,omitempty"`
}

// ReloadOutcome keeps "reload issued" and "reload confirmed effective" as
// distinct states. Both reload mechanisms are fire-and-forget, so Issued=true
// never implies the cache is fresh; only a successful re-probe sets Confirmed.
type ReloadOutcome struct {
	Issued    bool   `json:"issued"`
	Confirmed bool   `json:"confirmed"`
	Mechanism string `json:"mechanism,omitempty"`
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// CheckSchemaCacheFreshness issues a minimal read of probeColumns on
// probeTable. A "column does not exist" failure is reported as staleness with
// the offending column names extracted from the message; any other failure is
// returned as an error for the taxonomy mapper.
//
// probeTable and probeColumns are compile-time identifiers, never request
// input; the identifier check is a guard against misuse from new call sites.
func CheckSchemaCacheFreshness(ctx context.Context, probeTable string, probeColumns []string) (CacheFreshnessResult, error) {
	if !identifierPattern.MatchString(probeTable) {
		return CacheFreshnessResult{}, fmt.Errorf("invalid probe table %q", probeTable)
	}
	if len(probeColumns) == 0 {
		return CacheFreshnessResult{}, errors.New("at least one probe column required")
	}
	for _, col := range probeColumns {
		if !identifierPattern.MatchString(col) {
			return CacheFreshnessResult{}, fmt.Errorf("invalid probe column %q", col)
		}
	}
	db := config.GetDB()
	if db == nil {
		return CacheFreshnessResult{}, errors.New("database not initialized")
	}

	sql := "SELECT " + strings.Join(probeColumns, ", ") + " FROM " + probeTable + " LIMIT 1"

	var row map[string]interface{}
	err := db.WithContext(ctx).Raw(sql).Scan(&row).Error
	if err == nil {
		return CacheFreshnessResult{IsValid: true}, nil
	}
	if utils.IsUndefinedColumn(err) {
		missing := utils.ExtractMissingColumns(err.Error())
		if len(missing) == 0 {
			missing = probeColumns
		}
		return CacheFreshnessResult{IsValid: false, MissingColumns: missing}, nil
	}
	return CacheFreshnessResult{}, err
}

// StaleSchemaCacheError builds the taxonomy error surfaced when a probe finds
// the cache stale and reconciliation did not recover it.
func StaleSchemaCacheError(missingColumns []string) *utils.RichError {
	return &utils.RichError{
		Code:    utils.ErrCodeSchemaCacheStale,
		Message: "Query layer schema cache is out of date",
		Hint:    "Reload the schema cache and retry after a short delay.",
		Details: map[string]interface{}{"missing_columns": missingColumns},
	}
}

// SCHEMA_CACHE_RELOAD_CHANNEL overrides the NOTIFY channel (default pgrst).
func reloadChannel() string {
	v := strings.TrimSpace(os.Getenv("SCHEMA_CACHE_RELOAD_CHANNEL"))
	if v == "" {
		return "pgrst"
	}
	return v
}

// ReloadSchemaCache signals the query layer to re-read the schema. Primary
// mechanism is a NOTIFY on the reload channel; if that statement fails (some
// pooled connection modes reject bare NOTIFY) it falls back to pg_notify().
// At most one reload attempt per call: retry and backoff policy stays with the
// caller so a genuinely broken schema is never masked by a retry loop.
func ReloadSchemaCache(ctx context.Context) (ReloadOutcome, error) {
	db := config.GetDB()
	if db == nil {
		return ReloadOutcome{}, errors.New("database not initialized")
	}

	// Best-effort stampede guard. If redis is absent or the lock is held the
	// reload proceeds anyway; a duplicate NOTIFY is harmless.
	if locker := config.GetRedisLock(); locker != nil {
		if lock, err := locker.Obtain(ctx, "schema-cache:reload", 5*time.Second, nil); err == nil {
			defer lock.Release(ctx)
		}
	}

	// A snapshot document captured before the DDL change must not outlive it.
	InvalidateSchemaSnapshotCache()

	channel := reloadChannel()

	err := db.WithContext(ctx).Exec("NOTIFY " + channel + ", 'reload schema'").Error
	if err == nil {
		config.SchemaCacheReloads.WithLabelValues("notify", "ok").Inc()
		return ReloadOutcome{Issued: true, Mechanism: "notify"}, nil
	}
	config.SchemaCacheReloads.WithLabelValues("notify", "error").Inc()
	config.LogError(config.GetLogger(), "schemaCache.go", "ReloadSchemaCache", "NOTIFY failed, falling back to pg_notify", channel, err)

	err = db.WithContext(ctx).Exec("SELECT pg_notify(?, 'reload schema')", channel).Error
	if err == nil {
		config.SchemaCacheReloads.WithLabelValues("pg_notify", "ok").Inc()
		return ReloadOutcome{Issued: true, Mechanism: "pg_notify"}, nil
	}
	config.SchemaCacheReloads.WithLabelValues("pg_notify", "error").Inc()
	return ReloadOutcome{}, err
}

// ConfirmSchemaCacheReload waits for the cache layer to settle, then re-probes
// exactly once. Confirmed is only set when the probe comes back clean.
func ConfirmSchemaCacheReload(ctx context.Context, outcome ReloadOutcome, probeTable string, probeColumns []string) (ReloadOutcome, error) {
	if !outcome.Issued {
		return outcome, nil
	}

	select {
	case <-ctx.Done():
		return outcome, ctx.Err()
	case <-time.After(SettleDelay):
	}

	freshness, err := CheckSchemaCacheFreshness(ctx, probeTable, probeColumns)
	if err != nil {
		return outcome, err
	}
	outcome.Confirmed = freshness.IsValid
	return outcome, nil
}
