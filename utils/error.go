package utils

import (
	"errors"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrorSnapshotUnavailable means the schema snapshot source could not be read
// or parsed. Fatal to conformance checking; there is no safe default.
var ErrorSnapshotUnavailable = errors.New("schema snapshot unavailable")

// Stable application-facing error codes. Callers above this package never
// branch on raw SQLSTATE values.
const (
	ErrCodePermissionDenied = "PERMISSION_DENIED"
	ErrCodeUniqueViolation  = "UNIQUE_VIOLATION"
	ErrCodeFKViolation      = "FK_VIOLATION"
	ErrCodeNotNullViolation = "NOT_NULL_VIOLATION"
	ErrCodeInvalidInput     = "INVALID_INPUT"
	ErrCodeValidationFailed = "VALIDATION_FAILED"
	ErrCodeSchemaCacheStale = "SCHEMA_CACHE_STALE"
	ErrCodeSnapshotMissing  = "SNAPSHOT_UNAVAILABLE"
	ErrCodeDashboardError   = "DASHBOARD_ERROR"
	ErrCodeUnknown          = "UNKNOWN"
)

// RichError is the canonical normalized error returned to routes and CLIs.
// Constructed once per failed operation, never mutated.
type RichError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
	Details any    `json:"details,omitempty"`
}

func (e *RichError) Error() string {
	if e.Hint != "" {
		return e.Code + ": " + e.Message + " (" + e.Hint + ")"
	}
	return e.Code + ": " + e.Message
}

// rawDBError is the single canonical shape every backend error is normalized
// into before the mapping table is consulted. Driver errors, gorm-wrapped
// errors and plain errors all funnel through here; call sites never probe
// driver-specific fields themselves.
type rawDBError struct {
	Code    string
	Message string
	Hint    string
}

var sqlstatePattern = regexp.MustCompile(`SQLSTATE (\w{5})`)

func normalizeRawError(err error) rawDBError {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return rawDBError{Code: pgErr.Code, Message: pgErr.Message, Hint: pgErr.Hint}
	}
	msg := err.Error()
	if m := sqlstatePattern.FindStringSubmatch(msg); m != nil {
		return rawDBError{Code: m[1], Message: msg}
	}
	return rawDBError{Message: msg}
}

// taxonomyRow maps one backend SQLSTATE to the stable taxonomy.
// Rows are consulted in order; first match wins.
type taxonomyRow struct {
	rawCode string
	code    string
	message string
	hint    string
}

var taxonomyTable = []taxonomyRow{
	{"42501", ErrCodePermissionDenied, "Permission denied by row/column policy", "Check access policies and caller identity."},
	{"23505", ErrCodeUniqueViolation, "Duplicate value violates unique constraint", "Check unique fields."},
	{"23503", ErrCodeFKViolation, "Foreign key constraint failed", "Related record missing."},
	{"23502", ErrCodeNotNullViolation, "Required field is missing", "Populate all required columns."},
	{"22P02", ErrCodeInvalidInput, "Invalid input format", "Check identifier/number types."},
}

// MapDatabaseError normalizes any database-originated error into a RichError.
// Total function: every non-nil input produces a RichError, never panics.
// Already-mapped errors pass through untouched.
func MapDatabaseError(err error) *RichError {
	if err == nil {
		return nil
	}
	var rich *RichError
	if errors.As(err, &rich) {
		return rich
	}

	raw := normalizeRawError(err)
	for _, row := range taxonomyTable {
		if raw.Code == row.rawCode {
			return &RichError{Code: row.code, Message: row.message, Hint: row.hint}
		}
	}

	message := raw.Message
	if message == "" {
		message = "Unexpected database error"
	}
	return &RichError{Code: ErrCodeUnknown, Message: message}
}

// MapValidationError wraps caller-input validation failures. Distinct path
// from MapDatabaseError: it never consults the SQLSTATE table.
func MapValidationError(err error) *RichError {
	if err == nil {
		return nil
	}
	details := any(nil)
	var vErrs validator.ValidationErrors
	if errors.As(err, &vErrs) {
		fields := make(map[string]string, len(vErrs))
		for _, ve := range vErrs {
			fields[ve.Field()] = ve.Tag()
		}
		details = fields
	}
	return &RichError{
		Code:    ErrCodeValidationFailed,
		Message: "Input validation failed",
		Details: details,
	}
}

// IsRichCode reports whether err is (or wraps) a RichError with the given code.
func IsRichCode(err error, code string) bool {
	var rich *RichError
	return errors.As(err, &rich) && rich.Code == code
}

const (
	sqlstateUndefinedTable  = "42P01"
	sqlstateUndefinedColumn = "42703"
)

// IsRelationNotFound is the shared predicate behind the qualified->unqualified
// query fallback. Only this error class is eligible for a retry; everything
// else propagates through MapDatabaseError.
func IsRelationNotFound(err error) bool {
	if err == nil {
		return false
	}
	raw := normalizeRawError(err)
	if raw.Code == sqlstateUndefinedTable {
		return true
	}
	return relationNotFoundPattern.MatchString(raw.Message)
}

// IsUndefinedColumn matches "column ... does not exist" failures, the
// signature of a stale schema cache when the column is known to exist.
func IsUndefinedColumn(err error) bool {
	if err == nil {
		return false
	}
	raw := normalizeRawError(err)
	if raw.Code == sqlstateUndefinedColumn {
		return true
	}
	return missingColumnPattern.MatchString(raw.Message)
}

var (
	relationNotFoundPattern = regexp.MustCompile(`(?i)relation "?[\w.]+"? does not exist`)
	missingColumnPattern    = regexp.MustCompile(`(?i)column "?([\w.]+)"? does not exist`)
)

// ExtractMissingColumns pulls the offending column names out of an error
// message rather than trusting a generic failure flag. The query layer reports
// one column per error, so a single-element slice is the common case.
func ExtractMissingColumns(message string) []string {
	matches := missingColumnPattern.FindAllStringSubmatch(message, -1)
	if len(matches) == 0 {
		return nil
	}
	columns := make([]string, 0, len(matches))
	for _, m := range matches {
		name := m[1]
		// strip a table or alias qualifier: "u.region" -> "region"
		if i := strings.LastIndexByte(name, '.'); i >= 0 {
			name = name[i+1:]
		}
		columns = append(columns, name)
	}
	return columns
}
