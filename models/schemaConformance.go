package models

// RequiredColumn is one column application code assumes to exist. Declared
// statically; (Schema, Table, Column) uniquely identifies a requirement.
// ExpectedType is optional: empty means any type is accepted.
type RequiredColumn struct {
	Schema       string `json:"schema"`
	Table        string `json:"table"`
	Column       string `json:"column"`
	ExpectedType string `json:"expected_type,omitempty"`
}

func (r RequiredColumn) QualifiedName() string {
	return r.Schema + "." + r.Table + "." + r.Column
}

type TypeMismatch struct {
	Required   RequiredColumn `json:"required"`
	ActualType string         `json:"actual_type"`
}

// ConformanceResult is produced fresh per check and never mutated afterwards.
type ConformanceResult struct {
	Missing        []RequiredColumn `json:"missing"`
	TypeMismatches []TypeMismatch   `json:"type_mismatches"`
}

func (r ConformanceResult) Ok() bool {
	return len(r.Missing) == 0 && len(r.TypeMismatches) == 0
}

// ProblemLines enumerates every problem, one human-readable line each, in
// requirement order. Counts alone are never acceptable CI output.
func (r ConformanceResult) ProblemLines() []string {
	lines := make([]string, 0, len(r.Missing)+len(r.TypeMismatches))
	for _, m := range r.Missing {
		lines = append(lines, "missing column: "+m.QualifiedName())
	}
	for _, tm := range r.TypeMismatches {
		lines = append(lines, "type mismatch: "+tm.Required.QualifiedName()+
			" expected "+tm.Required.ExpectedType+", actual "+tm.ActualType)
	}
	return lines
}

// RequiredColumns is the fixed requirement set for the given namespace. Every
// column the dashboard queries and the write-path self-test touch is listed;
// a failed conformance check means those paths cannot be trusted.
func RequiredColumns(schemaName string) []RequiredColumn {
	return []RequiredColumn{
		{Schema: schemaName, Table: "users", Column: "id", ExpectedType: "uuid"},
		{Schema: schemaName, Table: "users", Column: "full_name"},
		{Schema: schemaName, Table: "users", Column: "role"},
		{Schema: schemaName, Table: "users", Column: "subrole"},
		{Schema: schemaName, Table: "users", Column: "is_active", ExpectedType: "boolean"},
		{Schema: schemaName, Table: "salesperson_profiles", Column: "user_id", ExpectedType: "uuid"},
		{Schema: schemaName, Table: "salesperson_profiles", Column: "is_active", ExpectedType: "boolean"},
		{Schema: schemaName, Table: "salesperson_profiles", Column: "commission_rate", ExpectedType: "numeric"},
		{Schema: schemaName, Table: "orders", Column: "id"},
		{Schema: schemaName, Table: "orders", Column: "salesperson_id", ExpectedType: "uuid"},
		{Schema: schemaName, Table: "orders", Column: "total_amount", ExpectedType: "numeric"},
		{Schema: schemaName, Table: "orders", Column: "current_status"},
		{Schema: schemaName, Table: "orders", Column: "created_at", ExpectedType: "timestamp with time zone"},
		{Schema: schemaName, Table: "organizations", Column: "id", ExpectedType: "uuid"},
		{Schema: schemaName, Table: "organizations", Column: "brand_primary"},
		{Schema: schemaName, Table: "organizations", Column: "brand_secondary"},
	}
}

type columnKey struct {
	schema, table, column string
}

// CheckSchemaConformance compares the requirement set against a snapshot.
// Every requirement is evaluated (no short-circuit) so one run reports every
// problem, and result order always matches requirement order.
func CheckSchemaConformance(required []RequiredColumn, snapshot []ColumnDescriptor) ConformanceResult {
	index := make(map[columnKey]string, len(snapshot))
	for _, col := range snapshot {
		index[columnKey{col.TableSchema, col.TableName, col.ColumnName}] = col.DataType
	}

	var result ConformanceResult
	for _, req := range required {
		actualType, ok := index[columnKey{req.Schema, req.Table, req.Column}]
		if !ok {
			result.Missing = append(result.Missing, req)
			continue
		}
		if req.ExpectedType != "" && actualType != req.ExpectedType {
			result.TypeMismatches = append(result.TypeMismatches, TypeMismatch{Required: req, ActualType: actualType})
		}
	}
	return result
}
