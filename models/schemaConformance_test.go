package models

import (
	"reflect"
	"strings"
	"testing"
)

// snapshotSatisfying builds a snapshot where every requirement is present with
// its expected type (or "text" when the requirement accepts any type).
func snapshotSatisfying(required []RequiredColumn) []ColumnDescriptor {
	snapshot := make([]ColumnDescriptor, 0, len(required))
	for _, req := range required {
		dataType := req.ExpectedType
		if dataType == "" {
			dataType = "text"
		}
		snapshot = append(snapshot, ColumnDescriptor{
			TableSchema: req.Schema,
			TableName:   req.Table,
			ColumnName:  req.Column,
			DataType:    dataType,
		})
	}
	return snapshot
}

func TestCheckSchemaConformance_CleanSnapshot(t *testing.T) {
	required := RequiredColumns("public")
	result := CheckSchemaConformance(required, snapshotSatisfying(required))
	if !result.Ok() {
		t.Fatalf("expected clean result, got missing=%v mismatches=%v", result.Missing, result.TypeMismatches)
	}
	if len(result.ProblemLines()) != 0 {
		t.Fatalf("clean result must produce no problem lines")
	}
}

func TestCheckSchemaConformance_MissingColumnIsolated(t *testing.T) {
	required := RequiredColumns("public")
	snapshot := snapshotSatisfying(required)

	// drop exactly organizations.brand_primary
	filtered := snapshot[:0]
	for _, col := range snapshot {
		if col.TableName == "organizations" && col.ColumnName == "brand_primary" {
			continue
		}
		filtered = append(filtered, col)
	}

	result := CheckSchemaConformance(required, filtered)
	if len(result.Missing) != 1 {
		t.Fatalf("expected exactly one missing column, got %v", result.Missing)
	}
	if result.Missing[0].QualifiedName() != "public.organizations.brand_primary" {
		t.Fatalf("unexpected missing column %s", result.Missing[0].QualifiedName())
	}
	if len(result.TypeMismatches) != 0 {
		t.Fatalf("removing a column must not introduce type mismatches: %v", result.TypeMismatches)
	}

	found := false
	for _, line := range result.ProblemLines() {
		if strings.Contains(line, "organizations.brand_primary") {
			found = true
		}
	}
	if !found {
		t.Fatalf("problem lines must enumerate organizations.brand_primary: %v", result.ProblemLines())
	}
}

func TestCheckSchemaConformance_TypeMismatch(t *testing.T) {
	required := []RequiredColumn{
		{Schema: "public", Table: "orders", Column: "total_amount", ExpectedType: "numeric"},
	}
	snapshot := []ColumnDescriptor{
		{TableSchema: "public", TableName: "orders", ColumnName: "total_amount", DataType: "double precision"},
	}
	result := CheckSchemaConformance(required, snapshot)
	if len(result.TypeMismatches) != 1 {
		t.Fatalf("expected one type mismatch, got %v", result.TypeMismatches)
	}
	tm := result.TypeMismatches[0]
	if tm.ActualType != "double precision" {
		t.Fatalf("unexpected actual type %q", tm.ActualType)
	}
	if len(result.Missing) != 0 {
		t.Fatalf("a present column must not be reported missing")
	}
}

func TestCheckSchemaConformance_NoTypeCheckWhenUnset(t *testing.T) {
	required := []RequiredColumn{
		{Schema: "public", Table: "users", Column: "full_name"},
	}
	snapshot := []ColumnDescriptor{
		{TableSchema: "public", TableName: "users", ColumnName: "full_name", DataType: "character varying"},
	}
	if result := CheckSchemaConformance(required, snapshot); !result.Ok() {
		t.Fatalf("requirement without expected type must accept any data type: %+v", result)
	}
}

func TestCheckSchemaConformance_Deterministic(t *testing.T) {
	required := RequiredColumns("public")
	snapshot := snapshotSatisfying(required)[:5] // most requirements missing

	first := CheckSchemaConformance(required, snapshot)
	second := CheckSchemaConformance(required, snapshot)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("identical inputs must produce identical results")
	}

	// result order follows requirement order
	for i := 1; i < len(first.Missing); i++ {
		prev, cur := first.Missing[i-1], first.Missing[i]
		prevIdx, curIdx := -1, -1
		for j, req := range required {
			if req == prev {
				prevIdx = j
			}
			if req == cur {
				curIdx = j
			}
		}
		if prevIdx > curIdx {
			t.Fatalf("missing list out of requirement order: %v", first.Missing)
		}
	}
}

func TestCheckSchemaConformance_ReportsAllProblems(t *testing.T) {
	required := RequiredColumns("public")
	result := CheckSchemaConformance(required, nil)
	if len(result.Missing) != len(required) {
		t.Fatalf("empty snapshot must report every requirement missing: got %d of %d",
			len(result.Missing), len(required))
	}
}
