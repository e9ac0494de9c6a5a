// schema-check verifies that every column application code assumes to exist is
// present in the live schema (and matches the expected type where one is
// declared). Problems are enumerated one per line; exit code 0 means the schema
// conforms, 1 means at least one problem, 2 means the snapshot could not be
// loaded.
//
// Usage (from backend directory):
//
//	go run ./cmd/schema-check -snapshot schema_snapshot.json
//	DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/schema-check
//
// Without -snapshot the tool introspects the live database, which requires the
// DB_* env vars (or DATABASE_URL).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"bitbucket.org/mmdatafocus/salesdesk_backend/config"
	"bitbucket.org/mmdatafocus/salesdesk_backend/models"
)

func main() {
	snapshotPath := flag.String("snapshot", "", "path to a pre-generated schema snapshot document (JSON); empty = live introspection")
	flag.Parse()

	ctx := context.Background()

	var snapshot []models.ColumnDescriptor
	var err error
	if *snapshotPath != "" {
		snapshot, err = models.LoadSchemaSnapshotFile(*snapshotPath)
	} else {
		config.ConnectDatabaseWithRetry()
		snapshot, err = models.LoadSchemaSnapshotDB(ctx)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "schema-check: %v\n", err)
		os.Exit(2)
	}

	required := models.RequiredColumns(config.SchemaQualifier())
	result := models.CheckSchemaConformance(required, snapshot)
	if result.Ok() {
		fmt.Printf("schema-check: OK (%d required columns satisfied)\n", len(required))
		os.Exit(0)
	}

	for _, line := range result.ProblemLines() {
		fmt.Println(line)
	}
	fmt.Printf("schema-check: FAILED (%d missing, %d type mismatches)\n",
		len(result.Missing), len(result.TypeMismatches))
	os.Exit(1)
}
