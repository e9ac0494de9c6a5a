// db-selftest exercises the write path end-to-end with service-role
// credentials: schema-cache probe, parent insert, dependent insert, then
// unconditional cleanup. A failure means policy or constraint enforcement is
// blocking legitimate privileged writes (infra regression), as opposed to a
// feature or query bug.
//
// Usage (from backend directory):
//
//	DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/db-selftest
//
// Prints a single pass/fail line; exit code 0/1.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"bitbucket.org/mmdatafocus/salesdesk_backend/config"
	"bitbucket.org/mmdatafocus/salesdesk_backend/models"
)

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	config.ConnectDatabaseWithRetry()
	config.ConnectRedis()

	if err := models.RunWritePathSelfTest(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "db-selftest: FAIL: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("db-selftest: PASS")
	os.Exit(0)
}
