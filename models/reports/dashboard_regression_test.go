package reports_test

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/salesdesk_backend/config"
	"bitbucket.org/mmdatafocus/salesdesk_backend/models"
	"bitbucket.org/mmdatafocus/salesdesk_backend/models/reports"
	"bitbucket.org/mmdatafocus/salesdesk_backend/utils"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
)

func TestDashboardFallsBackWhenQualifiedRelationMissing(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := context.Background()

	pgName, pgPort := startPostgresContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(pgName) })

	// Wire env for config.Connect* helpers.
	t.Setenv("DB_USER", "postgres")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", pgPort)
	t.Setenv("DB_NAME", "salesdesk_test")
	t.Setenv("DB_SSLMODE", "disable")
	// Tables live in public, so the qualified variant of every query fails
	// with "relation does not exist" and the unqualified variant must serve.
	t.Setenv("DB_SCHEMA_QUALIFIER", "reporting")

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		t.Fatalf("db is nil after ConnectDatabaseWithRetry")
	}
	if err := db.WithContext(ctx).AutoMigrate(&models.Organization{}, &models.User{}, &models.SalespersonProfile{}, &models.Order{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	ctx = utils.SetIsServiceRoleInContext(ctx, true)

	aye := seedUser(t, ctx, "Aye Chan", models.UserRoleSales, nil)
	thiri := seedUser(t, ctx, "Thiri Win", models.UserRoleSales, nil)
	seedOrder(t, ctx, aye, "100.00", models.OrderStatusConfirmed)
	seedOrder(t, ctx, aye, "50.55", models.OrderStatusConfirmed)
	seedOrder(t, ctx, thiri, "200.00", models.OrderStatusPending)
	// Cancelled orders never count toward revenue or the leaderboard.
	seedOrder(t, ctx, aye, "999.99", models.OrderStatusCancelled)

	fallbacksBefore := testutil.ToFloat64(config.DashboardQueryFallbacks.WithLabelValues("total_salespeople"))

	resp, err := reports.ComputeDashboard(ctx, reports.NewMetricsPeriod(30))
	if err != nil {
		t.Fatalf("ComputeDashboard: %v", err)
	}

	fallbacksAfter := testutil.ToFloat64(config.DashboardQueryFallbacks.WithLabelValues("total_salespeople"))
	if fallbacksAfter-fallbacksBefore != 1 {
		t.Fatalf("expected exactly one qualified->unqualified fallback for the salespeople query; counter delta=%v", fallbacksAfter-fallbacksBefore)
	}

	if resp.Overview.TotalSalespeople != 2 {
		t.Fatalf("expected total_salespeople=2; got %d", resp.Overview.TotalSalespeople)
	}
	if resp.Overview.TotalOrders != 3 {
		t.Fatalf("expected total_orders=3 (cancelled excluded); got %d", resp.Overview.TotalOrders)
	}
	if resp.Overview.TotalRevenueCents != 35055 {
		t.Fatalf("expected total_revenue_cents=35055; got %d", resp.Overview.TotalRevenueCents)
	}
	if len(resp.TopPerformers) != 2 {
		t.Fatalf("expected 2 performers; got %d", len(resp.TopPerformers))
	}
	top, runnerUp := resp.TopPerformers[0], resp.TopPerformers[1]
	if top.SalespersonId != thiri.ID.String() || top.TotalSalesCents != 20000 || top.CommissionEarnedCents != 1000 {
		t.Fatalf("top performer mismatch: %+v", top)
	}
	// 150.55 * 0.05 = 7.5275, rounded once at the cents boundary.
	if runnerUp.SalespersonId != aye.ID.String() || runnerUp.TotalSalesCents != 15055 || runnerUp.CommissionEarnedCents != 753 {
		t.Fatalf("runner-up mismatch: %+v", runnerUp)
	}
}

func TestDashboardCountsSalespersonWithoutProfileRow(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := context.Background()

	pgName, pgPort := startPostgresContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(pgName) })

	t.Setenv("DB_USER", "postgres")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", pgPort)
	t.Setenv("DB_NAME", "salesdesk_test")
	t.Setenv("DB_SSLMODE", "disable")
	t.Setenv("DB_SCHEMA_QUALIFIER", "public")

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		t.Fatalf("db is nil after ConnectDatabaseWithRetry")
	}
	if err := db.WithContext(ctx).AutoMigrate(&models.Organization{}, &models.User{}, &models.SalespersonProfile{}, &models.Order{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	ctx = utils.SetIsServiceRoleInContext(ctx, true)

	// Counted: role carries it, no profile row exists.
	mya := seedUser(t, ctx, "Mya Mya", models.UserRoleSales, nil)
	// Counted: subrole carries it, active profile with an explicit rate.
	ko := seedUser(t, ctx, "Ko Ko", models.UserRoleSupport, strPtr(models.SubroleSalesperson))
	seedProfile(t, ctx, ko, decPtr(t, "0.10"), true)
	// Not counted: neither role nor subrole qualifies.
	seedUser(t, ctx, "Hla Hla", models.UserRoleSupport, nil)
	// Not counted: qualifying role but explicitly deactivated profile.
	zaw := seedUser(t, ctx, "Zaw Zaw", models.UserRoleSales, nil)
	seedProfile(t, ctx, zaw, nil, false)

	seedOrder(t, ctx, mya, "100.00", models.OrderStatusConfirmed)
	seedOrder(t, ctx, ko, "300.00", models.OrderStatusConfirmed)

	resp, err := reports.ComputeDashboard(ctx, reports.NewMetricsPeriod(30))
	if err != nil {
		t.Fatalf("ComputeDashboard: %v", err)
	}

	if resp.Overview.TotalSalespeople != 2 {
		t.Fatalf("expected total_salespeople=2 (absence of a profile never excludes); got %d", resp.Overview.TotalSalespeople)
	}
	if resp.Overview.ActiveAssignments != 1 {
		t.Fatalf("expected active_assignments=1; got %d", resp.Overview.ActiveAssignments)
	}
	if len(resp.TopPerformers) != 2 {
		t.Fatalf("expected 2 performers; got %d", len(resp.TopPerformers))
	}
	top, runnerUp := resp.TopPerformers[0], resp.TopPerformers[1]
	if top.SalespersonId != ko.ID.String() || top.CommissionEarnedCents != 3000 {
		t.Fatalf("expected profile rate 0.10 to drive commission; got %+v", top)
	}
	// No profile row: the default rate applies.
	if runnerUp.SalespersonId != mya.ID.String() || runnerUp.CommissionEarnedCents != 500 {
		t.Fatalf("expected default commission for profile-less salesperson; got %+v", runnerUp)
	}
}

func seedUser(t *testing.T, ctx context.Context, name string, role models.UserRole, subrole *string) models.User {
	t.Helper()
	user := models.User{
		ID:       uuid.New(),
		FullName: name,
		Email:    strings.ToLower(strings.ReplaceAll(name, " ", ".")) + "@salesdesk.test",
		Role:     role,
		Subrole:  subrole,
		IsActive: utils.NewTrue(),
	}
	if err := config.GetDB().WithContext(ctx).Create(&user).Error; err != nil {
		t.Fatalf("seed user %s: %v", name, err)
	}
	return user
}

func seedProfile(t *testing.T, ctx context.Context, user models.User, rate *decimal.Decimal, active bool) {
	t.Helper()
	profile := models.SalespersonProfile{
		UserId:         user.ID,
		Region:         "yangon",
		CommissionRate: rate,
		IsActive:       &active,
	}
	if err := config.GetDB().WithContext(ctx).Create(&profile).Error; err != nil {
		t.Fatalf("seed profile for %s: %v", user.FullName, err)
	}
}

func seedOrder(t *testing.T, ctx context.Context, user models.User, amount string, status models.OrderStatus) {
	t.Helper()
	amt, err := decimal.NewFromString(amount)
	if err != nil {
		t.Fatalf("bad amount %q: %v", amount, err)
	}
	order := models.Order{
		SalespersonId: &user.ID,
		TotalAmount:   amt,
		CurrentStatus: status,
		CreatedAt:     time.Now().Add(-48 * time.Hour),
	}
	if err := config.GetDB().WithContext(ctx).Create(&order).Error; err != nil {
		t.Fatalf("seed order for %s: %v", user.FullName, err)
	}
}

func strPtr(s string) *string { return &s }

func decPtr(t *testing.T, s string) *decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal %q: %v", s, err)
	}
	return &d
}

func startPostgresContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("salesdesk-test-pg-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "POSTGRES_PASSWORD=testpw",
		"-e", "POSTGRES_DB=salesdesk_test",
		"-p", "127.0.0.1:0:5432",
		"postgres:16-alpine",
	)
	if err != nil {
		t.Fatalf("start postgres container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "5432/tcp")
	if err != nil {
		t.Fatalf("postgres docker port: %v", err)
	}
	// initdb runs a throwaway server first, so require two consecutive
	// successful probes before declaring the real one ready.
	deadline := time.Now().Add(120 * time.Second)
	ready := 0
	for time.Now().Before(deadline) {
		if _, err := dockerRun("exec", name, "pg_isready", "-U", "postgres", "-d", "salesdesk_test"); err == nil {
			ready++
			if ready >= 2 {
				return name, port
			}
		} else {
			ready = 0
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("postgres did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	// Example: "127.0.0.1:49154\n"
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
