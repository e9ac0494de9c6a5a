package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/salesdesk_backend/config"
	"bitbucket.org/mmdatafocus/salesdesk_backend/utils"
	"github.com/google/uuid"
)

const selfTestCleanupTimeout = 10 * time.Second

// cleanupContext detaches row cleanup from the caller's lifetime. When the
// failure that aborted the test was a cancelled or timed-out context, deletes
// issued on that same context would be dead on arrival.
func cleanupContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), selfTestCleanupTimeout)
}

// SelfTestFailure reports which step of the write-path self-test failed.
// The wrapped error carries the taxonomy code.
type SelfTestFailure struct {
	Step string
	Err  error
}

func (f *SelfTestFailure) Error() string {
	return "self-test failed at " + f.Step + ": " + f.Err.Error()
}

func (f *SelfTestFailure) Unwrap() error { return f.Err }

// RunWritePathSelfTest validates that policy and constraint enforcement at the
// data layer still permits legitimate service-role writes end-to-end:
//
//  1. schema-cache freshness probe against known-good columns
//  2. insert a parent row (users)
//  3. insert a dependent row referencing it (salesperson_profiles)
//  4. best-effort cleanup of both rows on every exit path
//
// The verdict comes from steps 1-3 only; cleanup failures are logged, never
// escalated. Rows are scoped to this run via fresh UUIDs.
func RunWritePathSelfTest(ctx context.Context) error {
	logger := config.GetLogger()
	db := config.GetDB()
	if db == nil {
		config.SelfTestRuns.WithLabelValues("fail").Inc()
		return &SelfTestFailure{Step: "setup", Err: errors.New("database not initialized")}
	}
	ctx = utils.SetIsServiceRoleInContext(ctx, true)

	fail := func(step string, err error) error {
		config.SelfTestRuns.WithLabelValues("fail").Inc()
		config.LogError(logger, "selfTest.go", "RunWritePathSelfTest", step, nil, err)
		return &SelfTestFailure{Step: step, Err: err}
	}

	freshness, err := CheckSchemaCacheFreshness(ctx, "users", []string{"id", "role", "subrole"})
	if err != nil {
		return fail("cache_probe", utils.MapDatabaseError(err))
	}
	if !freshness.IsValid {
		return fail("cache_probe", StaleSchemaCacheError(freshness.MissingColumns))
	}

	userId := uuid.New()
	user := User{
		ID:       userId,
		FullName: "Write Path Self Test",
		Email:    "selftest-" + userId.String() + "@selftest.invalid",
		Role:     UserRoleSales,
		IsActive: utils.NewTrue(),
	}

	parentCreated := false
	defer func() {
		// Cleanup runs unconditionally on its own bounded context. The
		// dependent row goes first so the parent delete never trips the
		// foreign key.
		cleanupCtx, cancel := cleanupContext()
		defer cancel()
		if err := db.WithContext(cleanupCtx).Where("user_id = ?", userId).Delete(&SalespersonProfile{}).Error; err != nil {
			config.LogError(logger, "selfTest.go", "RunWritePathSelfTest", "cleanup dependent", userId.String(), err)
		}
		if parentCreated {
			if err := db.WithContext(cleanupCtx).Where("id = ?", userId).Delete(&User{}).Error; err != nil {
				config.LogError(logger, "selfTest.go", "RunWritePathSelfTest", "cleanup parent", userId.String(), err)
			}
		}
	}()

	if err := db.WithContext(ctx).Create(&user).Error; err != nil {
		return fail("parent_insert", utils.MapDatabaseError(err))
	}
	parentCreated = true

	profile := SalespersonProfile{
		UserId:   userId,
		Region:   "selftest",
		IsActive: utils.NewTrue(),
	}
	if err := db.WithContext(ctx).Create(&profile).Error; err != nil {
		return fail("dependent_insert", utils.MapDatabaseError(err))
	}

	config.SelfTestRuns.WithLabelValues("pass").Inc()
	return nil
}
