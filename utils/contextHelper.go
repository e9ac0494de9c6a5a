package utils

import (
	"context"

	"bitbucket.org/mmdatafocus/salesdesk_backend/appctx"
)

var (
	ContextKeyCorrelationId = appctx.ContextKeyCorrelationId
	ContextKeyIsServiceRole = appctx.ContextKeyIsServiceRole
)

func GetCorrelationIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyCorrelationId)
}

func SetCorrelationIdInContext(ctx context.Context, correlationId string) context.Context {
	return appctx.Set(ctx, ContextKeyCorrelationId, correlationId)
}

func GetIsServiceRoleFromContext(ctx context.Context) bool {
	v, ok := appctx.GetBool(ctx, ContextKeyIsServiceRole)
	return ok && v
}

func SetIsServiceRoleInContext(ctx context.Context, isServiceRole bool) context.Context {
	return appctx.Set(ctx, ContextKeyIsServiceRole, isServiceRole)
}
