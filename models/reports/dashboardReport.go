package reports

import (
	"context"
	"sort"

	"bitbucket.org/mmdatafocus/salesdesk_backend/config"
	"bitbucket.org/mmdatafocus/salesdesk_backend/models"
	"bitbucket.org/mmdatafocus/salesdesk_backend/utils"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// DefaultCommissionRate applies whenever a salesperson has no profile row or
// the profile carries no rate.
// TODO: promote to a tenant-level configurable default once product decides
// whether tenants may set their own rates.
var DefaultCommissionRate = decimal.NewFromFloat(0.05)

// TopPerformerLimit bounds the leaderboard.
const TopPerformerLimit = 10

type MetricsPeriod struct {
	Days int `json:"days" validate:"required,gt=0,lte=3650"`
}

func NewMetricsPeriod(days int) MetricsPeriod {
	if days == 0 {
		days = 30
	}
	return MetricsPeriod{Days: days}
}

type DashboardOverview struct {
	TotalSalespeople  int64 `json:"total_salespeople"`
	ActiveAssignments int64 `json:"active_assignments"`
	TotalOrders       int64 `json:"total_orders"`
	TotalRevenueCents int64 `json:"total_revenue_cents"`
}

type PerformerRow struct {
	SalespersonId         string `json:"salesperson_id"`
	FullName              string `json:"full_name"`
	TotalSalesCents       int64  `json:"total_sales_cents"`
	OrdersCount           int64  `json:"orders_count"`
	CommissionEarnedCents int64  `json:"commission_earned_cents"`
}

type DashboardResponse struct {
	Overview      DashboardOverview `json:"overview"`
	TopPerformers []*PerformerRow   `json:"top_performers"`
}

var validate = validator.New()

// The underlying tables may be addressed with or without an explicit namespace
// qualifier depending on search_path configuration, so every metric query is
// rendered from one template in two variants: qualified first, then
// unqualified. Only a "relation does not exist" failure triggers the second
// variant; any other error class propagates.
func runDualPath(ctx context.Context, queryName string, sqlTemplate string, templateData map[string]interface{}, params map[string]interface{}, dest interface{}) error {
	db := config.GetDB()
	for _, qualifier := range []string{config.SchemaQualifier() + ".", ""} {
		data := map[string]interface{}{"qualifier": qualifier}
		for k, v := range templateData {
			data[k] = v
		}
		sql, err := utils.ExecTemplate(sqlTemplate, data)
		if err != nil {
			return err
		}
		tx := db.WithContext(ctx)
		if params != nil {
			err = tx.Raw(sql, params).Scan(dest).Error
		} else {
			err = tx.Raw(sql).Scan(dest).Error
		}
		if err == nil {
			return nil
		}
		if qualifier != "" && utils.IsRelationNotFound(err) {
			config.DashboardQueryFallbacks.WithLabelValues(queryName).Inc()
			continue
		}
		return err
	}
	return nil
}

// tableExists probes cheaply via to_regclass under both the qualified and the
// unqualified name.
func tableExists(ctx context.Context, table string) (bool, error) {
	db := config.GetDB()
	var present bool
	err := db.WithContext(ctx).Raw(`
		SELECT COALESCE(to_regclass(@qualified), to_regclass(@plain)) IS NOT NULL AS present
	`, map[string]interface{}{
		"qualified": config.SchemaQualifier() + "." + table,
		"plain":     table,
	}).Scan(&present).Error
	if err != nil {
		return false, err
	}
	return present, nil
}

const totalSalespeopleQuery = `
SELECT COUNT(*) AS total
FROM {{.qualifier}}users u
LEFT JOIN {{.qualifier}}salesperson_profiles sp ON sp.user_id = u.id
WHERE (u.role = 'sales' OR u.subrole = 'salesperson')
  AND (sp.id IS NULL OR sp.is_active)
`

// Variant used when the optional profile table is absent. Absence of a profile
// never excludes a qualifying user, so the count is the plain user count.
const totalSalespeopleNoProfilesQuery = `
SELECT COUNT(*) AS total
FROM {{.qualifier}}users u
WHERE (u.role = 'sales' OR u.subrole = 'salesperson')
`

const activeAssignmentsQuery = `
SELECT COUNT(*) AS total
FROM {{.qualifier}}salesperson_profiles
WHERE is_active
`

const orderTotalsQuery = `
SELECT COUNT(*) AS total_orders, COALESCE(SUM(total_amount), 0) AS total_revenue
FROM {{.qualifier}}orders
WHERE created_at >= NOW() - make_interval(days => @periodDays)
  AND current_status <> 'cancelled'
`

const topPerformersQuery = `
SELECT
    u.id AS salesperson_id,
    u.full_name,
    COALESCE(SUM(o.total_amount), 0) AS total_sales,
    COUNT(o.id) AS orders_count,
    {{if .withProfiles}}sp.commission_rate{{else}}NULL AS commission_rate{{end}}
FROM {{.qualifier}}orders o
JOIN {{.qualifier}}users u ON u.id = o.salesperson_id
{{if .withProfiles}}LEFT JOIN {{.qualifier}}salesperson_profiles sp ON sp.user_id = u.id{{end}}
WHERE o.created_at >= NOW() - make_interval(days => @periodDays)
  AND o.current_status <> 'cancelled'
GROUP BY u.id, u.full_name{{if .withProfiles}}, sp.commission_rate{{end}}
ORDER BY total_sales DESC, orders_count DESC
LIMIT @performerLimit
`

type orderTotalsRow struct {
	TotalOrders  int64           `gorm:"column:total_orders"`
	TotalRevenue decimal.Decimal `gorm:"column:total_revenue"`
}

type performerAggregate struct {
	SalespersonId  string           `gorm:"column:salesperson_id"`
	FullName       string           `gorm:"column:full_name"`
	TotalSales     decimal.Decimal  `gorm:"column:total_sales"`
	OrdersCount    int64            `gorm:"column:orders_count"`
	CommissionRate *decimal.Decimal `gorm:"column:commission_rate"`
}

// finalizePerformers orders aggregates descending by total sales with order
// count as tie-break, truncates to the leaderboard limit, and converts money
// to cents. Commission is computed from the decimal total and rounded exactly
// once here, never per contributing order.
func finalizePerformers(rows []performerAggregate) []*PerformerRow {
	sort.SliceStable(rows, func(i, j int) bool {
		if !rows[i].TotalSales.Equal(rows[j].TotalSales) {
			return rows[i].TotalSales.GreaterThan(rows[j].TotalSales)
		}
		return rows[i].OrdersCount > rows[j].OrdersCount
	})
	if len(rows) > TopPerformerLimit {
		rows = rows[:TopPerformerLimit]
	}

	performers := make([]*PerformerRow, 0, len(rows))
	for _, row := range rows {
		rate := DefaultCommissionRate
		if row.CommissionRate != nil {
			rate = *row.CommissionRate
		}
		performers = append(performers, &PerformerRow{
			SalespersonId:         row.SalespersonId,
			FullName:              row.FullName,
			TotalSalesCents:       utils.ToCents(row.TotalSales),
			OrdersCount:           row.OrdersCount,
			CommissionEarnedCents: utils.ToCents(row.TotalSales.Mul(rate)),
		})
	}
	return performers
}

func dashboardError(message string, details any) *utils.RichError {
	return &utils.RichError{
		Code:    utils.ErrCodeDashboardError,
		Message: message,
		Details: details,
	}
}

// ComputeDashboard aggregates the overview metrics and the leaderboard for the
// trailing window. Required tables (users, orders) are fatal when absent;
// optional tables degrade the affected metrics to zero values with a warning.
func ComputeDashboard(ctx context.Context, period MetricsPeriod) (*DashboardResponse, error) {
	logger := config.GetLogger()

	if err := validate.Struct(period); err != nil {
		return nil, utils.MapValidationError(err)
	}
	if config.GetDB() == nil {
		return nil, dashboardError("database not initialized", nil)
	}

	for _, table := range []string{"users", "orders"} {
		present, err := tableExists(ctx, table)
		if err != nil {
			return nil, utils.MapDatabaseError(err)
		}
		if !present {
			config.DashboardRequests.WithLabelValues("error").Inc()
			return nil, dashboardError("required table missing", map[string]string{"table": table})
		}
	}

	profilesPresent, err := tableExists(ctx, "salesperson_profiles")
	if err != nil {
		return nil, utils.MapDatabaseError(err)
	}
	degraded := false
	if !profilesPresent {
		degraded = true
		config.LogWarn(logger, "dashboardReport.go", "ComputeDashboard", "optional table absent, metrics degrade", "salesperson_profiles", "serving dashboard without profile data")
	}

	var overview DashboardOverview

	salespeopleQuery := totalSalespeopleQuery
	if !profilesPresent {
		salespeopleQuery = totalSalespeopleNoProfilesQuery
	}
	var totalSalespeople int64
	if err := runDualPath(ctx, "total_salespeople", salespeopleQuery, nil, nil, &totalSalespeople); err != nil {
		return nil, mapDashboardQueryError(err)
	}
	overview.TotalSalespeople = totalSalespeople

	if profilesPresent {
		var activeAssignments int64
		if err := runDualPath(ctx, "active_assignments", activeAssignmentsQuery, nil, nil, &activeAssignments); err != nil {
			return nil, mapDashboardQueryError(err)
		}
		overview.ActiveAssignments = activeAssignments
	}

	var totals orderTotalsRow
	if err := runDualPath(ctx, "order_totals", orderTotalsQuery, nil, map[string]interface{}{
		"periodDays": period.Days,
	}, &totals); err != nil {
		return nil, mapDashboardQueryError(err)
	}
	overview.TotalOrders = totals.TotalOrders
	overview.TotalRevenueCents = utils.ToCents(totals.TotalRevenue)

	var aggregates []performerAggregate
	if err := runDualPath(ctx, "top_performers", topPerformersQuery,
		map[string]interface{}{"withProfiles": profilesPresent},
		map[string]interface{}{
			"periodDays":     period.Days,
			"performerLimit": TopPerformerLimit,
		}, &aggregates); err != nil {
		return nil, mapDashboardQueryError(err)
	}

	result := "ok"
	if degraded {
		result = "degraded"
	}
	config.DashboardRequests.WithLabelValues(result).Inc()

	return &DashboardResponse{
		Overview:      overview,
		TopPerformers: finalizePerformers(aggregates),
	}, nil
}

// mapDashboardQueryError separates "column does not exist" (the stale-cache
// signature: conformance checking vouches for these columns) from everything
// else, which goes straight through the taxonomy mapper.
func mapDashboardQueryError(err error) error {
	if utils.IsUndefinedColumn(err) {
		return models.StaleSchemaCacheError(utils.ExtractMissingColumns(err.Error()))
	}
	return utils.MapDatabaseError(err)
}
