// seed-dev bootstraps a development database: creates the four tables the
// backend serves and inserts a small set of salespeople, profiles and orders
// so the dashboard has something to aggregate. Destructive only in the sense
// of AutoMigrate; existing rows are left alone and seeding is idempotent via
// fixed emails.
//
// Usage (from backend directory):
//
//	DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/seed-dev
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"bitbucket.org/mmdatafocus/salesdesk_backend/config"
	"bitbucket.org/mmdatafocus/salesdesk_backend/models"
	"bitbucket.org/mmdatafocus/salesdesk_backend/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func main() {
	ctx := utils.SetIsServiceRoleInContext(context.Background(), true)
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}

	if err := db.WithContext(ctx).AutoMigrate(
		&models.Organization{},
		&models.User{},
		&models.SalespersonProfile{},
		&models.Order{},
	); err != nil {
		fmt.Fprintf(os.Stderr, "migrate failed: %v\n", err)
		os.Exit(1)
	}

	org := models.Organization{
		ID:           uuid.New(),
		Name:         "SalesDesk Dev Org",
		BrandPrimary: strPtr("#1a73e8"),
		IsActive:     utils.NewTrue(),
	}
	var existingOrg models.Organization
	err := db.WithContext(ctx).Where("name = ?", org.Name).First(&existingOrg).Error
	switch err {
	case nil:
		org = existingOrg
	case gorm.ErrRecordNotFound:
		if err := db.WithContext(ctx).Create(&org).Error; err != nil {
			fmt.Fprintf(os.Stderr, "seed organization failed: %v\n", err)
			os.Exit(1)
		}
	default:
		fmt.Fprintf(os.Stderr, "lookup organization failed: %v\n", err)
		os.Exit(1)
	}

	seeds := []struct {
		name    string
		email   string
		role    models.UserRole
		subrole *string
		rate    *decimal.Decimal
		orders  []string
	}{
		{"Aye Chan", "aye.chan@salesdesk.dev", models.UserRoleSales, nil, decPtr("0.07"), []string{"1200.50", "870.25"}},
		{"Min Thu", "min.thu@salesdesk.dev", models.UserRoleSupport, strPtr(models.SubroleSalesperson), nil, []string{"450.00"}},
		{"Su Myat", "su.myat@salesdesk.dev", models.UserRoleSales, nil, nil, []string{"2200.00", "15.75", "310.10"}},
	}

	var seeded int
	for _, s := range seeds {
		var user models.User
		err := db.WithContext(ctx).Where("email = ?", s.email).First(&user).Error
		if err == gorm.ErrRecordNotFound {
			user = models.User{
				ID:             uuid.New(),
				FullName:       s.name,
				Email:          s.email,
				Role:           s.role,
				Subrole:        s.subrole,
				OrganizationId: &org.ID,
				IsActive:       utils.NewTrue(),
			}
			if err := db.WithContext(ctx).Create(&user).Error; err != nil {
				fmt.Fprintf(os.Stderr, "seed user %s failed: %v\n", s.email, err)
				os.Exit(1)
			}
			if s.rate != nil {
				profile := models.SalespersonProfile{
					UserId:         user.ID,
					Region:         "yangon",
					CommissionRate: s.rate,
					IsActive:       utils.NewTrue(),
				}
				if err := db.WithContext(ctx).Create(&profile).Error; err != nil {
					fmt.Fprintf(os.Stderr, "seed profile for %s failed: %v\n", s.email, err)
					os.Exit(1)
				}
			}
			for _, amount := range s.orders {
				order := models.Order{
					OrganizationId: &org.ID,
					SalespersonId:  &user.ID,
					TotalAmount:    mustDecimal(amount),
					CurrentStatus:  models.OrderStatusConfirmed,
					CreatedAt:      time.Now().AddDate(0, 0, -3),
				}
				if err := db.WithContext(ctx).Create(&order).Error; err != nil {
					fmt.Fprintf(os.Stderr, "seed order for %s failed: %v\n", s.email, err)
					os.Exit(1)
				}
			}
			seeded++
		} else if err != nil {
			fmt.Fprintf(os.Stderr, "lookup user %s failed: %v\n", s.email, err)
			os.Exit(1)
		}
	}

	fmt.Printf("seed-dev: done (%d new salespeople)\n", seeded)
}

func strPtr(s string) *string { return &s }

func decPtr(s string) *decimal.Decimal {
	d := mustDecimal(s)
	return &d
}

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}
