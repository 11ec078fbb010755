package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/shopspring/decimal"

	"bitbucket.org/mmdatafocus/pos_backend/config"
	"bitbucket.org/mmdatafocus/pos_backend/models"
	"bitbucket.org/mmdatafocus/pos_backend/repository"
	"bitbucket.org/mmdatafocus/pos_backend/workflow"
)

// seed-dev loads a development database with the default catalog, one branch
// with its receipt settings and a few products.
func main() {
	branchName := flag.String("branch", "Casa Central", "Name of the branch to create")
	pointOfSale := flag.Int("point-of-sale", 3, "Fiscal point of sale of the branch")
	flag.Parse()

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	if err := models.MigrateTable(db); err != nil {
		fmt.Fprintf(os.Stderr, "migration failed: %v\n", err)
		os.Exit(1)
	}

	ledger := workflow.NewLedger(repository.NewGormStore(db), config.GetLogger())
	if err := seed(context.Background(), ledger, *branchName, *pointOfSale); err != nil {
		fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("seeded")
}

func seed(ctx context.Context, ledger *workflow.Ledger, branchName string, pointOfSale int) error {
	if err := ledger.SeedDefaults(ctx); err != nil {
		return err
	}

	branch, err := ledger.CreateBranch(ctx, models.NewBranch{Name: branchName, PointOfSale: pointOfSale})
	if err != nil {
		return err
	}

	settings := []models.NewReceiptTypeSetting{
		{BranchId: branch.ID, ReceiptType: "factura_a", IsFiscal: true, FiscalCode: 1},
		{BranchId: branch.ID, ReceiptType: "factura_b", IsFiscal: true, FiscalCode: 6},
		{BranchId: branch.ID, ReceiptType: "ticket"},
		{BranchId: branch.ID, ReceiptType: "presupuesto", NumberingScope: models.NumberingScopeBudget, Prefix: "P"},
	}
	for _, s := range settings {
		if _, err := ledger.CreateReceiptTypeSetting(ctx, s); err != nil {
			return err
		}
	}

	coffee, err := ledger.CreateProduct(ctx, models.NewProduct{Name: "Café", Sku: "CAF-001", Price: decimal.NewFromInt(1500)})
	if err != nil {
		return err
	}
	croissant, err := ledger.CreateProduct(ctx, models.NewProduct{Name: "Medialuna", Sku: "MED-001", Price: decimal.NewFromInt(700)})
	if err != nil {
		return err
	}
	_, err = ledger.CreateProduct(ctx, models.NewProduct{
		Name:    "Desayuno",
		Sku:     "COMBO-001",
		Price:   decimal.NewFromInt(2600),
		IsCombo: true,
		Components: []models.NewComboComponent{
			{ComponentId: coffee.ID, Quantity: decimal.NewFromInt(1)},
			{ComponentId: croissant.ID, Quantity: decimal.NewFromInt(2)},
		},
	})
	if err != nil {
		return err
	}

	for _, p := range []*models.Product{coffee, croissant} {
		_, err := ledger.AdjustStock(ctx, models.NewStockAdjustment{
			ProductId: p.ID,
			BranchId:  branch.ID,
			Quantity:  decimal.NewFromInt(100),
			Reason:    "Stock inicial",
		})
		if err != nil {
			return err
		}
	}

	_, err = ledger.CreateCustomer(ctx, models.NewContact{Name: "Consumidor Final"})
	return err
}
