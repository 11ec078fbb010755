package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"bitbucket.org/mmdatafocus/pos_backend/config"
	"bitbucket.org/mmdatafocus/pos_backend/repository"
	"bitbucket.org/mmdatafocus/pos_backend/workflow"
)

// ledger-reconcile replays every ledger against its cached balance and writes
// a reconciliation_reports row per drift. --rebuild-* rewrite one cache from
// its ledger.
func main() {
	rebuildAccount := flag.Int("rebuild-account", 0, "Optional: current account id whose balance is rewritten from its movements")
	rebuildStock := flag.String("rebuild-stock", "", "Optional: product_id:branch_id whose stock is rewritten from its movements")
	flag.Parse()

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	logger := config.GetLogger()
	ledger := workflow.NewLedger(repository.NewGormStore(db), logger)
	ctx := context.Background()

	if *rebuildAccount > 0 {
		account, err := ledger.RebuildAccountBalance(ctx, *rebuildAccount)
		if err != nil {
			fmt.Fprintf(os.Stderr, "rebuild account %d failed: %v\n", *rebuildAccount, err)
			os.Exit(1)
		}
		fmt.Printf("account %d balance=%s\n", account.ID, account.CurrentBalance.StringFixed(2))
	}

	if strings.TrimSpace(*rebuildStock) != "" {
		productId, branchId, err := parseStockKey(*rebuildStock)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		stock, err := ledger.RebuildStock(ctx, productId, branchId)
		if err != nil {
			fmt.Fprintf(os.Stderr, "rebuild stock %s failed: %v\n", *rebuildStock, err)
			os.Exit(1)
		}
		fmt.Printf("product %d branch %d current_stock=%s\n", stock.ProductId, stock.BranchId, stock.CurrentStock.String())
	}

	result, err := ledger.ReconcileLedgers(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "reconciliation failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("correlation_id=%s accounts=%d stocks=%d registers=%d mismatches=%d\n",
		result.CorrelationId, result.AccountsChecked, result.StocksChecked, result.RegistersChecked, result.MismatchesWritten)
	if result.MismatchesWritten > 0 {
		os.Exit(2)
	}
}

func parseStockKey(raw string) (int, int, error) {
	parts := strings.Split(raw, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("--rebuild-stock must look like product_id:branch_id")
	}
	productId, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid product id %q", parts[0])
	}
	branchId, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid branch id %q", parts[1])
	}
	return productId, branchId, nil
}
