package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"bitbucket.org/mmdatafocus/pos_backend/config"
	"bitbucket.org/mmdatafocus/pos_backend/repository"
	"bitbucket.org/mmdatafocus/pos_backend/workflow"
)

// fiscal-backfill enqueues outbox rows for active fiscal sales that were
// never authorized, e.g. after a provider outage outlived the dispatcher's
// retry budget.
func main() {
	limit := flag.Int("limit", 500, "Maximum number of sales to enqueue")
	flag.Parse()

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	ledger := workflow.NewLedger(repository.NewGormStore(db), config.GetLogger())

	enqueued, err := ledger.EnqueueUnauthorizedFiscalSales(context.Background(), *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "backfill failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("enqueued=%d\n", enqueued)
}
