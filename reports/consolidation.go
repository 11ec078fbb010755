// Package reports consolidates per-branch cash positions for reporting.
package reports

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"bitbucket.org/mmdatafocus/pos_backend/config"
	"bitbucket.org/mmdatafocus/pos_backend/models"
	"bitbucket.org/mmdatafocus/pos_backend/repository"
	"bitbucket.org/mmdatafocus/pos_backend/utils"
)

var tracer = otel.Tracer("pos-ledger")

const summaryCacheTTL = time.Minute

// Cache stores JSON-encodable values.
type Cache interface {
	GetObject(ctx context.Context, key string, dest interface{}) (bool, error)
	SetObject(ctx context.Context, key string, obj interface{}, exp time.Duration) error
}

// BranchSummary is the cash position of one branch. A branch without an open
// register reports zeros.
type BranchSummary struct {
	BranchId       int             `json:"branch_id"`
	BranchName     string          `json:"branch_name"`
	OpenRegisterId *int            `json:"open_register_id"`
	OpenRegisters  int             `json:"open_registers"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
	TotalIncome    decimal.Decimal `json:"total_income"`
	TotalExpenses  decimal.Decimal `json:"total_expenses"`
	TotalBalance   decimal.Decimal `json:"total_balance"`
}

type Consolidation struct {
	Branches      []BranchSummary `json:"branches"`
	TotalIncome   decimal.Decimal `json:"total_income"`
	TotalExpenses decimal.Decimal `json:"total_expenses"`
	TotalBalance  decimal.Decimal `json:"total_balance"`
	GeneratedAt   time.Time       `json:"generated_at"`
}

type Aggregator struct {
	Store  repository.Store
	Cache  Cache
	Logger *logrus.Logger
	now    func() time.Time
}

func NewAggregator(store repository.Store, cache Cache, logger *logrus.Logger) *Aggregator {
	return &Aggregator{Store: store, Cache: cache, Logger: logger, now: time.Now}
}

func summaryCacheKey(branchIds []int) string {
	parts := make([]string, len(branchIds))
	for i, id := range branchIds {
		parts[i] = strconv.Itoa(id)
	}
	return "branch_summary:" + strings.Join(parts, ",")
}

// Consolidate fans out one lookup per branch and sums the results. It never writes.
func (a *Aggregator) Consolidate(ctx context.Context, branchIds []int) (*Consolidation, error) {
	ids := utils.UniqueSlice(branchIds)
	if len(ids) == 0 {
		return nil, models.NewValidationError("ids", "at least one branch id is required")
	}
	sort.Ints(ids)
	for _, id := range ids {
		if id <= 0 {
			return nil, models.NewValidationError("ids", "invalid branch id %d", id)
		}
	}

	ctx, span := tracer.Start(ctx, "Consolidate", trace.WithAttributes(attribute.IntSlice("branch_ids", ids)))
	defer span.End()

	key := summaryCacheKey(ids)
	if a.Cache != nil {
		var cached Consolidation
		if ok, err := a.Cache.GetObject(ctx, key, &cached); err == nil && ok {
			return &cached, nil
		}
	}

	l := newLoaders(a.Store)
	summaries := make([]BranchSummary, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	for i, id := range ids {
		g.Go(func() error {
			summary, err := summarize(gctx, l, id)
			if err != nil {
				return err
			}
			summaries[i] = *summary
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return nil, err
	}

	result := &Consolidation{
		Branches:      summaries,
		TotalIncome:   decimal.Zero,
		TotalExpenses: decimal.Zero,
		TotalBalance:  decimal.Zero,
		GeneratedAt:   a.now().UTC(),
	}
	for _, s := range summaries {
		result.TotalIncome = result.TotalIncome.Add(s.TotalIncome)
		result.TotalExpenses = result.TotalExpenses.Add(s.TotalExpenses)
		result.TotalBalance = result.TotalBalance.Add(s.TotalBalance)
	}

	if a.Cache != nil {
		if err := a.Cache.SetObject(ctx, key, result, summaryCacheTTL); err != nil {
			config.LogError(a.Logger, "consolidation.go", "Consolidate", "cache branch summary", key, err)
		}
	}
	return result, nil
}

func summarize(ctx context.Context, l *loaders, branchId int) (*BranchSummary, error) {
	branch, err := l.branchLoader.Load(ctx, branchId)()
	if errors.Is(err, models.ErrRecordNotFound) {
		return nil, models.NewValidationError("ids", "branch %d does not exist", branchId)
	}
	if err != nil {
		return nil, fmt.Errorf("load branch %d: %w", branchId, err)
	}
	registers, err := l.openRegisterLoader.Load(ctx, branchId)()
	if err != nil {
		return nil, fmt.Errorf("load open registers of branch %d: %w", branchId, err)
	}

	summary := &BranchSummary{
		BranchId:       branch.ID,
		BranchName:     branch.Name,
		OpenRegisters:  len(registers),
		OpeningBalance: decimal.Zero,
		TotalIncome:    decimal.Zero,
		TotalExpenses:  decimal.Zero,
		TotalBalance:   decimal.Zero,
	}
	for _, r := range registers {
		if summary.OpenRegisterId == nil {
			id := r.ID
			summary.OpenRegisterId = &id
		}
		summary.OpeningBalance = summary.OpeningBalance.Add(r.OpeningBalance)
		summary.TotalIncome = summary.TotalIncome.Add(r.TotalIncome)
		summary.TotalExpenses = summary.TotalExpenses.Add(r.TotalExpenses)
	}
	summary.TotalBalance = summary.OpeningBalance.Add(summary.TotalIncome).Sub(summary.TotalExpenses)
	return summary, nil
}
