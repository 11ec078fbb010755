package reports

import (
	"context"
	"time"

	"github.com/graph-gophers/dataloader/v7"

	"bitbucket.org/mmdatafocus/pos_backend/models"
	"bitbucket.org/mmdatafocus/pos_backend/repository"
)

// loaders batch the per-branch lookups of one consolidation run.
type loaders struct {
	branchLoader       *dataloader.Loader[int, *models.Branch]
	openRegisterLoader *dataloader.Loader[int, []*models.CashRegister]
}

type branchReader struct {
	store repository.Store
}

func (r *branchReader) getBranches(ctx context.Context, ids []int) []*dataloader.Result[*models.Branch] {
	var results []models.Branch
	err := r.store.View(ctx, func(tx repository.Tx) error {
		var err error
		results, err = tx.ListBranches(ctx, ids)
		return err
	})
	if err != nil {
		return handleError[*models.Branch](len(ids), err)
	}
	return generateLoaderResults(results, ids)
}

type openRegisterReader struct {
	store repository.Store
}

func (r *openRegisterReader) getOpenRegisters(ctx context.Context, branchIds []int) []*dataloader.Result[[]*models.CashRegister] {
	var results []models.CashRegister
	err := r.store.View(ctx, func(tx repository.Tx) error {
		var err error
		results, err = tx.ListOpenCashRegisters(ctx, branchIds)
		return err
	})
	if err != nil {
		return handleError[[]*models.CashRegister](len(branchIds), err)
	}
	return generateLoaderArrayResults(results, branchIds, func(r models.CashRegister) int { return r.BranchId })
}

func newLoaders(store repository.Store) *loaders {
	branches := &branchReader{store: store}
	registers := &openRegisterReader{store: store}
	return &loaders{
		branchLoader:       dataloader.NewBatchedLoader(branches.getBranches, dataloader.WithWait[int, *models.Branch](time.Millisecond)),
		openRegisterLoader: dataloader.NewBatchedLoader(registers.getOpenRegisters, dataloader.WithWait[int, []*models.CashRegister](time.Millisecond)),
	}
}

// handleError creates array of result with the same error repeated for as many items requested
func handleError[T any](itemsLength int, err error) []*dataloader.Result[T] {
	result := make([]*dataloader.Result[T], itemsLength)
	for i := 0; i < itemsLength; i++ {
		result[i] = &dataloader.Result[T]{Error: err}
	}
	return result
}

type identified interface {
	GetId() int
}

// generateLoaderResults orders results by ids; a missing id yields ErrRecordNotFound.
func generateLoaderResults[T identified](results []T, ids []int) []*dataloader.Result[*T] {
	resultMap := make(map[int]T, len(results))
	for _, result := range results {
		resultMap[result.GetId()] = result
	}
	loaderResults := make([]*dataloader.Result[*T], 0, len(ids))
	for _, id := range ids {
		data, ok := resultMap[id]
		if !ok {
			loaderResults = append(loaderResults, &dataloader.Result[*T]{Error: models.ErrRecordNotFound})
			continue
		}
		loaderResults = append(loaderResults, &dataloader.Result[*T]{Data: &data})
	}
	return loaderResults
}

// each id has many related results
func generateLoaderArrayResults[T any](results []T, referenceIds []int, referenceOf func(T) int) []*dataloader.Result[[]*T] {
	resultMap := make(map[int][]*T)
	for _, result := range results {
		copy := result
		resultMap[referenceOf(result)] = append(resultMap[referenceOf(result)], &copy)
	}
	loaderResults := make([]*dataloader.Result[[]*T], 0, len(referenceIds))
	for _, id := range referenceIds {
		loaderResults = append(loaderResults, &dataloader.Result[[]*T]{Data: resultMap[id]})
	}
	return loaderResults
}
