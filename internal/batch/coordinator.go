// Package batch fans independent per-transaction evaluations out over a
// bounded worker pool and collects keyed results.
package batch

import (
	"context"
	"sync"

	"github.com/openrisk/kestrel/internal/decision"
	"github.com/openrisk/kestrel/internal/domain"
)

// Result is the outcome for one transaction in a batch. Decision and Err
// can both be set: a persistence failure returns the in-memory decision
// alongside an error wrapping domain.ErrPersistence.
type Result struct {
	Decision *domain.Decision
	Err      error
}

// Coordinator runs batches against a decision composer.
type Coordinator struct {
	composer   *decision.Composer
	maxWorkers int
}

// NewCoordinator creates a coordinator with the given concurrency bound.
func NewCoordinator(composer *decision.Composer, maxWorkers int) *Coordinator {
	if maxWorkers <= 0 {
		maxWorkers = 16
	}
	return &Coordinator{composer: composer, maxWorkers: maxWorkers}
}

// Run evaluates every transaction independently and returns results keyed
// by transaction id. Duplicate ids overwrite earlier entries
// (last-write-wins in input order), though each submitted instance is
// still evaluated and persisted.
//
// One transaction's failure never aborts the batch: it is reported in its
// Result while the rest proceed. Cancelling ctx stops admitting new
// evaluations; in-flight ones run to completion on a detached context and
// report their results, so partial success is an ordinary outcome.
func (c *Coordinator) Run(ctx context.Context, txs []*domain.Transaction) map[string]Result {
	out := make(map[string]Result, len(txs))
	if len(txs) == 0 {
		return out
	}

	results := make([]Result, len(txs))
	sem := make(chan struct{}, c.maxWorkers)
	var wg sync.WaitGroup

	for i, tx := range txs {
		wg.Add(1)
		go func(idx int, tx *domain.Transaction) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			// Admission check: a cancelled batch issues no new work.
			if err := ctx.Err(); err != nil {
				results[idx] = Result{Err: err}
				return
			}

			// Detach so an in-flight evaluation completes after cancel.
			d, err := c.composer.Decide(context.WithoutCancel(ctx), tx)
			results[idx] = Result{Decision: d, Err: err}
		}(i, tx)
	}

	wg.Wait()

	for i, tx := range txs {
		out[tx.ID] = results[i]
	}
	return out
}
