package settlement

import (
	"context"
	"errors"
	"strings"
	"time"

	logger "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"brokerengine/src/exceptions"
	"brokerengine/src/ledger"
	"brokerengine/src/model"
	"brokerengine/src/orders"
	"brokerengine/src/repository"
)

const (
	ResultCompleted = "completed"
	ResultPending   = "pending"
	resultErrPrefix = "error:"
)

// Result is the outcome of one pending order in a pass.
type Result struct {
	TransactionID string `json:"transactionId"`
	Symbol        string `json:"symbol"`
	Status        string `json:"status"`
	Message       string `json:"message,omitempty"`
}

func (r Result) Failed() bool {
	return strings.HasPrefix(r.Status, resultErrPrefix)
}

// Summary aggregates one settlement pass. Results follow the order pending rows were read in.
type Summary struct {
	Processed int      `json:"processed"`
	Completed int      `json:"completed"`
	Pending   int      `json:"pending"`
	Failed    int      `json:"failed"`
	Results   []Result `json:"results"`
}

// Poller resolves pending limit orders. It never cancels or expires an order.
type Poller struct {
	reconciler   *ledger.Reconciler
	transactions *repository.TransactionRepository
	exceptions   *repository.ExceptionRepository
	policy       FillPolicy
	batchSize    int
	concurrency  int
	now          func() time.Time
}

func NewPoller(db *gorm.DB, reconciler *ledger.Reconciler, policy FillPolicy, config Config) *Poller {
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	return &Poller{
		reconciler:   reconciler,
		transactions: repository.NewTransactionRepository().WithDB(db),
		exceptions:   repository.NewExceptionRepository().WithDB(db),
		policy:       policy,
		batchSize:    config.BatchSize,
		concurrency:  config.Concurrency,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// RunSettlementPass evaluates every pending order once, oldest first, one page of BatchSize
// rows at a time. Orders of one (user, symbol) are settled sequentially in creation order;
// different keys run concurrently. A failing order is reported in its Result and never aborts
// the pass.
func (p *Poller) RunSettlementPass(ctx context.Context) (Summary, error) {
	watcher, _ := p.policy.(symbolWatcher)

	var (
		results     []Result
		stillWanted []string
		cursor      *repository.PendingCursor
	)

	for {
		if err := ctx.Err(); err != nil {
			return p.summarize(results), err
		}

		page, err := p.transactions.FindPending(ctx, cursor, p.batchSize)
		if err != nil {
			return p.summarize(results), err
		}
		if len(page) == 0 {
			break
		}

		if watcher != nil {
			watcher.Watch(ctx, pendingSymbols(page))
		}

		pageResults := p.settlePage(ctx, page)
		for i, r := range pageResults {
			if r.Status != ResultCompleted {
				stillWanted = append(stillWanted, page[i].Symbol)
			}
		}
		results = append(results, pageResults...)

		if len(page) < p.batchSize {
			break
		}
		cursor = repository.CursorOf(page[len(page)-1])
	}

	if watcher != nil {
		watcher.Retain(stillWanted)
	}

	return p.summarize(results), nil
}

// settlePage settles one page. Results follow the page order.
func (p *Poller) settlePage(ctx context.Context, pending []model.Transaction) []Result {
	results := make([]Result, len(pending))

	// group by key, keeping creation order inside each group
	var keys []string
	groups := make(map[string][]int)
	for i, txn := range pending {
		key := txn.PositionKey()
		if _, ok := groups[key]; !ok {
			keys = append(keys, key)
		}
		groups[key] = append(groups[key], i)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)

	for _, key := range keys {
		idxs := groups[key]
		g.Go(func() error {
			for _, i := range idxs {
				results[i] = p.settleOne(gctx, pending[i])
			}
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (p *Poller) summarize(results []Result) Summary {
	summary := Summary{Processed: len(results), Results: results}
	for _, r := range results {
		switch {
		case r.Status == ResultCompleted:
			summary.Completed++
		case r.Status == ResultPending:
			summary.Pending++
		case r.Failed():
			summary.Failed++
		}
	}

	logger.WithFields(map[string]interface{}{
		"component": "Poller",
		"processed": summary.Processed,
		"completed": summary.Completed,
		"pending":   summary.Pending,
		"failed":    summary.Failed,
	}).Info("Settlement pass finished")

	return summary
}

// symbolWatcher is a fill policy that needs live prices for the symbols it evaluates. Watch is
// called before each page is settled; Retain receives the symbols still pending once the pass
// has seen every pending order.
type symbolWatcher interface {
	Watch(ctx context.Context, symbols []string)
	Retain(symbols []string)
}

func pendingSymbols(pending []model.Transaction) []string {
	seen := make(map[string]struct{}, len(pending))
	var symbols []string
	for _, txn := range pending {
		if _, ok := seen[txn.Symbol]; ok {
			continue
		}
		seen[txn.Symbol] = struct{}{}
		symbols = append(symbols, txn.Symbol)
	}
	return symbols
}

func (p *Poller) settleOne(ctx context.Context, txn model.Transaction) Result {
	result := Result{TransactionID: txn.ID, Symbol: txn.Symbol}

	log := logger.WithFields(map[string]interface{}{
		"component":      "Poller",
		"transaction_id": txn.ID,
		"user":           txn.UserID,
		"symbol":         txn.Symbol,
		"type":           txn.Type,
	})

	fill, observed, err := p.policy.ShouldFill(ctx, txn)
	if err != nil {
		return p.fail(ctx, txn, result, "fill_policy", err)
	}
	if !fill {
		result.Status = ResultPending
		return result
	}

	price := executionPrice(txn, observed)
	settledHere := false

	err = p.reconciler.Run(ctx, txn.PositionKey(), func(tx *gorm.DB) error {
		settledHere = false
		current := txn

		ok, err := p.transactions.WithDB(tx).MarkCompleted(ctx, &current, price, p.now())
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		if _, err := p.reconciler.Apply(ctx, tx, current); err != nil {
			return err
		}
		settledHere = true
		return nil
	})
	if err != nil {
		return p.fail(ctx, txn, result, errorReason(err), err)
	}

	if settledHere {
		log.WithField("price", price.String()).Info("Pending order settled")
	} else {
		log.Info("Pending order was already settled")
	}

	result.Status = ResultCompleted
	return result
}

func (p *Poller) fail(ctx context.Context, txn model.Transaction, result Result, reason string, err error) Result {
	exceptions.Capture(ctx, p.exceptions, exceptions.Report{
		Service:       "settlement",
		Module:        "poller",
		Method:        "settleOne",
		Level:         exceptions.LevelError,
		TransactionID: txn.ID,
		Err:           err,
		Fields: logger.Fields{
			"user":   txn.UserID,
			"symbol": txn.Symbol,
			"reason": reason,
		},
	})

	result.Status = resultErrPrefix + reason
	result.Message = err.Error()
	return result
}

func errorReason(err error) string {
	var fundsErr *orders.InsufficientFundsError
	var sharesErr *orders.InsufficientSharesError

	switch {
	case errors.As(err, &fundsErr):
		return "insufficient_funds"
	case errors.As(err, &sharesErr):
		return "insufficient_shares"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "persistence"
	}
}
