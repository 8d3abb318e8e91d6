package exceptions

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/goccy/go-json"
	logger "github.com/sirupsen/logrus"

	"brokerengine/src/model"
	"brokerengine/src/repository"
)

const (
	LevelWarn  = "warn"
	LevelError = "error"
)

// Report is a failure raised by a settlement component.
type Report struct {
	Service       string
	Module        string
	Method        string
	Level         string
	TransactionID string
	Err           error
	Fields        logger.Fields
}

func (r Report) record() *model.Exception {
	exc := &model.Exception{
		Service:   r.Service,
		Module:    r.Module,
		Method:    r.Method,
		Level:     r.Level,
		Message:   r.Err.Error(),
		Stack:     string(debug.Stack()),
		CreatedAt: time.Now(),
	}
	if r.TransactionID != "" {
		id := r.TransactionID
		exc.TransactionID = &id
	}
	if len(r.Fields) > 0 {
		if b, err := json.Marshal(r.Fields); err == nil {
			exc.Context = string(b)
		}
	}
	return exc
}

// Capture logs r and stores it through repo when one is configured.
// Reports without an error are dropped.
func Capture(ctx context.Context, repo *repository.ExceptionRepository, r Report) {
	if r.Err == nil {
		return
	}

	entry := logger.WithFields(r.Fields).WithFields(logger.Fields{
		"service": r.Service,
		"module":  r.Module,
		"method":  r.Method,
		"level":   r.Level,
	})
	if r.TransactionID != "" {
		entry = entry.WithField("transaction_id", r.TransactionID)
	}
	entry.WithError(r.Err).Error("Settlement exception")

	if repo == nil {
		return
	}
	if err := repo.Create(ctx, r.record()); err != nil {
		logger.WithError(err).Error("Failed to persist exception")
	}
}
