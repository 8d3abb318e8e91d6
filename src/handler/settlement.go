package handler

import (
	"context"
	"net/http"

	logger "github.com/sirupsen/logrus"

	"brokerengine/src/settlement"
)

type settlementRunner interface {
	RunSettlementPass(ctx context.Context) (settlement.Summary, error)
}

// RunSettlementHandler triggers one settlement pass and returns its summary.
func RunSettlementHandler(runner settlementRunner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summary, err := runner.RunSettlementPass(r.Context())
		if err != nil {
			logger.WithError(err).Error("settlement pass failed")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, summary)
	}
}
