package handler

import (
	"net/http"

	"github.com/goccy/go-json"
	logger "github.com/sirupsen/logrus"
)

type errorResponse struct {
	Error     string `json:"error"`
	Reason    string `json:"reason,omitempty"`
	Shortfall string `json:"shortfall,omitempty"`
	Held      *int64 `json:"held,omitempty"`
	Requested *int64 `json:"requested,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.WithError(err).Error("failed to encode response")
	}
}
