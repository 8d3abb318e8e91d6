package marketdata

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	logger "github.com/sirupsen/logrus"
)

const (
	defaultSnapshotRetries   = 3
	defaultSnapshotWait      = 200 * time.Millisecond
	defaultSnapshotMaxWait   = 2 * time.Second
	defaultSnapshotTimeout   = 10 * time.Second
	snapshotPath             = "/v1/quotes"
	snapshotAPIKeyHeaderName = "X-API-Key"
)

// SnapshotFetcher returns the current quotes of symbols in one request.
type SnapshotFetcher interface {
	FetchSnapshot(ctx context.Context, symbols []string) ([]Quote, error)
}

// RESTSnapshotFetcher reads GET {baseURL}/v1/quotes?symbols=A,B. The body uses the stream's
// record format, so it is decoded with DecodeFrame.
type RESTSnapshotFetcher struct {
	http *resty.Client
}

func NewRESTSnapshotFetcher(baseURL, apiKey string) *RESTSnapshotFetcher {
	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(defaultSnapshotTimeout).
		SetRetryCount(defaultSnapshotRetries).
		SetRetryWaitTime(defaultSnapshotWait).
		SetRetryMaxWaitTime(defaultSnapshotMaxWait).
		AddRetryCondition(isRetryableResp)

	if apiKey != "" {
		httpClient.SetHeader(snapshotAPIKeyHeaderName, apiKey)
	}

	return &RESTSnapshotFetcher{http: httpClient}
}

func isRetryableResp(r *resty.Response, err error) bool {
	if err != nil {
		return true
	}
	if r == nil {
		return false
	}
	code := r.StatusCode()
	return code >= 500 || code == 429 || code == 408
}

func (f *RESTSnapshotFetcher) FetchSnapshot(ctx context.Context, symbols []string) ([]Quote, error) {
	if len(symbols) == 0 {
		return nil, nil
	}

	resp, err := f.http.R().
		SetContext(ctx).
		SetQueryParam("symbols", strings.Join(symbols, ",")).
		Get(snapshotPath)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode(), string(resp.Body()))
	}

	events, err := DecodeFrame(resp.Body())
	if err != nil {
		if len(events) == 0 {
			return nil, err
		}
		logger.WithError(err).Warn("Snapshot contained invalid records")
	}

	quotes := make([]Quote, 0, len(events))
	for _, e := range events {
		if qe, ok := e.(QuoteEvent); ok {
			quotes = append(quotes, qe.Quote)
		}
	}

	return quotes, nil
}
