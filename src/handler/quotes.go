package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	logger "github.com/sirupsen/logrus"

	"brokerengine/src/marketdata"
)

const relayWriteWait = 10 * time.Second

type quoteStream interface {
	Events() <-chan marketdata.Event
	Snapshot() []marketdata.Quote
	Close()
}

type quoteSubscriber func(symbols ...string) (quoteStream, error)

var relayUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// QuoteStreamHandler relays market data events to a browser websocket. The cached snapshot is
// sent first, then every event of the requested symbols as {"type": ..., "data": ...}.
func QuoteStreamHandler(subscribe quoteSubscriber) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var symbols []string
		for _, s := range strings.Split(r.URL.Query().Get("symbols"), ",") {
			if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
				symbols = append(symbols, s)
			}
		}

		stream, err := subscribe(symbols...)
		if err != nil {
			logger.WithError(err).Warn("quote stream unavailable")
			http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
			return
		}
		defer stream.Close()

		conn, err := relayUpgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.WithError(err).Warn("websocket upgrade failed")
			return
		}
		defer conn.Close()

		log := logger.WithFields(map[string]interface{}{
			"handler": "QuoteStream",
			"symbols": symbols,
			"remote":  r.RemoteAddr,
		})

		// The peer never sends anything we act on; reading detects the close.
		gone := make(chan struct{})
		go func() {
			defer close(gone)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for _, q := range stream.Snapshot() {
			if err := relay(conn, marketdata.QuoteEvent{Quote: q}); err != nil {
				log.WithError(err).Debug("relay closed during snapshot")
				return
			}
		}

		for {
			select {
			case <-gone:
				return
			case <-r.Context().Done():
				return
			case e, ok := <-stream.Events():
				if !ok {
					_ = conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseGoingAway, "stream closed"),
						time.Now().Add(relayWriteWait))
					return
				}
				if err := relay(conn, e); err != nil {
					log.WithError(err).Debug("relay closed")
					return
				}
			}
		}
	}
}

func relay(conn *websocket.Conn, e marketdata.Event) error {
	payload, err := marketdata.EncodeEvent(e)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(relayWriteWait))
	return conn.WriteMessage(websocket.TextMessage, payload)
}

// DefaultQuoteStreamHandler relays from the shared stream client.
func DefaultQuoteStreamHandler(client *marketdata.Client) http.HandlerFunc {
	return QuoteStreamHandler(func(symbols ...string) (quoteStream, error) {
		sub, err := client.Subscribe(symbols...)
		if err != nil {
			return nil, err
		}
		return sub, nil
	})
}
