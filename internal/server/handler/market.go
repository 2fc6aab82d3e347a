package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/alanyoungcy/tradeloop/internal/domain"
)

// StreamReader is the read side of domain.SignalBus.
type StreamReader interface {
	StreamRead(ctx context.Context, stream, lastID string, count int) ([]domain.StreamMessage, error)
}

// PriceReader fetches cached prices in one round trip.
type PriceReader interface {
	GetPrices(ctx context.Context, symbols []string) (map[string]float64, error)
}

type historyEntry struct {
	ID       string          `json:"id"`
	Snapshot json.RawMessage `json:"snapshot"`
}

// MarketHandler serves cached prices and the performance history stream.
type MarketHandler struct {
	prices  PriceReader
	symbols []string
	history StreamReader
	stream  string
}

// NewMarketHandler creates a MarketHandler. prices and history may be nil.
func NewMarketHandler(prices PriceReader, symbols []string, history StreamReader, stream string) *MarketHandler {
	return &MarketHandler{prices: prices, symbols: symbols, history: history, stream: stream}
}

// ListPrices responds with the cached price of every traded symbol, or of
// the comma separated ?symbols= list. Symbols without a price are omitted.
// GET /api/prices
func (h *MarketHandler) ListPrices(w http.ResponseWriter, r *http.Request) {
	if h.prices == nil {
		writeError(w, http.StatusNotFound, "price cache not configured")
		return
	}
	symbols := h.symbols
	if q := r.URL.Query().Get("symbols"); q != "" {
		symbols = splitList(q)
	}
	prices, err := h.prices.GetPrices(r.Context(), symbols)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"prices": prices})
}

// PerformanceHistory pages through published snapshots. ?after= is the last
// entry ID seen ("0" or empty for the start) and ?count= the page size
// (default 100, max 1000). The response carries the ID to resume from.
// GET /api/performance
func (h *MarketHandler) PerformanceHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil || h.stream == "" {
		writeError(w, http.StatusNotFound, "performance history not configured")
		return
	}
	q := r.URL.Query()
	after := q.Get("after")
	if after == "" {
		after = "0"
	}
	count := 100
	if n, err := strconv.Atoi(q.Get("count")); err == nil && n > 0 {
		count = min(n, 1000)
	}

	msgs, err := h.history.StreamRead(r.Context(), h.stream, after, count)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	entries := make([]historyEntry, 0, len(msgs))
	next := after
	for _, m := range msgs {
		next = m.ID
		if !json.Valid(m.Payload) {
			continue
		}
		entries = append(entries, historyEntry{ID: m.ID, Snapshot: m.Payload})
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries, "next": next})
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
