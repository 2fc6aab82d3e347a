package handler

import (
	"net/http"
	"sort"

	"github.com/alanyoungcy/tradeloop/internal/domain"
)

// PositionReader is satisfied by *blotter.Blotter.
type PositionReader interface {
	Positions() map[string]domain.Position
	RealizedPnL() float64
	UnrealizedPnL() float64
	Commissions() float64
}

type positionView struct {
	Symbol        string  `json:"symbol"`
	Quantity      float64 `json:"quantity"`
	AvgPrice      float64 `json:"avg_price"`
	LastPrice     float64 `json:"last_price"`
	RealizedPnL   float64 `json:"realized_pnl"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
	Margin        float64 `json:"margin,omitempty"`
}

// PositionHandler serves the blotter's expected positions.
type PositionHandler struct {
	positions PositionReader
}

// NewPositionHandler creates a PositionHandler.
func NewPositionHandler(p PositionReader) *PositionHandler {
	return &PositionHandler{positions: p}
}

// ListPositions responds with non-flat positions sorted by symbol and PnL
// totals.
// GET /api/positions
func (h *PositionHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	var out []positionView
	for _, p := range h.positions.Positions() {
		if p.IsFlat() {
			continue
		}
		out = append(out, positionView{
			Symbol:        p.Asset.Symbol,
			Quantity:      p.Quantity,
			AvgPrice:      p.AvgPrice,
			LastPrice:     p.LastPrice,
			RealizedPnL:   p.RealizedPnL,
			UnrealizedPnL: p.UnrealizedPnL,
			Margin:        p.Margin,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	writeJSON(w, http.StatusOK, map[string]any{
		"positions":      out,
		"realized_pnl":   h.positions.RealizedPnL(),
		"unrealized_pnl": h.positions.UnrealizedPnL(),
		"commissions":    h.positions.Commissions(),
	})
}
