package handler

import (
	"net/http"

	"github.com/alanyoungcy/tradeloop/internal/domain"
)

// OrderReader is satisfied by *blotter.Blotter.
type OrderReader interface {
	Pending() []domain.Order
	Ledger() []domain.LedgerDay
}

// CommandSink accepts operator commands; *command.Queue satisfies it.
type CommandSink interface {
	Push(cmd domain.Command) bool
	PushRaw(payload []byte) error
}

// OrderHandler serves pending orders and the ledger and accepts cancels.
type OrderHandler struct {
	orders OrderReader
	cmds   CommandSink
}

// NewOrderHandler creates an OrderHandler.
func NewOrderHandler(orders OrderReader, cmds CommandSink) *OrderHandler {
	return &OrderHandler{orders: orders, cmds: cmds}
}

// ListOrders responds with pending orders and, with ?date=YYYY-MM-DD, the
// in-memory ledger for that date.
// GET /api/orders
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	pending := make([]orderView, 0)
	for _, o := range h.orders.Pending() {
		pending = append(pending, newOrderView(o))
	}
	resp := map[string]any{"pending": pending}

	if date := r.URL.Query().Get("date"); date != "" {
		booked := make([]orderView, 0)
		for _, day := range h.orders.Ledger() {
			if day.Date != date {
				continue
			}
			for _, o := range day.Orders {
				booked = append(booked, newOrderView(o))
			}
		}
		resp["ledger"] = booked
	}
	writeJSON(w, http.StatusOK, resp)
}

// CancelOrder queues a cancel for the dispatch loop.
// DELETE /api/orders/{id}
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "order id is required")
		return
	}
	if !h.cmds.Push(domain.CancelOrderCommand{OrderID: id}) {
		writeError(w, http.StatusServiceUnavailable, "command queue full")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"queued": string(domain.CommandCancelOrder), "order_id": id})
}
