package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/tradeloop/internal/command"
)

const maxCommandBody = 4096

// CommandHandler accepts operator commands in the wire form used on the
// command channel.
type CommandHandler struct {
	cmds   CommandSink
	logger *slog.Logger
}

// NewCommandHandler creates a CommandHandler.
func NewCommandHandler(cmds CommandSink, logger *slog.Logger) *CommandHandler {
	return &CommandHandler{cmds: cmds, logger: logger.With(slog.String("handler", "commands"))}
}

// PostCommand queues one command, e.g. {"name":"pause","args":["maintenance"]}.
// POST /api/commands
func (h *CommandHandler) PostCommand(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxCommandBody+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body")
		return
	}
	if len(body) > maxCommandBody {
		writeError(w, http.StatusRequestEntityTooLarge, "command too large")
		return
	}
	if err := h.cmds.PushRaw(body); err != nil {
		if errors.Is(err, command.ErrQueueFull) {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.logger.InfoContext(r.Context(), "command queued", slog.String("remote_addr", r.RemoteAddr))
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}
