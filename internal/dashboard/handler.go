package dashboard

import (
	"go.uber.org/zap"

	"github.com/yatools/yasync/internal/daemon"
)

// Handler turns daemon replays into dashboard messages.
type Handler struct {
	server *Server
	logger *zap.Logger
}

// NewHandler creates a handler broadcasting through server.
func NewHandler(server *Server, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{server: server, logger: logger}
}

// OnReplay broadcasts r and the updated totals. It fits daemon.Config.OnReplay.
func (h *Handler) OnReplay(r daemon.Replay) {
	data := ReplayData{
		Source:    r.Source,
		Files:     r.Stats.Files,
		Updated:   r.Stats.Updated,
		Deleted:   r.Stats.Deleted,
		ElapsedMS: r.Elapsed.Milliseconds(),
	}
	if r.Err != nil {
		data.Error = r.Err.Error()
	}
	h.send(MessageTypeReplay, data)

	st := StatsData{
		Batches: r.Totals.Batches,
		Pulls:   r.Totals.Pulls,
		Updated: r.Totals.Updated,
		Deleted: r.Totals.Deleted,
		Errors:  r.Totals.Errors,
	}
	h.server.SetStats(st)
	h.send(MessageTypeStats, st)
}

func (h *Handler) send(t MessageType, v any) {
	msg, err := newMessage(t, v)
	if err != nil {
		h.logger.Error("Failed to marshal dashboard data", zap.Error(err))
		return
	}
	h.server.Broadcast(msg)
}
