// Package gateway is the websocket surface of the router. A host UI opens
// one connection per browser session, streams turn frames in, and receives
// the routing result plus the UI actions to apply.
package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/dashwise/router-runtime/internal/engine"
	"github.com/dashwise/router-runtime/internal/session"
)

type inboundFrame struct {
	Type    string              `json:"type"`
	Turn    *engine.TurnRequest `json:"turn,omitempty"`
	Options *optionsFrame       `json:"options,omitempty"`
}

type optionsFrame struct {
	SessionID      string           `json:"session_id"`
	Kind           string           `json:"kind,omitempty"`
	OriginalIntent string           `json:"original_intent,omitempty"`
	Options        []session.Option `json:"options"`
}

type outboundFrame struct {
	Type    string              `json:"type"`
	Result  *engine.TurnResponse `json:"result,omitempty"`
	Error   string              `json:"error,omitempty"`
}

// Handler upgrades connections and pumps frames. One write mutex per
// connection; gorilla allows a single concurrent writer.
type Handler struct {
	engine   *engine.Engine
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func New(routingEngine *engine.Engine, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		engine: routingEngine,
		logger: logger.With("component", "gateway"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	conn, err := h.upgrader.Upgrade(w, req, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	h.logger.Info("gateway session established", "remote", req.RemoteAddr)

	var writeMu sync.Mutex
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Warn("gateway connection dropped", "error", err)
			}
			return
		}
		h.handleFrame(req.Context(), conn, &writeMu, data)
	}
}

func (h *Handler) handleFrame(ctx context.Context, conn *websocket.Conn, writeMu *sync.Mutex, data []byte) {
	var frame inboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		h.writeFrame(conn, writeMu, outboundFrame{Type: "error", Error: "invalid frame"})
		return
	}

	switch frame.Type {
	case "turn":
		if frame.Turn == nil {
			h.writeFrame(conn, writeMu, outboundFrame{Type: "error", Error: "turn payload is required"})
			return
		}
		response, err := h.engine.RouteTurn(ctx, *frame.Turn)
		if err != nil {
			h.logger.Error("turn routing failed", "session_id", frame.Turn.SessionID, "error", err)
			h.writeFrame(conn, writeMu, outboundFrame{Type: "error", Error: err.Error()})
			return
		}
		h.writeFrame(conn, writeMu, outboundFrame{Type: "result", Result: &response})
	case "options":
		if frame.Options == nil || len(frame.Options.Options) == 0 {
			h.writeFrame(conn, writeMu, outboundFrame{Type: "error", Error: "options payload is required"})
			return
		}
		kind := frame.Options.Kind
		if kind == "" {
			kind = "options"
		}
		h.engine.ShowOptions(frame.Options.SessionID, kind, frame.Options.OriginalIntent, frame.Options.Options)
		h.writeFrame(conn, writeMu, outboundFrame{Type: "ack"})
	default:
		h.writeFrame(conn, writeMu, outboundFrame{Type: "error", Error: "unknown frame type"})
	}
}

func (h *Handler) writeFrame(conn *websocket.Conn, writeMu *sync.Mutex, frame outboundFrame) {
	writeMu.Lock()
	defer writeMu.Unlock()
	if err := conn.WriteJSON(frame); err != nil {
		h.logger.Error("failed to write gateway frame", "error", err)
	}
}
