package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"nhooyr.io/websocket"

	"github.com/MRAlirad/ccip-rebase-token/core/types"
	"github.com/MRAlirad/ccip-rebase-token/services/rebased/api"
	"github.com/MRAlirad/ccip-rebase-token/services/rebased/journal"
	rbmw "github.com/MRAlirad/ccip-rebase-token/services/rebased/middleware"
)

const wsWriteTimeout = 10 * time.Second

// accountFilter normalises the optional ?account= filter to the bech32 form
// used in event attributes.
func accountFilter(w http.ResponseWriter, r *http.Request) (string, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get("account"))
	if raw == "" {
		return "", true
	}
	addr, ok := parseAddress(w, "account", raw)
	if !ok {
		return "", false
	}
	return addr.String(), true
}

// ListEvents pages through the event journal.
func (s *Server) ListEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		rbmw.WriteError(w, http.StatusNotImplemented, codeUnavailable, "event journal not configured")
		return
	}
	account, ok := accountFilter(w, r)
	if !ok {
		return
	}
	query := journal.Query{Account: account, Type: strings.TrimSpace(r.URL.Query().Get("type"))}
	if raw := r.URL.Query().Get("after"); raw != "" {
		after, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeBadRequest(w, codeBadRequest, "after: must be an unsigned integer")
			return
		}
		query.AfterSeq = after
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeBadRequest(w, codeBadRequest, "limit: must be a non-negative integer")
			return
		}
		query.Limit = limit
	}
	entries, err := s.events.List(r.Context(), query)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	out := api.Events{Events: make([]api.Event, 0, len(entries))}
	for _, entry := range entries {
		out.Events = append(out.Events, api.Event{
			Seq:        entry.Seq,
			ID:         entry.ID,
			Type:       entry.Type,
			Attributes: entry.Attributes,
			Timestamp:  entry.Timestamp,
		})
		out.Next = entry.Seq
	}
	writeJSON(w, http.StatusOK, out)
}

// StreamEvents upgrades to a websocket and forwards committed events as they
// are published.
func (s *Server) StreamEvents(w http.ResponseWriter, r *http.Request) {
	if s.stream == nil {
		rbmw.WriteError(w, http.StatusNotImplemented, codeUnavailable, "event stream not configured")
		return
	}
	account, ok := accountFilter(w, r)
	if !ok {
		return
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	ctx := conn.CloseRead(r.Context())
	updates, cancel := s.stream.Subscribe(account)
	defer cancel()
	if err := forwardEvents(ctx, conn, updates); err != nil {
		if status := websocket.CloseStatus(err); status == -1 && ctx.Err() == nil {
			s.logger.Debug("rebased: event stream ended", "error", err)
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func forwardEvents(ctx context.Context, conn *websocket.Conn, updates <-chan *types.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-updates:
			if !ok {
				return nil
			}
			if err := writeEvent(ctx, conn, ev); err != nil {
				return err
			}
		}
	}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, ev *types.Event) error {
	data, err := json.Marshal(api.Event{Type: ev.Type, Attributes: ev.Attributes, Timestamp: ev.Timestamp})
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
