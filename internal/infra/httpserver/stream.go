package httpserver

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/bryanwahyu/footprint/internal/domain/progress"
	"github.com/bryanwahyu/footprint/internal/logging"
)

const (
	writeWait  = 10 * time.Second
	closeGrace = time.Second
)

// GET /v1/{workspace}/scans/{id}/stream  (WebSocket)
// Sends the current snapshot, then every accepted update until the scan
// reaches a terminal status.
func (r *Router) handleStream(w http.ResponseWriter, req *http.Request) error {
	id, err := scanID(req)
	if err != nil {
		return err
	}
	ws := chi.URLParam(req, "workspace")
	if r.progress == nil {
		return errUnavailable
	}

	ctx, cancel := context.WithCancel(context.WithoutCancel(req.Context()))
	defer cancel()

	// subscribe first so nothing published between snapshot and upgrade is lost
	updates, unsubscribe, err := r.progress.Subscribe(ctx, string(id))
	if err != nil {
		return err
	}
	defer unsubscribe()

	snap, err := r.scans.Progress(req.Context(), ws, id)
	if err != nil {
		return err
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     r.checkOrigin,
	}
	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		// Upgrade already answered the client
		r.log.Debug("websocket upgrade failed", logging.ScanID(string(id)), zap.Error(err))
		return nil
	}
	defer conn.Close()

	log := r.log.With(logging.ScanID(string(id)), logging.Workspace(ws))
	log.Debug("progress stream opened")

	send := func(u progress.Update) error {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(u)
	}

	if err := send(progress.Update{Type: eventFor(*snap), ScanID: string(id), Snapshot: *snap}); err != nil {
		return nil
	}
	if snap.Status.IsTerminal() {
		r.closeStream(conn, "scan finished")
		return nil
	}

	// read pump, only to notice the client going away
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(r.pingEvery)
	defer ticker.Stop()

	last := snap.Version
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return nil
			}
		case u, ok := <-updates:
			if !ok {
				r.closeStream(conn, "stream closed")
				return nil
			}
			// stale copies may arrive after a newer snapshot was sent
			if u.Snapshot.Version <= last && u.Type != progress.EventScanComplete {
				continue
			}
			if u.Snapshot.Version > last {
				last = u.Snapshot.Version
			}
			if err := send(u); err != nil {
				log.Debug("progress stream write failed", zap.Error(err))
				return nil
			}
			if u.Type == progress.EventScanComplete || u.Snapshot.Status.IsTerminal() {
				r.closeStream(conn, "scan finished")
				return nil
			}
		}
	}
}

func eventFor(s progress.Snapshot) progress.EventType {
	if s.Status.IsTerminal() {
		return progress.EventScanComplete
	}
	return progress.EventProviderUpdate
}

func (r *Router) closeStream(conn *websocket.Conn, reason string) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGrace))
}

// checkOrigin allows requests without Origin (non browser clients) and
// browser origins listed in the CORS config.
func (r *Router) checkOrigin(req *http.Request) bool {
	origin := req.Header.Get("Origin")
	if origin == "" || len(r.origins) == 0 {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	for _, o := range r.origins {
		if o == "*" || strings.EqualFold(o, origin) || strings.EqualFold(o, u.Scheme+"://"+u.Host) {
			return true
		}
	}
	return false
}
