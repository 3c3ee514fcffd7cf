package httpx

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/splax/teamroster/internal/docpath"
	"github.com/splax/teamroster/internal/ws"
)

func dataPath(req *http.Request) string {
	return mux.Vars(req)["path"]
}

func decodeValue(w http.ResponseWriter, req *http.Request) (any, error) {
	decoder := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxBodyBytes))
	decoder.UseNumber()
	var value any
	if err := decoder.Decode(&value); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("empty body")
		}
		return nil, err
	}
	return value, nil
}

func (r *Router) handleDataGet(w http.ResponseWriter, req *http.Request) {
	value, err := r.docs.Get(req.Context(), actorFromContext(req.Context()), dataPath(req))
	if err != nil {
		r.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, value)
}

func (r *Router) handleDataSet(w http.ResponseWriter, req *http.Request) {
	value, err := decodeValue(w, req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := r.docs.Set(req.Context(), actorFromContext(req.Context()), dataPath(req), value); err != nil {
		r.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, value)
}

func (r *Router) handleDataUpdate(w http.ResponseWriter, req *http.Request) {
	value, err := decodeValue(w, req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	patch, ok := value.(map[string]any)
	if !ok {
		writeError(w, http.StatusBadRequest, "update body must be a JSON object")
		return
	}
	if err := r.docs.Update(req.Context(), actorFromContext(req.Context()), dataPath(req), patch); err != nil {
		r.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, patch)
}

func (r *Router) handleDataRemove(w http.ResponseWriter, req *http.Request) {
	if err := r.docs.Remove(req.Context(), actorFromContext(req.Context()), dataPath(req)); err != nil {
		r.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// streamPath validates the path query parameter before a connection is upgraded.
func (r *Router) streamPath(w http.ResponseWriter, req *http.Request) (string, bool) {
	path, err := docpath.Clean(req.URL.Query().Get("path"))
	if err != nil {
		r.writeServiceError(w, err)
		return "", false
	}
	return path, true
}

func (r *Router) handleSubscribeWS(w http.ResponseWriter, req *http.Request) {
	path, ok := r.streamPath(w, req)
	if !ok {
		return
	}
	actor := actorFromContext(req.Context())
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	client := ws.NewClient(conn, r.logger)
	dispose, err := r.docs.Subscribe(req.Context(), actor, path, client)
	if err != nil {
		r.logger.Warn("subscription rejected", "path", path, "error", err)
		client.Close()
		return
	}
	defer dispose()

	conn.SetReadLimit(4096)
	_ = conn.SetReadDeadline(time.Now().Add(2 * r.heartbeat))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(2 * r.heartbeat))
	})

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(r.heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := client.Ping(); err != nil {
					return
				}
			}
		}
	}()
	defer close(done)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (r *Router) handleStream(w http.ResponseWriter, req *http.Request) {
	path, ok := r.streamPath(w, req)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	headers := w.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Connection", "keep-alive")
	headers.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	client := ws.NewSSEClient(w, flusher, r.logger)
	dispose, err := r.docs.Subscribe(req.Context(), actorFromContext(req.Context()), path, client)
	if err != nil {
		r.logger.Warn("subscription rejected", "path", path, "error", err)
		return
	}
	defer dispose()

	ticker := time.NewTicker(r.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-req.Context().Done():
			return
		case <-client.Done():
			return
		case <-ticker.C:
			if err := client.Heartbeat(); err != nil {
				return
			}
		}
	}
}
