package clients

import (
	"fmt"
	"net/http"
	"time"
)

// ServeHTTP streams broadcasts to one client as server-sent events. The
// optional "id" query parameter lets a reconnecting page keep its identity.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)
	// streams outlive the server write timeout
	_ = rc.SetWriteDeadline(time.Time{})

	c := h.Register(r.URL.Query().Get("id"))
	defer h.Unregister(c)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if _, err := fmt.Fprintf(w, "event: hello\ndata: {\"clientId\":%q}\n\n", c.ID); err != nil {
		return
	}
	if err := rc.Flush(); err != nil {
		h.logger.WarnContext(r.Context(), "sse flush unsupported", "err", err)
		return
	}

	keepalive := time.NewTicker(25 * time.Second)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-c.Done():
			return
		case f := <-c.Frames():
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", f.Type, f.Data); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		case <-keepalive.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}
