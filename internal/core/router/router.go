// Package router adapts HTTP requests to controller events and controller
// actions back to HTTP responses.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/mohammed-shakir/offline-asset-cache/internal/controller"
	"github.com/mohammed-shakir/offline-asset-cache/internal/core/observability"
)

// Dispatcher is the controller surface the handlers need.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev controller.Event) controller.Action
	Status() controller.Status
}

const maxControlBody = 64 << 10

// HandleFetch intercepts every proxied request. Anything the controller does
// not answer goes to pass.
func HandleFetch(logger *slog.Logger, d Dispatcher, pass http.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}

		act := d.Dispatch(r.Context(), controller.FetchFromHTTP(r))
		switch a := act.(type) {
		case controller.Respond:
			sw.Header().Set("X-Cache-Source", string(a.Source))
			if err := a.Response.WriteTo(sw); err != nil {
				logger.DebugContext(r.Context(), "client went away", "path", r.URL.Path, "err", err)
			}
			observability.ObserveHTTP(r.Method, "fetch", sw.code, time.Since(start).Seconds())
		default:
			pass.ServeHTTP(sw, r)
			observability.ObserveHTTP(r.Method, "passthrough", sw.code, time.Since(start).Seconds())
		}
	}
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// HandleMessage accepts a control message ({"type":"CLEAR_CACHES"} etc.).
// The command runs to completion before the response is written.
func HandleMessage(logger *slog.Logger, d Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		body, err := readBody(w, r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			observability.ObserveHTTP(r.Method, "/sw/message", http.StatusBadRequest, time.Since(start).Seconds())
			return
		}
		msg, err := controller.ParseMessage(body)
		if err != nil {
			code := http.StatusBadRequest
			if errors.Is(err, controller.ErrUnknownMessage) {
				code = http.StatusUnprocessableEntity
			}
			logger.WarnContext(r.Context(), "bad control message", "err", err)
			writeError(w, code, err)
			observability.ObserveHTTP(r.Method, "/sw/message", code, time.Since(start).Seconds())
			return
		}
		// CACHE_MODEL can run longer than the server write timeout
		_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})
		code := writeAction(w, d.Dispatch(r.Context(), msg))
		observability.ObserveHTTP(r.Method, "/sw/message", code, time.Since(start).Seconds())
	}
}

// HandlePush surfaces a push payload as a notification broadcast.
func HandlePush(d Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var p controller.Push
		if err := decodeOptional(w, r, &p); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeAction(w, d.Dispatch(r.Context(), p))
	}
}

func HandleNotificationClick(d Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var n controller.NotificationClick
		if err := decodeOptional(w, r, &n); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeAction(w, d.Dispatch(r.Context(), n))
	}
}

func HandleState(d Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, d.Status())
	}
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	b, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxControlBody))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return b, nil
}

// decodeOptional decodes a JSON body; an empty body leaves v zero.
func decodeOptional(w http.ResponseWriter, r *http.Request, v any) error {
	b, err := readBody(w, r)
	if err != nil {
		return err
	}
	if len(b) == 0 {
		return nil
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}

type actionBody struct {
	Action    string `json:"action"`
	Reason    string `json:"reason,omitempty"`
	Message   any    `json:"message,omitempty"`
	Delivered *int   `json:"delivered,omitempty"`
	URL       string `json:"url,omitempty"`
	Focus     bool   `json:"focus,omitempty"`
	ClientID  string `json:"clientId,omitempty"`
}

// writeAction renders a non-fetch action as JSON and returns the status written.
func writeAction(w http.ResponseWriter, act controller.Action) int {
	var out actionBody
	switch a := act.(type) {
	case controller.Broadcast:
		n := a.Delivered
		out = actionBody{Action: "broadcast", Message: a.Message, Delivered: &n}
	case controller.Noop:
		out = actionBody{Action: "noop", Reason: a.Reason}
	case controller.OpenWindow:
		out = actionBody{Action: "open_window", URL: a.URL, Focus: a.Focus, ClientID: a.ClientID}
	case controller.PassThrough:
		out = actionBody{Action: "pass_through"}
	default:
		out = actionBody{Action: fmt.Sprintf("%T", act)}
	}
	writeJSON(w, http.StatusOK, out)
	return http.StatusOK
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
