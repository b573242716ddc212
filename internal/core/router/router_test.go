package router

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mohammed-shakir/offline-asset-cache/internal/cache"
	"github.com/mohammed-shakir/offline-asset-cache/internal/controller"
	"github.com/mohammed-shakir/offline-asset-cache/internal/strategy"
)

type fakeDispatcher struct {
	last controller.Event
	act  controller.Action
}

func (f *fakeDispatcher) Dispatch(_ context.Context, ev controller.Event) controller.Action {
	f.last = ev
	return f.act
}

func (f *fakeDispatcher) Status() controller.Status {
	return controller.Status{State: "activated", Generation: "v1", Namespace: "live2d-cache-v1"}
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestHandleFetch_WritesRespondAction(t *testing.T) {
	d := &fakeDispatcher{act: controller.Respond{
		Response: &cache.Response{Status: 200, Header: http.Header{"Content-Type": {"text/css"}}, Body: []byte("body{}")},
		Source:   strategy.FromCache,
	}}
	pass := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { t.Fatal("pass-through called") })

	rr := httptest.NewRecorder()
	HandleFetch(quiet(), d, pass)(rr, httptest.NewRequest(http.MethodGet, "/live2d_3/css/bootstrap.min.css", nil))

	if rr.Code != 200 || rr.Body.String() != "body{}" {
		t.Fatalf("got %d %q", rr.Code, rr.Body.String())
	}
	if rr.Header().Get("X-Cache-Source") != "cache" || rr.Header().Get("Content-Length") != "6" {
		t.Fatalf("headers=%v", rr.Header())
	}
	f, ok := d.last.(controller.Fetch)
	if !ok || f.Method != http.MethodGet || f.Request.URL.Path != "/live2d_3/css/bootstrap.min.css" {
		t.Fatalf("event=%#v", d.last)
	}
}

func TestHandleFetch_PassThrough(t *testing.T) {
	d := &fakeDispatcher{act: controller.PassThrough{}}
	called := false
	pass := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.WriteHeader(http.StatusAccepted)
	})
	rr := httptest.NewRecorder()
	HandleFetch(quiet(), d, pass)(rr, httptest.NewRequest(http.MethodPost, "/api", nil))
	if !called || rr.Code != http.StatusAccepted {
		t.Fatalf("called=%v status=%d", called, rr.Code)
	}
}

func TestHandleMessage(t *testing.T) {
	d := &fakeDispatcher{act: controller.Broadcast{Message: controller.CachesCleared{}, Delivered: 3}}
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/sw/message", strings.NewReader(`{"type":"CLEAR_CACHES"}`))
	HandleMessage(quiet(), d)(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	var got struct {
		Action    string          `json:"action"`
		Delivered int             `json:"delivered"`
		Message   json.RawMessage `json:"message"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Action != "broadcast" || got.Delivered != 3 || string(got.Message) != `{"type":"CACHES_CLEARED"}` {
		t.Fatalf("body=%s", rr.Body.String())
	}
	if m, ok := d.last.(controller.Message); !ok || m.Type != controller.MsgClearCaches {
		t.Fatalf("event=%#v", d.last)
	}
}

func TestHandleMessage_Rejects(t *testing.T) {
	cases := map[string]int{
		`{"type":"REBOOT"}`: http.StatusUnprocessableEntity,
		`{`:                 http.StatusBadRequest,
	}
	for body, want := range cases {
		d := &fakeDispatcher{}
		rr := httptest.NewRecorder()
		HandleMessage(quiet(), d)(rr, httptest.NewRequest(http.MethodPost, "/sw/message", strings.NewReader(body)))
		if rr.Code != want {
			t.Fatalf("%s: status=%d want %d", body, rr.Code, want)
		}
		if d.last != nil {
			t.Fatalf("%s: dispatched %#v", body, d.last)
		}
	}
}

func TestHandlePush_EmptyBodyAllowed(t *testing.T) {
	d := &fakeDispatcher{act: controller.Broadcast{Message: controller.Notification{Title: "t"}}}
	rr := httptest.NewRecorder()
	HandlePush(d)(rr, httptest.NewRequest(http.MethodPost, "/sw/push", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	if _, ok := d.last.(controller.Push); !ok {
		t.Fatalf("event=%#v", d.last)
	}
}

func TestHandleNotificationClick(t *testing.T) {
	d := &fakeDispatcher{act: controller.OpenWindow{URL: "/", Focus: true, ClientID: "tab"}}
	rr := httptest.NewRecorder()
	HandleNotificationClick(d)(rr, httptest.NewRequest(http.MethodPost, "/sw/notificationclick", strings.NewReader(`{"action":""}`)))
	if got := strings.TrimSpace(rr.Body.String()); got != `{"action":"open_window","url":"/","focus":true,"clientId":"tab"}` {
		t.Fatalf("body=%s", got)
	}
}

func TestHandleState(t *testing.T) {
	rr := httptest.NewRecorder()
	HandleState(&fakeDispatcher{})(rr, httptest.NewRequest(http.MethodGet, "/sw/state", nil))
	var st controller.Status
	if err := json.Unmarshal(rr.Body.Bytes(), &st); err != nil {
		t.Fatal(err)
	}
	if st.State != "activated" || st.Namespace != "live2d-cache-v1" {
		t.Fatalf("state=%+v", st)
	}
}

type slowDispatcher struct {
	fakeDispatcher
	delay time.Duration
}

func (s *slowDispatcher) Dispatch(ctx context.Context, ev controller.Event) controller.Action {
	time.Sleep(s.delay)
	return s.fakeDispatcher.Dispatch(ctx, ev)
}

func TestHandleMessage_OutlastsWriteTimeout(t *testing.T) {
	d := &slowDispatcher{
		fakeDispatcher: fakeDispatcher{act: controller.Broadcast{
			Message: controller.ModelCached{ModelID: "z23", Success: 3, Total: 3},
		}},
		delay: 300 * time.Millisecond,
	}
	srv := httptest.NewUnstartedServer(HandleMessage(quiet(), d))
	srv.Config.WriteTimeout = 50 * time.Millisecond
	srv.Start()
	t.Cleanup(srv.Close)

	resp, err := http.Post(srv.URL, "application/json", strings.NewReader(`{"type":"CACHE_MODEL","modelId":"z23"}`))
	if err != nil {
		t.Fatalf("reply lost after write timeout: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), `"MODEL_CACHED"`) {
		t.Fatalf("status=%d body=%s", resp.StatusCode, body)
	}
}
