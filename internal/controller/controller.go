// Package controller is the lifecycle state machine of the offline cache:
// install, activate, intercepted fetches, control messages and push events
// all go through Dispatch.
package controller

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/mohammed-shakir/offline-asset-cache/internal/assets"
	"github.com/mohammed-shakir/offline-asset-cache/internal/cache"
	"github.com/mohammed-shakir/offline-asset-cache/internal/classify"
	"github.com/mohammed-shakir/offline-asset-cache/internal/clients"
	"github.com/mohammed-shakir/offline-asset-cache/internal/core/observability"
	"github.com/mohammed-shakir/offline-asset-cache/internal/logger"
	"github.com/mohammed-shakir/offline-asset-cache/internal/network"
	"github.com/mohammed-shakir/offline-asset-cache/internal/strategy"
)

//go:embed static/offline.html
var offlineHTML []byte

// OfflineDocument returns a copy of the built-in offline page.
func OfflineDocument() []byte { return append([]byte(nil), offlineHTML...) }

type State int

const (
	StateNew State = iota
	StateInstalling
	StateInstalled
	StateActivated
)

func (s State) String() string {
	switch s {
	case StateInstalling:
		return "installing"
	case StateInstalled:
		return "installed"
	case StateActivated:
		return "activated"
	default:
		return "new"
	}
}

type Config struct {
	Logger   *slog.Logger
	Store    cache.Store
	Network  network.Fetcher
	Clients  *clients.Hub
	Manifest *assets.Source
	// Origin decides which requests count as same-origin; nil means only relative URLs do.
	Origin     *url.URL
	Classifier *classify.Classifier
	Background *strategy.Background

	Generation string
	Prefix     string
	// OfflineNamespace is kept across generations and holds the offline document. Empty disables it.
	OfflineNamespace string
	OfflineDocument  []byte
	Workers          int
}

// InstallReport is the outcome of the most recent install.
type InstallReport struct {
	CoreFiles  int       `json:"coreFiles"`
	CoreCached bool      `json:"coreCached"`
	CoreError  string    `json:"coreError,omitempty"`
	Success    int       `json:"success"`
	Total      int       `json:"total"`
	Offline    bool      `json:"offlineSeeded"`
	Finished   time.Time `json:"finished"`
}

type Status struct {
	State       string         `json:"state"`
	Generation  string         `json:"generation"`
	Namespace   string         `json:"namespace"`
	Offline     string         `json:"offlineNamespace,omitempty"`
	Clients     int            `json:"clients"`
	Controlled  int            `json:"controlled"`
	LastInstall *InstallReport `json:"lastInstall,omitempty"`
}

type Controller struct {
	logger     *slog.Logger
	store      cache.Store
	net        network.Fetcher
	hub        *clients.Hub
	manifest   *assets.Source
	origin     *url.URL
	classifier *classify.Classifier
	engine     *strategy.Engine
	bg         *strategy.Background

	generation string
	prefix     string
	primary    string
	offline    string
	offlineDoc []byte
	workers    int

	mu          sync.RWMutex
	state       State
	lastInstall *InstallReport
}

func New(cfg Config) (*Controller, error) {
	if cfg.Store == nil || cfg.Network == nil {
		return nil, fmt.Errorf("controller: store and network are required")
	}
	if cfg.Generation == "" {
		return nil, fmt.Errorf("controller: empty generation tag")
	}
	l := cfg.Logger
	if l == nil {
		l = slog.Default()
	}
	hub := cfg.Clients
	if hub == nil {
		hub = clients.NewHub(l)
	}
	src := cfg.Manifest
	if src == nil {
		src = assets.Static(assets.Default())
	}
	cl := cfg.Classifier
	if cl == nil {
		cl = classify.New(false)
	}
	doc := cfg.OfflineDocument
	if len(doc) == 0 {
		doc = offlineHTML
	}
	bg := cfg.Background
	if bg == nil {
		bg = strategy.NewBackground(context.Background(), l, strategy.CountFailure)
	}
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}

	primary := cfg.Prefix + cfg.Generation
	c := &Controller{
		logger:     l,
		store:      cfg.Store,
		net:        cfg.Network,
		hub:        hub,
		manifest:   src,
		origin:     cfg.Origin,
		classifier: cl,
		generation: cfg.Generation,
		prefix:     cfg.Prefix,
		primary:    primary,
		offline:    cfg.OfflineNamespace,
		offlineDoc: doc,
		workers:    workers,
		bg:         bg,
	}
	c.engine = strategy.New(strategy.Config{
		Logger:           l,
		Network:          cfg.Network,
		Store:            cfg.Store,
		Namespace:        primary,
		OfflineNamespace: cfg.OfflineNamespace,
		Background:       bg,
	})
	return c, nil
}

// Dispatch handles one event to completion and returns the action for the caller.
func (c *Controller) Dispatch(ctx context.Context, ev Event) Action {
	switch e := ev.(type) {
	case Install:
		return c.install(ctx)
	case Activate:
		return c.activate(ctx)
	case Fetch:
		return c.fetch(ctx, e)
	case Message:
		return c.message(ctx, e)
	case Push:
		return c.push(ctx, e)
	case NotificationClick:
		return c.notificationClick(ctx, e)
	default:
		return Noop{Reason: fmt.Sprintf("unhandled event %T", ev)}
	}
}

func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Controller) Status() Status {
	c.mu.RLock()
	st := Status{
		State:      c.state.String(),
		Generation: c.generation,
		Namespace:  c.primary,
		Offline:    c.offline,
	}
	if c.lastInstall != nil {
		r := *c.lastInstall
		st.LastInstall = &r
	}
	c.mu.RUnlock()
	st.Clients = c.hub.Len()
	st.Controlled = c.hub.Controlled()
	return st
}

// Namespace is the primary namespace of the current generation.
func (c *Controller) Namespace() string { return c.primary }

// Wait drains background revalidations.
func (c *Controller) Wait() { c.engine.Wait() }

// advance moves the state forward only; an activated controller stays activated.
func (c *Controller) advance(s State) {
	c.mu.Lock()
	if s > c.state {
		c.state = s
	}
	c.mu.Unlock()
}

func (c *Controller) fetch(ctx context.Context, f Fetch) Action {
	if c.State() != StateActivated {
		return PassThrough{}
	}
	if !classify.Eligible(f.Method, f.Request.URL, c.origin) {
		return PassThrough{}
	}
	class := c.classifier.Classify(f.Request.URL.Path)
	res := c.engine.Serve(ctx, class, f.Request)
	return Respond{Response: res.Response, Source: res.Source}
}

func (c *Controller) install(ctx context.Context) Action {
	// a started install runs to completion; only shutdown cuts it short
	ctx, cancel := c.bg.Detach(logger.WithNamespace(logger.WithComponent(ctx, "install"), c.primary))
	defer cancel()
	c.advance(StateInstalling)

	m := c.manifest.Manifest()
	ps := m.Generate()
	rep := InstallReport{CoreFiles: len(ps.Core), Total: len(ps.Speculative)}
	c.logger.InfoContext(ctx, "install started",
		"generation", c.generation, "paths", ps.Len(), "core", len(ps.Core), "speculative", len(ps.Speculative))

	ns, err := c.store.Open(ctx, c.primary)
	if err != nil {
		// nothing can be cached; the controller still activates and serves from the network
		c.logger.ErrorContext(ctx, "open primary namespace failed", "err", err)
		rep.CoreError = err.Error()
	} else {
		if err := c.cacheCore(ctx, ns, ps.Core); err != nil {
			c.logger.ErrorContext(ctx, "core batch failed", "err", err)
			observability.IncPrecache("core", "error")
			rep.CoreError = err.Error()
		} else {
			rep.CoreCached = true
			observability.IncPrecache("core", "ok")
			c.logger.InfoContext(ctx, "core files cached", "count", len(ps.Core))
		}
		rep.Success = c.precache(ctx, ns, ps.Speculative, "install")
	}
	rep.Offline = c.seedOffline(ctx)
	rep.Finished = time.Now()

	c.mu.Lock()
	c.lastInstall = &rep
	c.mu.Unlock()
	c.advance(StateInstalled)

	c.logger.InfoContext(ctx, "install finished",
		"success", rep.Success, "total", rep.Total, "core_cached", rep.CoreCached)

	// no waiting phase
	c.activate(ctx)
	return Noop{Reason: fmt.Sprintf("installed %d/%d speculative files", rep.Success, rep.Total)}
}

func (c *Controller) seedOffline(ctx context.Context) bool {
	if c.offline == "" {
		return false
	}
	ctx = logger.WithNamespace(ctx, c.offline)
	ns, err := c.store.Open(ctx, c.offline)
	if err == nil {
		err = ns.Put(ctx, strategy.OfflineURL, &cache.Response{
			Status: http.StatusOK,
			Header: http.Header{"Content-Type": {"text/html; charset=utf-8"}},
			Body:   c.offlineDoc,
		})
	}
	if err != nil {
		c.logger.WarnContext(ctx, "seed offline document failed", "err", err)
		return false
	}
	return true
}

func (c *Controller) activate(ctx context.Context) Action {
	ctx = logger.WithComponent(ctx, "activate")
	names, err := c.store.Namespaces(ctx)
	if err != nil {
		c.logger.ErrorContext(ctx, "list namespaces failed", "err", err)
	}
	deleted := 0
	for _, name := range names {
		if name == c.primary || (c.offline != "" && name == c.offline) {
			continue
		}
		nctx := logger.WithNamespace(ctx, name)
		if _, err := c.store.Delete(nctx, name); err != nil {
			c.logger.WarnContext(nctx, "delete old namespace failed", "err", err)
			continue
		}
		deleted++
		c.logger.InfoContext(nctx, "deleted old namespace")
	}

	ctx = logger.WithNamespace(ctx, c.primary)
	c.advance(StateActivated)
	claimed := c.hub.Claim()
	observability.SetGeneration(c.primary)
	c.logger.InfoContext(ctx, "activated",
		"pruned", deleted, "clients", claimed)
	return Noop{Reason: fmt.Sprintf("activated; pruned %d namespaces", deleted)}
}

func (c *Controller) message(ctx context.Context, m Message) Action {
	ctx = logger.WithComponent(ctx, "control")
	switch m.Type {
	case MsgClearCaches:
		return c.clearCaches(ctx)
	case MsgCacheModel:
		return c.cacheModel(ctx, m.ModelID)
	case MsgSkipWaiting:
		observability.IncControlMessage(m.Type, "ok")
		return c.activate(ctx)
	default:
		observability.IncControlMessage("unknown", "rejected")
		c.logger.WarnContext(ctx, "unknown control message", "type", m.Type)
		return Noop{Reason: fmt.Sprintf("%v: %q", ErrUnknownMessage, m.Type)}
	}
}

// owns reports whether a namespace belongs to this controller.
func (c *Controller) owns(name string) bool {
	if c.offline != "" && name == c.offline {
		return true
	}
	return name == c.primary || (c.prefix != "" && strings.HasPrefix(name, c.prefix))
}

func (c *Controller) clearCaches(ctx context.Context) Action {
	names, err := c.store.Namespaces(ctx)
	if err != nil {
		c.logger.ErrorContext(ctx, "list namespaces failed", "err", err)
	}
	for _, name := range names {
		if !c.owns(name) {
			continue
		}
		nctx := logger.WithNamespace(ctx, name)
		if _, err := c.store.Delete(nctx, name); err != nil {
			c.logger.WarnContext(nctx, "delete namespace failed", "err", err)
			continue
		}
		c.logger.InfoContext(nctx, "cache cleared")
	}
	return c.broadcast(ctx, MsgClearCaches, CachesCleared{})
}

func (c *Controller) cacheModel(ctx context.Context, id string) Action {
	if err := assets.ValidateModelID(id); err != nil {
		observability.IncControlMessage(MsgCacheModel, "rejected")
		c.logger.WarnContext(ctx, "rejected model id", "model", id, "err", err)
		return Noop{Reason: err.Error()}
	}
	// runs to completion even if the sender goes away
	ctx, cancel := c.bg.Detach(logger.WithNamespace(ctx, c.primary))
	defer cancel()
	paths := c.manifest.Manifest().ModelPaths(id)
	c.logger.InfoContext(ctx, "model precache started", "model", id, "files", len(paths))

	ns, err := c.store.Open(ctx, c.primary)
	success := 0
	if err != nil {
		c.logger.ErrorContext(ctx, "open primary namespace failed", "err", err)
	} else {
		success = c.precache(ctx, ns, paths, "model")
	}
	c.logger.InfoContext(ctx, "model precache finished", "model", id, "success", success, "total", len(paths))
	return c.broadcast(ctx, MsgCacheModel, ModelCached{ModelID: id, Success: success, Total: len(paths)})
}

func (c *Controller) broadcast(ctx context.Context, typ string, msg clients.Message) Action {
	n, err := c.hub.Broadcast(ctx, msg)
	if err != nil {
		observability.IncControlMessage(typ, "error")
		c.logger.ErrorContext(ctx, "broadcast failed", "type", msg.MessageType(), "err", err)
		return Noop{Reason: err.Error()}
	}
	observability.IncControlMessage(typ, "ok")
	return Broadcast{Message: msg, Delivered: n}
}

const (
	defaultNotificationTitle = "Live2D Viewer"
	defaultNotificationBody  = "New characters are available."
)

func (c *Controller) push(ctx context.Context, p Push) Action {
	n := Notification{
		Title:      p.Title,
		Body:       p.Body,
		PrimaryKey: p.PrimaryKey,
		Actions: []NotificationAction{
			{Action: "explore", Title: "Open viewer"},
			{Action: "close", Title: "Close"},
		},
	}
	if n.Title == "" {
		n.Title = defaultNotificationTitle
	}
	if n.Body == "" {
		n.Body = defaultNotificationBody
	}
	if n.PrimaryKey == "" {
		n.PrimaryKey = "1"
	}
	return c.broadcast(ctx, "PUSH", n)
}

func (c *Controller) notificationClick(ctx context.Context, n NotificationClick) Action {
	switch n.Action {
	case "explore":
		return OpenWindow{URL: "/"}
	case "close":
		return Noop{Reason: "notification dismissed"}
	}
	if id, ok := c.hub.Any(); ok {
		if sent, err := c.hub.Send(id, Focus{URL: "/"}); err == nil && sent {
			return OpenWindow{URL: "/", Focus: true, ClientID: id}
		}
		c.logger.DebugContext(ctx, "focus not delivered; opening new window", "client", id)
	}
	return OpenWindow{URL: "/"}
}

// Readiness reports ready once a generation is active.
func (c *Controller) Readiness() (bool, string) {
	s := c.State()
	return s == StateActivated, s.String()
}
