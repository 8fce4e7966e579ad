// Package server assembles the runtime: database, event bus, plugin
// manager, command dispatcher, chat transport, and the HTTP surface.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-hclog"

	"github.com/castbot/castbot/internal/chat"
	"github.com/castbot/castbot/internal/command"
	"github.com/castbot/castbot/internal/config"
	"github.com/castbot/castbot/internal/database"
	"github.com/castbot/castbot/internal/events"
	"github.com/castbot/castbot/internal/logger"
	"github.com/castbot/castbot/internal/plugin"
	"github.com/castbot/castbot/internal/plugin/loader"
	"github.com/castbot/castbot/sdk"
)

// Server owns every runtime component and drives their lifecycles in order:
// bus, plugin registration by source precedence, init, start, traffic, then
// the reverse at shutdown.
type Server struct {
	logger hclog.Logger
	cfg    *config.Config

	engine     *gin.Engine
	bus        *events.Bus
	commands   *command.Registry
	dispatcher *command.Dispatcher
	manager    *plugin.Manager
	loader     *loader.Loader
	chat       *chat.Client

	static  []sdk.Plugin
	watcher *fsnotify.Watcher
	httpSrv *http.Server
	started time.Time
}

// New builds a server from the active configuration.
func New(cfg *config.Config) (*Server, error) {
	log := logger.Root()

	if err := database.Initialize(); err != nil {
		return nil, err
	}
	db := database.GetDB()

	storage, err := events.NewDatabaseStorage(db)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize event storage: %w", err)
	}
	bus := events.NewBus(log, storage)

	commands := command.NewRegistry(log)
	dispatcher := command.NewDispatcher(commands, bus, log)
	manager := plugin.NewManager(db, bus, commands, log)

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})
	manager.AttachEngine(engine)

	s := &Server{
		logger:     log.Named("server"),
		cfg:        cfg,
		engine:     engine,
		bus:        bus,
		commands:   commands,
		dispatcher: dispatcher,
		manager:    manager,
		loader:     loader.New(cfg.Plugins.PluginDir, cfg.Plugins.ScratchDir, log),
	}
	s.registerRoutes()

	if cfg.Chat.Enabled {
		s.chat = chat.NewClient(cfg.Chat, dispatcher, bus, log)
	}
	return s, nil
}

// RegisterStatic queues a statically compiled plugin. Must be called before
// Run; the configured source precedence decides collisions with dynamic
// artifacts.
func (s *Server) RegisterStatic(p sdk.Plugin) {
	s.static = append(s.static, p)
}

// Manager exposes the plugin manager, mainly for the CLI and tests.
func (s *Server) Manager() *plugin.Manager {
	return s.manager
}

// Run starts everything and blocks until the context is cancelled, then
// shuts down in reverse order. Shutdown completes even when individual
// plugins are unhealthy.
func (s *Server) Run(ctx context.Context) error {
	s.started = time.Now()

	if err := s.bus.Start(ctx); err != nil {
		return err
	}
	s.bus.Publish(events.Event{Type: events.EventSystemStarted, Source: "server"})

	s.registerBySource()

	if err := s.manager.InitAll(ctx); err != nil {
		return fmt.Errorf("plugin initialization failed: %w", err)
	}
	s.manager.StartAll(ctx)

	if s.cfg.Plugins.EnableHotReload {
		watcher, err := s.loader.Watch(ctx, s.manager)
		if err != nil {
			s.logger.Warn("plugin hot reload unavailable", "error", err)
		} else {
			s.watcher = watcher
		}
	}

	if s.chat != nil {
		s.chat.Start(ctx)
	}

	s.httpSrv = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port),
		Handler:      s.engine,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.httpSrv.Addr)
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		s.shutdown()
		return err
	case <-ctx.Done():
		s.shutdown()
		return nil
	}
}

// registerBySource registers plugin groups in the configured precedence
// order; the manager rejects duplicate identifiers, so later groups lose
// collisions with a warning instead of silently overwriting.
func (s *Server) registerBySource() {
	for _, source := range s.cfg.Plugins.Precedence {
		switch source {
		case plugin.SourceStatic:
			for _, p := range s.static {
				s.registerOne(p, plugin.SourceStatic)
			}
		case plugin.SourceDisk:
			for _, loaded := range s.loader.DiscoverDisk() {
				s.registerOne(loaded.Plugin, loaded.Source)
			}
		case plugin.SourceEmbedded:
			for _, loaded := range s.loader.DiscoverEmbedded() {
				s.registerOne(loaded.Plugin, loaded.Source)
			}
		default:
			s.logger.Warn("unknown plugin source in precedence config", "source", source)
		}
	}
}

func (s *Server) registerOne(p sdk.Plugin, source string) {
	if err := s.manager.RegisterSource(p, source); err != nil {
		s.logger.Warn("skipping plugin", "id", p.Metadata().ID, "source", source, "error", err)
	}
}

func (s *Server) shutdown() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("http shutdown failed", "error", err)
		}
	}
	if s.chat != nil {
		s.chat.Stop()
	}
	if s.watcher != nil {
		s.watcher.Close()
	}

	s.manager.StopAll(shutdownCtx)

	s.bus.Publish(events.Event{Type: events.EventSystemStopped, Source: "server"})
	if err := s.bus.Stop(shutdownCtx); err != nil {
		s.logger.Error("event bus shutdown failed", "error", err)
	}
	s.logger.Info("shutdown complete")
}
