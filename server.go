package termspace

import (
	"context"
	"errors"
	"sync"
	"time"

	"pkt.systems/pslog"
	"pkt.systems/termspace/core"
	"pkt.systems/termspace/internal/agentstream"
	"pkt.systems/termspace/internal/eventbus"
	"pkt.systems/termspace/internal/termhost"
	"pkt.systems/termspace/schema"
)

// Server composes the terminal host, the core workspace service, and the
// agent stream coordinator.
type Server interface {
	Start(ctx context.Context) error
	Wait() error
	Stop(ctx context.Context) error
	Service() core.Service
	Agent() *agentstream.Coordinator
}

// ServerConfig configures the compositor.
type ServerConfig struct {
	Service schema.ServiceConfig
	Host    termhost.ServerConfig
}

// ServerDeps captures dependencies required to build the server. Runner is
// optional; without it the agent coordinator is not built. EventSinks are
// fanned out together with ServiceDeps.EventSink.
type ServerDeps struct {
	ServiceDeps core.ServiceDeps
	Runner      agentstream.Runner
	EventSinks  []core.EventSink
}

// ServerOption toggles compositor components.
type ServerOption func(*serverOptions)

type serverOptions struct {
	enableHost   bool
	enableEngine bool
}

// WithHost enables the in-process terminal host daemon.
func WithHost() ServerOption {
	return func(o *serverOptions) { o.enableHost = true }
}

// WithEngine enables the workspace service and agent coordinator.
func WithEngine() ServerOption {
	return func(o *serverOptions) { o.enableEngine = true }
}

// New constructs a composable termspace server.
func New(cfg ServerConfig, deps ServerDeps, opts ...ServerOption) (Server, error) {
	options := serverOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	if !options.enableHost && !options.enableEngine {
		return nil, errors.New("no services enabled")
	}

	normalized, err := schema.NormalizeServiceConfig(cfg.Service)
	if err != nil {
		return nil, err
	}
	cfg.Service = normalized
	if cfg.Host.Dir == "" {
		cfg.Host.Dir = cfg.Service.HostSocketDir
	}
	if cfg.Host.Shell == "" {
		cfg.Host.Shell = cfg.Service.Shell
	}
	if cfg.Host.Scrollback <= 0 {
		cfg.Host.Scrollback = cfg.Service.ScrollbackMaxBytes
	}

	logger := deps.ServiceDeps.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}

	var host *termhost.Server
	if options.enableHost {
		host, err = termhost.NewServer(cfg.Host, logger)
		if err != nil {
			return nil, err
		}
	}

	var service core.Service
	var agent *agentstream.Coordinator
	if options.enableEngine {
		serviceDeps := deps.ServiceDeps
		serviceDeps.Logger = logger
		if serviceDeps.Local == nil {
			serviceDeps.Local = newLocalTransport(cfg.Host.Dir, logger)
		}

		sinks := make([]core.EventSink, 0, 1+len(deps.EventSinks))
		if serviceDeps.EventSink != nil {
			sinks = append(sinks, serviceDeps.EventSink)
		}
		for _, sink := range deps.EventSinks {
			if sink != nil {
				sinks = append(sinks, sink)
			}
		}
		switch len(sinks) {
		case 0:
		case 1:
			serviceDeps.EventSink = sinks[0]
		default:
			serviceDeps.EventSink = eventFanout{sinks: sinks}
		}

		service, err = core.NewService(cfg.Service, serviceDeps)
		if err != nil {
			return nil, err
		}

		if deps.Runner != nil {
			agent = agentstream.New(deps.Runner, eventbus.New(logger), logger)
		}
	}

	return &compositeServer{
		cfg:     cfg,
		options: options,
		host:    host,
		service: service,
		agent:   agent,
	}, nil
}

type compositeServer struct {
	cfg     ServerConfig
	options serverOptions
	host    *termhost.Server
	service core.Service
	agent   *agentstream.Coordinator
	logger  pslog.Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	errCh   chan error
	started bool
}

func (s *compositeServer) Service() core.Service { return s.service }

func (s *compositeServer) Agent() *agentstream.Coordinator { return s.agent }

func (s *compositeServer) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		pslog.Ctx(ctx).Warn("server start rejected", "reason", "already started")
		return errors.New("server already started")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.errCh = make(chan error, 2)
	s.started = true
	s.logger = pslog.Ctx(s.ctx)
	s.mu.Unlock()

	log := s.logger
	log.Info(
		"server start",
		"host", s.options.enableHost,
		"engine", s.options.enableEngine,
		"host_dir", s.cfg.Host.Dir,
		"state_dir", s.cfg.Service.StateDir,
	)
	if s.options.enableHost && s.host != nil {
		go func() {
			if err := s.host.Run(s.ctx); err != nil {
				log.Error("terminal host failed", "err", err)
				s.errCh <- err
			}
		}()
	}
	return nil
}

func (s *compositeServer) Wait() error {
	s.mu.Lock()
	ctx := s.ctx
	errCh := s.errCh
	started := s.started
	s.mu.Unlock()
	if !started {
		return errors.New("server not started")
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		if err != nil {
			pslog.Ctx(ctx).Error("server stopped", "err", err)
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = s.Stop(stopCtx)
			return err
		}
		return nil
	}
}

func (s *compositeServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel := s.cancel
	started := s.started
	log := s.logger
	s.mu.Unlock()
	if !started {
		return nil
	}
	if log == nil {
		log = pslog.Ctx(context.Background())
	}
	log.Info("server stop requested")
	if cancel != nil {
		cancel()
	}
	if ctx == nil {
		log.Info("server stop completed")
		return nil
	}
	select {
	case <-ctx.Done():
		log.Warn("server stop timed out", "err", ctx.Err())
		return ctx.Err()
	case <-s.ctx.Done():
		log.Info("server stopped")
		return nil
	}
}
