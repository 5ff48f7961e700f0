// ABOUTME: Gateway orchestrator that builds every relay component once and runs them
// ABOUTME: Owns the HTTP server, Matrix sync loop, phone relay subscription, and shutdown

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"tailscale.com/ipn/ipnstate"
	"tailscale.com/tsnet"

	"github.com/2389/smsrelay/internal/auth"
	"github.com/2389/smsrelay/internal/chat"
	"github.com/2389/smsrelay/internal/command"
	"github.com/2389/smsrelay/internal/config"
	"github.com/2389/smsrelay/internal/dedupe"
	"github.com/2389/smsrelay/internal/discovery"
	"github.com/2389/smsrelay/internal/matrix"
	"github.com/2389/smsrelay/internal/relay"
	"github.com/2389/smsrelay/internal/store"
	"github.com/2389/smsrelay/internal/threads"
	"github.com/2389/smsrelay/internal/transport"
)

// ChatListener delivers chat-origin messages until ctx is cancelled.
type ChatListener interface {
	Listen(ctx context.Context, handler chat.Handler) error
}

// InboundSource delivers telephony-origin messages pushed by the phone relay.
type InboundSource interface {
	Subscribe(ctx context.Context) (*transport.Subscription, error)
}

// Components are the collaborators the gateway is assembled from. New
// builds them from config; tests supply doubles.
type Components struct {
	Store    store.Store
	Sender   transport.Sender
	Surface  chat.Surface  // nil when no chat workspace is configured
	Listener ChatListener  // nil when no chat workspace is configured
	Inbound  InboundSource // nil unless the phone relay provider is used
}

// Gateway wires the relay engine to its event sources.
type Gateway struct {
	config     *config.Config
	store      store.Store
	registry   *threads.Registry
	engine     *relay.Engine
	router     *command.Router
	surface    chat.Surface
	listener   ChatListener
	inbound    InboundSource
	sender     transport.Sender
	dedupe     *dedupe.Cache
	verifier   *auth.JWTVerifier
	httpServer *http.Server
	tsnet      *tsnet.Server
	logger     *slog.Logger

	// ready flips once thread bindings are loaded.
	ready atomic.Bool
}

// New opens the store, connects the configured transport and chat
// workspace, and assembles the gateway.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}

	comps := Components{Store: s}
	comps.Sender, comps.Inbound, err = buildTransport(cfg, logger)
	if err != nil {
		s.Close()
		return nil, err
	}

	if cfg.Matrix.Enabled {
		ms, err := matrix.New(matrix.Config{
			Homeserver:   cfg.Matrix.Homeserver,
			UserID:       cfg.Matrix.UserID,
			AccessToken:  cfg.Matrix.AccessToken,
			AllowedRooms: cfg.Matrix.AllowedRooms,
			AllowedUsers: cfg.Matrix.AllowedUsers,
		}, logger)
		if err != nil {
			s.Close()
			return nil, err
		}
		comps.Surface = ms
		comps.Listener = ms
	} else {
		logger.Warn("matrix disabled: inbound texts will be dropped and commands are unavailable")
	}

	return Assemble(cfg, comps, logger)
}

// buildTransport returns the outbound sender and, for the phone relay, the
// inbound source.
func buildTransport(cfg *config.Config, logger *slog.Logger) (transport.Sender, InboundSource, error) {
	tc := cfg.Transport
	switch tc.Provider {
	case config.ProviderTwilio:
		s, err := transport.NewTwilioSender(transport.TwilioConfig{
			AccountSID: tc.Twilio.AccountSID,
			AuthToken:  tc.Twilio.AuthToken,
			From:       tc.Twilio.From,
			BaseURL:    tc.Twilio.BaseURL,
			Timeout:    tc.Timeout,
		})
		return s, nil, err
	case config.ProviderRelay:
		c, err := transport.NewRelayClient(&redis.Options{
			Addr:         tc.Relay.RedisAddr,
			Password:     tc.Relay.RedisPassword,
			DB:           tc.Relay.RedisDB,
			ReadTimeout:  tc.Timeout,
			WriteTimeout: tc.Timeout,
		}, transport.RelayConfig{
			OutboundKey:    tc.Relay.OutboundKey,
			InboundChannel: tc.Relay.InboundChannel,
		})
		if err != nil {
			return nil, nil, err
		}
		return c, c, nil
	default:
		return transport.NewLogSender(logger), nil, nil
	}
}

// Assemble builds the engine, router, and HTTP handlers around comps.
func Assemble(cfg *config.Config, comps Components, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if comps.Store == nil || comps.Sender == nil {
		return nil, errors.New("gateway requires a store and a sender")
	}

	registry := threads.New(comps.Store, logger)
	engine := relay.New(relay.Deps{
		Store:    comps.Store,
		Registry: registry,
		Surface:  comps.Surface,
		Sender:   comps.Sender,
		Policy: discovery.Policy{
			Reserved: cfg.Relay.ReservedAliases,
			Fallback: cfg.Relay.FallbackAliases,
		},
	}, logger)

	gw := &Gateway{
		config:   cfg,
		store:    comps.Store,
		registry: registry,
		engine:   engine,
		router:   command.New(comps.Store, engine, comps.Surface, cfg.Relay.CommandPrefix, logger),
		surface:  comps.Surface,
		listener: comps.Listener,
		inbound:  comps.Inbound,
		sender:   comps.Sender,
		dedupe:   dedupe.New(cfg.Dedupe.TTL, cfg.Dedupe.MaxSize),
		logger:   logger.With("component", "gateway"),
	}

	if cfg.Auth.JWTSecret != "" {
		v, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
		if err != nil {
			return nil, fmt.Errorf("creating JWT verifier: %w", err)
		}
		gw.verifier = v
	} else {
		gw.logger.Warn("REST API disabled - no jwt_secret configured")
	}

	gw.httpServer = &http.Server{
		Handler:           gw.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return gw, nil
}

// Handler returns the HTTP handler, for tests and embedding.
func (g *Gateway) Handler() http.Handler {
	return g.httpServer.Handler
}

// Start loads thread bindings into the registry. A failed load leaves the
// cache empty; the only cost is an unnecessary thread on the next message.
func (g *Gateway) Start(ctx context.Context) {
	n, err := g.registry.LoadAll(ctx)
	if err != nil {
		g.logger.Warn("loading thread bindings failed, starting with empty cache", "error", err)
	} else {
		g.logger.Info("thread bindings loaded", "phones", n)
	}
	g.ready.Store(true)
}

// Run serves until ctx is cancelled or a component fails, then shuts down.
func (g *Gateway) Run(ctx context.Context) error {
	g.Start(ctx)

	ln, err := g.setupListener(ctx)
	if err != nil {
		g.closeComponents()
		return err
	}

	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 3)
	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()
	go g.dedupe.Run(loopCtx.Done())

	if g.listener != nil {
		go func() {
			if err := g.listener.Listen(loopCtx, g.HandleChatMessage); err != nil {
				errCh <- err
			}
		}()
	}
	if g.inbound != nil {
		sub, err := g.inbound.Subscribe(loopCtx)
		if err != nil {
			errCh <- fmt.Errorf("phone relay: %w", err)
		} else {
			go g.consumeRelay(loopCtx, sub)
		}
	}

	serverErr := g.waitForShutdownSignal(ctx, errCh)
	cancel()
	shutdownErr := g.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

func (g *Gateway) waitForShutdownSignal(ctx context.Context, errCh chan error) error {
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
		return nil
	case err := <-errCh:
		g.logger.Error("component failed", "error", err)
		return err
	}
}

// gracefulShutdown uses a fresh context since the run context is already done.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// consumeRelay feeds phone relay texts to the engine until the
// subscription ends.
func (g *Gateway) consumeRelay(ctx context.Context, sub *transport.Subscription) {
	defer sub.Close()
	g.logger.Info("phone relay subscription active")
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := g.HandleInboundSMS(ctx, "relay", msg); err != nil {
				g.logger.Error("relaying inbound text failed", "from", msg.From, "error", err)
			}
		case err, ok := <-sub.Errors():
			if !ok {
				return
			}
			g.logger.Warn("discarding malformed relay message", "error", err)
		}
	}
}

func (g *Gateway) setupListener(ctx context.Context) (net.Listener, error) {
	if g.config.Tailscale.Enabled {
		if g.config.Server.HTTPAddr != "" {
			g.logger.Warn("tailscale enabled, ignoring server.http_addr", "http_addr", g.config.Server.HTTPAddr)
		}
		return g.setupTailscaleListener(ctx)
	}
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", g.config.Server.HTTPAddr, err)
	}
	return ln, nil
}

// resolveTailscaleStateDir returns the state directory, using default if not configured.
func resolveTailscaleStateDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory for tailscale state (set tailscale.state_dir explicitly): %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "smsrelay", "tailscale"), nil
}

// resolveTailscaleAuthKey returns the auth key from config or TS_AUTHKEY.
func resolveTailscaleAuthKey(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	if k := os.Getenv("TS_AUTHKEY"); k != "" {
		return k, nil
	}
	return "", errors.New("tailscale auth key required: set tailscale.auth_key or TS_AUTHKEY")
}

func (g *Gateway) setupTailscaleListener(ctx context.Context) (net.Listener, error) {
	tsCfg := g.config.Tailscale

	stateDir, err := resolveTailscaleStateDir(tsCfg.StateDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(stateDir, 0o700); err != nil {
		return nil, fmt.Errorf("creating tailscale state dir: %w", err)
	}
	authKey, err := resolveTailscaleAuthKey(tsCfg.AuthKey)
	if err != nil {
		return nil, err
	}

	g.tsnet = &tsnet.Server{
		Hostname:  tsCfg.Hostname,
		Dir:       stateDir,
		Ephemeral: tsCfg.Ephemeral,
		AuthKey:   authKey,
	}

	g.logger.Info("starting tailscale node", "hostname", tsCfg.Hostname, "state_dir", stateDir, "ephemeral", tsCfg.Ephemeral)
	status, err := g.tsnet.Up(ctx)
	if err != nil {
		_ = g.tsnet.Close()
		return nil, fmt.Errorf("starting tailscale: %w", err)
	}
	g.logTailscaleStatus(tsCfg.Hostname, status)

	ln, err := g.tsnet.Listen("tcp", ":80")
	if err != nil {
		_ = g.tsnet.Close()
		return nil, fmt.Errorf("listening on tailscale HTTP port: %w", err)
	}
	return ln, nil
}

func (g *Gateway) logTailscaleStatus(hostname string, status *ipnstate.Status) {
	if status == nil || status.Self == nil {
		g.logger.Info("tailscale node up", "hostname", hostname)
		return
	}
	g.logger.Info("tailscale node up",
		"hostname", hostname,
		"dns_name", status.Self.DNSName,
		"ips", status.TailscaleIPs,
	)
}

func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// closeComponents releases everything but the HTTP server.
func (g *Gateway) closeComponents() []error {
	var errs []error
	g.dedupe.Close()
	if c, ok := g.sender.(interface{ Close() error }); ok {
		errs = appendCloseError(errs, "transport close", c.Close())
	}
	if g.tsnet != nil {
		errs = appendCloseError(errs, "tailscale shutdown", g.tsnet.Close())
	}
	return appendCloseError(errs, "store close", g.store.Close())
}

// Shutdown gracefully stops the HTTP server and releases resources.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))
	errs = append(errs, g.closeComponents()...)

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}
	return nil
}
