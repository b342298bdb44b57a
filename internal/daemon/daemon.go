package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/zlx-network/swarmd/internal/api"
	"github.com/zlx-network/swarmd/internal/domain"
	"github.com/zlx-network/swarmd/internal/health"
	"github.com/zlx-network/swarmd/internal/infra/sqlite"
	"github.com/zlx-network/swarmd/internal/security"
	"github.com/zlx-network/swarmd/internal/signaling"
)

// Daemon is the swarmd runtime. It wires together all services.
type Daemon struct {
	Config  Config
	Hub     *signaling.Hub
	Server  *api.Server
	Health  *health.Checker
	Certs   *security.CertReloader // nil when serving plain HTTP
	DB      *sqlite.DB             // nil when history is disabled
	History *sqlite.History

	logFile *os.File
	cancel  context.CancelFunc
}

// New creates and initializes a Daemon from the config file.
func New(version string) (*Daemon, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	return NewWithConfig(cfg, version)
}

// NewWithConfig creates a Daemon with the given configuration. Certificate
// and database failures are returned here, before anything listens.
func NewWithConfig(cfg Config, version string) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	d := &Daemon{Config: cfg}
	if err := d.setupLogging(); err != nil {
		return nil, err
	}

	if cfg.TLS.CertFile != "" {
		certs, err := security.NewCertReloader(cfg.TLS.CertFile, cfg.TLS.KeyFile, cfg.TLS.Passphrase)
		if err != nil {
			d.Close()
			return nil, err
		}
		d.Certs = certs
	}

	d.Hub = signaling.NewHub(signaling.Config{
		HeartbeatInterval: parseDuration(cfg.Liveness.Interval, 30*time.Second),
		Debug:             cfg.Logging.Level == "debug",
	})

	d.Server = api.NewServer(d.Hub, api.Config{
		RedirectURL:     cfg.Server.RedirectURL,
		AccessKeyLength: cfg.Auth.AccessKeyLength,
		KeyQueryParam:   cfg.Auth.QueryParam,
		ReadLimit:       cfg.Server.ReadLimitBytes,
		WriteTimeout:    parseDuration(cfg.Server.WriteTimeout, 10*time.Second),
		Version:         version,
	})
	if cfg.Telemetry.Prometheus {
		d.Server.EnableMetrics()
	}

	checks := []health.Check{health.DirectoryCheck(d.Hub)}

	if cfg.History.Enabled {
		db, err := sqlite.Open(swarmdHome())
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("open database: %w", err)
		}
		d.DB = db
		if n, err := db.CloseAbandoned(time.Now(), domain.CauseShutdown); err != nil {
			log.Printf("[daemon] close abandoned sessions: %v", err)
		} else if n > 0 {
			log.Printf("[daemon] marked %d sessions from a previous run as closed", n)
		}
		_ = db.SetNodeInfo("version", version)
		_ = db.SetNodeInfo("last_start", time.Now().UTC().Format(time.RFC3339))

		d.History = sqlite.NewHistory(db)
		d.Hub.SetRecorder(d.History)
		d.Server.SetHistory(d.History)
		checks = append(checks, health.SQLiteCheck(db))
	}

	if d.Certs != nil {
		checks = append(checks, health.CertificateCheck(
			d.Certs.NotAfter,
			parseDuration(cfg.Health.CertExpiry, 7*24*time.Hour),
			d.Certs.Reload,
		))
	}

	d.Health = health.NewChecker(parseDuration(cfg.Health.Interval, 60*time.Second), checks...)
	d.Server.SetHealth(d.Health)

	return d, nil
}

// Addr returns the configured listen address.
func (d *Daemon) Addr() string {
	return net.JoinHostPort(d.Config.Server.Host, fmt.Sprint(d.Config.Server.Port))
}

// Serve starts the HTTP(S) server and blocks until shutdown. A bind failure
// is returned before any session is accepted.
func (d *Daemon) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", d.Addr())
	if err != nil {
		return fmt.Errorf("listen %s: %w", d.Addr(), err)
	}
	return d.ServeListener(ctx, ln)
}

// ServeListener serves on ln until ctx is done or SIGINT/SIGTERM arrives.
func (d *Daemon) ServeListener(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	go d.Health.Run(ctx)

	if d.Certs != nil && d.Config.TLS.Watch {
		if err := d.Certs.Watch(ctx); err != nil {
			log.Printf("[daemon] certificate watch disabled: %v", err)
		}
	}
	if d.DB != nil {
		go d.pruneLoop(ctx, parseDuration(d.Config.History.Retention, 7*24*time.Hour))
	}

	httpServer := &http.Server{
		Handler:           d.Server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	if d.Certs != nil {
		httpServer.TLSConfig = d.Certs.TLSConfig()
	}

	// Graceful shutdown on signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		select {
		case <-sigCh:
		case <-ctx.Done():
		}
		log.Printf("[daemon] shutting down")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		// Stop accepting, then end live sessions so their close is
		// recorded before the ledger goes away.
		_ = httpServer.Shutdown(shutdownCtx)
		d.Hub.Shutdown()
		cancel()
		if d.DB != nil {
			_ = d.DB.Close()
		}
	}()

	scheme := "http"
	if d.Certs != nil {
		scheme = "https"
	}
	log.Printf("[daemon] swarmd serving on %s://%s", scheme, ln.Addr())
	if d.Config.Telemetry.Prometheus {
		log.Printf("[daemon]   metrics: %s://%s/metrics", scheme, ln.Addr())
	}

	var err error
	if d.Certs != nil {
		err = httpServer.ServeTLS(ln, "", "")
	} else {
		err = httpServer.Serve(ln)
	}
	if !errors.Is(err, http.ErrServerClosed) {
		cancel()
		<-stopped
		return err
	}
	<-stopped
	return nil
}

// pruneLoop deletes history older than retention once an hour.
func (d *Daemon) pruneLoop(ctx context.Context, retention time.Duration) {
	prune := func() {
		n, err := d.DB.PruneSessions(time.Now().Add(-retention))
		if err != nil {
			log.Printf("[daemon] prune history: %v", err)
			return
		}
		if n > 0 {
			log.Printf("[daemon] pruned %d sessions older than %s", n, retention)
		}
	}
	prune()

	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prune()
		}
	}
}

// setupLogging tees the standard logger into the configured file.
func (d *Daemon) setupLogging() error {
	if d.Config.Logging.File == "" {
		return nil
	}
	f, err := os.OpenFile(d.Config.Logging.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	d.logFile = f
	log.SetOutput(io.MultiWriter(os.Stderr, f))
	return nil
}

// Close shuts down all daemon resources.
func (d *Daemon) Close() {
	if d.cancel != nil {
		d.cancel()
	}
	if d.Hub != nil {
		d.Hub.Shutdown()
	}
	if d.DB != nil {
		_ = d.DB.Close()
	}
	if d.logFile != nil {
		log.SetOutput(os.Stderr)
		_ = d.logFile.Close()
	}
}
