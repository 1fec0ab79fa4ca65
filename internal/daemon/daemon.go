package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/gofrs/flock"

	"sitegrade/internal/api"
	"sitegrade/internal/logging"
	"sitegrade/internal/workflow"
)

// Daemon serves the API over a Runtime and enforces single-instance execution.
type Daemon struct {
	runtime *Runtime
	logger  *slog.Logger
	server  *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	Workflow     workflow.StatusSummary
	Database     string
	LockFilePath string
	APIAddress   string
}

// New constructs a daemon over rt.
func New(rt *Runtime) (*Daemon, error) {
	if rt == nil || rt.Config == nil || rt.Manager == nil {
		return nil, errors.New("daemon requires a runtime with config and workflow manager")
	}
	logger := logging.NewComponentLogger(rt.Logger, "daemon")
	handler := api.New(rt.Manager, rt.Ledger, rt.Store, api.Options{
		Token:  rt.Config.API.Token,
		Logger: rt.Logger,
	}).Handler()

	lockPath := rt.Config.LockPath()
	return &Daemon{
		runtime:  rt,
		logger:   logger,
		server:   newAPIServer(rt.Config.API.Bind, handler, logger),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the daemon lock, launches the workflow manager and begins
// serving the API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another sitegrade daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if err := d.runtime.Manager.Start(d.ctx); err != nil {
		d.abortStart()
		return fmt.Errorf("start workflow: %w", err)
	}
	if err := d.server.start(d.ctx); err != nil {
		d.runtime.Manager.Stop()
		d.abortStart()
		return err
	}

	d.running.Store(true)
	d.logger.Info("sitegrade daemon started",
		logging.String("lock", d.lockPath),
		logging.String("api", d.server.addr()),
		logging.String("database", d.runtime.Store.Location()),
	)
	return nil
}

func (d *Daemon) abortStart() {
	_ = d.lock.Unlock()
	d.cancel()
	d.ctx = nil
	d.cancel = nil
}

// Stop stops serving, abandons live sessions and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.server.stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.runtime.Manager.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("sitegrade daemon stopped")
}

// Close stops the daemon and releases the runtime.
func (d *Daemon) Close() error {
	d.Stop()
	return d.runtime.Close()
}

// Addr returns the API listen address once started.
func (d *Daemon) Addr() string {
	return d.server.addr()
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	return Status{
		Running:      d.running.Load(),
		Workflow:     d.runtime.Manager.Status(ctx),
		Database:     d.runtime.Store.Location(),
		LockFilePath: d.lockPath,
		APIAddress:   d.server.addr(),
	}
}
