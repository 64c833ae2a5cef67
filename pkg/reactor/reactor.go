// Package reactor runs the action dispatcher as a daemon: an hsu-core gRPC
// control server with the standard health service, an optional Prometheus
// listener and signal-driven shutdown.
package reactor

import (
	"context"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	corecontrol "github.com/core-tools/hsu-core/pkg/control"
	coredomain "github.com/core-tools/hsu-core/pkg/domain"
	corelogging "github.com/core-tools/hsu-core/pkg/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/core-tools/hsu-reactor/pkg/actions"
	"github.com/core-tools/hsu-reactor/pkg/domain"
	"github.com/core-tools/hsu-reactor/pkg/errors"
	"github.com/core-tools/hsu-reactor/pkg/logging"
	"github.com/core-tools/hsu-reactor/pkg/process"
	"github.com/core-tools/hsu-reactor/pkg/processfile"
	"github.com/core-tools/hsu-reactor/pkg/systemd"
)

type ReactorOptions struct {
	Port                 int
	MetricsListen        string
	OutcomeMetric        string
	ForceShutdownTimeout time.Duration
	EscapeUnitNames      bool
	Runner               process.RunnerOptions
	RunFiles             *processfile.ProcessFileConfig
}

// RunFileName is the base name of the daemon's PID and port files
const RunFileName = "reactor"

// ReactorState represents the current state of the reactor daemon
type ReactorState string

const (
	// ReactorStateNotStarted is the initial state before Start() is called
	ReactorStateNotStarted ReactorState = "not_started"

	// ReactorStateRunning means the reactor accepts invocations
	ReactorStateRunning ReactorState = "running"

	// ReactorStateStopping means the reactor is shutting down
	ReactorStateStopping ReactorState = "stopping"

	// ReactorStateStopped means the reactor has stopped
	ReactorStateStopped ReactorState = "stopped"
)

type Reactor struct {
	options       ReactorOptions
	server        corecontrol.Server
	health        *health.Server
	registry      *prometheus.Registry
	dispatcher    *actions.Dispatcher
	metricsServer *http.Server
	metricsAddr   net.Addr
	runFiles      *processfile.ProcessFileManager
	group         *errgroup.Group
	logger        logging.Logger
	state         ReactorState
	mutex         sync.Mutex
}

var _ domain.Contract = (*Reactor)(nil)

func NewReactor(options ReactorOptions, reactorActions []actions.Action, coreLogger corelogging.Logger, logger logging.Logger) (*Reactor, error) {
	// Create gRPC server
	serverOptions := corecontrol.ServerOptions{
		Port: options.Port,
	}

	server, err := corecontrol.NewServer(serverOptions, coreLogger)
	if err != nil {
		return nil, errors.NewInternalError("failed to create server", err)
	}

	// Register core services
	coreHandler := coredomain.NewDefaultHandler(coreLogger)
	corecontrol.RegisterGRPCServerHandler(server.GRPC(), coreHandler, coreLogger)

	reactor, err := newReactor(options, reactorActions, logger)
	if err != nil {
		return nil, err
	}
	reactor.server = server

	// Register health service
	healthpb.RegisterHealthServer(server.GRPC(), reactor.health)

	return reactor, nil
}

// newReactor builds everything except the control server
func newReactor(options ReactorOptions, reactorActions []actions.Action, logger logging.Logger) (*Reactor, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	deps := actions.Dependencies{
		System:        systemd.NewClient(systemd.ClientOptions{EscapeUnitNames: options.EscapeUnitNames}, logger),
		Runner:        process.NewRunner(options.Runner, logger),
		Registerer:    registry,
		OutcomeAction: options.OutcomeMetric,
	}

	dispatcher, err := actions.NewDispatcher(reactorActions, deps, logger)
	if err != nil {
		return nil, errors.NewValidationError("failed to create dispatcher", err)
	}

	var runFiles *processfile.ProcessFileManager
	if options.RunFiles != nil {
		runFiles = processfile.NewProcessFileManager(*options.RunFiles, logger)
	}

	healthServer := health.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)

	return &Reactor{
		options:    options,
		health:     healthServer,
		registry:   registry,
		dispatcher: dispatcher,
		runFiles:   runFiles,
		group:      &errgroup.Group{},
		logger:     logger,
		state:      ReactorStateNotStarted,
	}, nil
}

func (r *Reactor) Start(ctx context.Context) error {
	r.logger.Infof("Starting reactor...")

	if r.GetState() != ReactorStateNotStarted {
		return errors.NewValidationError("reactor has already been started", nil).WithContext("state", string(r.GetState()))
	}

	if r.options.MetricsListen != "" {
		if err := r.startMetricsListener(); err != nil {
			return err
		}
	}

	// Start the server
	if r.server != nil {
		r.server.Start(ctx)
	}

	if r.runFiles != nil {
		if err := r.writeRunFiles(); err != nil {
			r.logger.Warnf("Unable to write run files: %v", err)
		}
	}

	r.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	r.setState(ReactorStateRunning)

	r.logger.Infof("Reactor started, actions: %v", r.dispatcher.Names())
	return nil
}

func (r *Reactor) startMetricsListener() error {
	listener, err := net.Listen("tcp", r.options.MetricsListen)
	if err != nil {
		return errors.NewNetworkError("failed to listen for metrics", err).WithContext("address", r.options.MetricsListen)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{}))

	r.metricsServer = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	r.metricsAddr = listener.Addr()

	server := r.metricsServer
	r.group.Go(func() error {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			r.logger.Errorf("Metrics listener failed: %v", err)
			return errors.NewNetworkError("metrics listener failed", err)
		}
		return nil
	})

	r.logger.Infof("Serving metrics on %s", listener.Addr())
	return nil
}

func (r *Reactor) Stop(ctx context.Context) error {
	r.logger.Infof("Stopping reactor...")

	// Transition to stopping state
	r.setState(ReactorStateStopping)
	r.health.Shutdown()

	if ctx == nil {
		ctx = context.Background()
	}

	forcedShutdownTimeout := r.options.ForceShutdownTimeout
	if forcedShutdownTimeout <= 0 {
		forcedShutdownTimeout = 30 * time.Second // Timeout super-default
	}

	ctx, cancel := context.WithTimeout(ctx, forcedShutdownTimeout)
	defer cancel()

	// Stop server
	if r.server != nil {
		r.server.Shutdown(ctx)
	}

	collection := errors.NewErrorCollection()

	if r.metricsServer != nil {
		if err := r.metricsServer.Shutdown(ctx); err != nil {
			collection.Add(errors.NewTimeoutError("failed to shut down metrics listener", err))
		}
	}
	collection.Add(r.group.Wait())
	collection.Add(r.dispatcher.Close())
	if r.runFiles != nil {
		collection.Add(r.runFiles.Remove(RunFileName))
	}

	r.setState(ReactorStateStopped)

	r.logger.Infof("Reactor stopped")
	return collection.ToError()
}

func (r *Reactor) writeRunFiles() error {
	if err := r.runFiles.WritePIDFile(RunFileName, os.Getpid()); err != nil {
		return err
	}
	return r.runFiles.WritePortFile(RunFileName, r.options.Port)
}

// Invoke runs one configured action. The error only reports that the
// invocation could not be attempted; the action outcome is the boolean.
func (r *Reactor) Invoke(ctx context.Context, action string, payload string) (bool, error) {
	if state := r.GetState(); state != ReactorStateRunning {
		return false, errors.NewValidationError("reactor must be running to invoke actions", nil).
			WithContext("state", string(state))
	}
	if _, ok := r.dispatcher.Lookup(action); !ok {
		return false, errors.NewNotFoundError("action not found", nil).WithContext("action", action)
	}
	return r.dispatcher.Invoke(ctx, action, payload), nil
}

// MetricsAddr returns the bound Prometheus listener address, or nil when disabled
func (r *Reactor) MetricsAddr() net.Addr {
	return r.metricsAddr
}

func (r *Reactor) GetState() ReactorState {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.state
}

func (r *Reactor) setState(state ReactorState) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.state = state
}
