package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/smazurov/framestream/internal/api"
	"github.com/smazurov/framestream/internal/capture"
	"github.com/smazurov/framestream/internal/codec"
	"github.com/smazurov/framestream/internal/config"
	"github.com/smazurov/framestream/internal/events"
	"github.com/smazurov/framestream/internal/logging"
	"github.com/smazurov/framestream/internal/nats"
	"github.com/smazurov/framestream/internal/pipeline"
	"github.com/smazurov/framestream/internal/relay"
	"github.com/smazurov/framestream/internal/scheduler"
	"github.com/smazurov/framestream/internal/sink"
	"github.com/smazurov/framestream/internal/streaming"
	"github.com/smazurov/framestream/internal/worker"
)

const (
	transportWebsocket = "websocket"
	transportNATS      = "nats"

	shutdownTimeout = 3 * time.Second
)

// application owns every long-running component of the server command.
type application struct {
	opts   *Options
	logger *slog.Logger
	bus    *events.Bus

	pool     *worker.Pool
	pipe     *pipeline.Pipeline
	watcher  *config.Watcher[config.StreamerConfig]
	api      *api.Server
	interval time.Duration

	hub        *streaming.Hub
	socket     *streaming.Server
	ingestPool *worker.Pool

	natsServer *nats.Server
	natsURL    string
	publisher  *nats.FramePublisher
	bridge     *nats.ControlBridge

	ctx      context.Context
	cancel   context.CancelFunc
	started  atomic.Bool
	loopDone chan struct{}
	stopOnce sync.Once
}

func newApplication(opts *Options, overridden map[string]bool) (_ *application, err error) {
	ctx, cancel := context.WithCancel(context.Background())
	a := &application{
		ctx:      ctx,
		cancel:   cancel,
		opts:     opts,
		logger:   logging.GetLogger("main"),
		bus:      events.New(),
		interval: time.Duration(opts.StreamerIntervalMs) * time.Millisecond,
		loopDone: make(chan struct{}),
	}

	sourceCfgs, err := config.LoadSources(opts.Config)
	if err != nil {
		return nil, fmt.Errorf("failed to load sources from %s: %w", opts.Config, err)
	}
	sources, err := buildSources(sourceCfgs)
	if err != nil {
		return nil, err
	}

	mode, err := sink.ParseMode(opts.StreamerMode)
	if err != nil {
		return nil, err
	}

	encoder, err := codec.NewEncoder(opts.StreamerFormat, opts.StreamerJPEGQuality)
	if err != nil {
		return nil, err
	}

	a.pool = worker.New(worker.Options{
		Name:     "pipeline",
		MaxSlots: opts.StreamerMaxWorkers,
		Logger:   logging.GetLogger("worker"),
	})

	if err = a.setupNATS(); err != nil {
		return nil, err
	}
	defer func() {
		if err != nil && a.natsServer != nil {
			a.natsServer.Stop()
		}
	}()

	names := make([]string, len(sources))
	for i, src := range sources {
		names[i] = src.Name
	}

	sinkCfg := sink.Config{
		Sources:     names,
		Async:       opts.StreamerAsync,
		DiskOptions: []sink.DiskOption{sink.WithDiskLogger(logging.GetLogger("sink"))},
	}
	switch mode {
	case sink.ModeDisk:
		rootSource, err := sink.ParseRootSource(opts.SaveRoot)
		if err != nil {
			return nil, err
		}
		if sinkCfg.Root, err = sink.ResolveRoot(rootSource, opts.SavePath, sink.DefaultFolder); err != nil {
			return nil, err
		}
	case sink.ModeSocket:
		if sinkCfg.Broadcaster, err = a.setupBroadcaster(); err != nil {
			return nil, err
		}
	}

	writer, err := sink.New(mode, sinkCfg)
	if err != nil {
		return nil, err
	}

	a.pipe, err = pipeline.New(pipeline.Options{
		Sources:  sources,
		Mode:     mode,
		Sink:     writer,
		Encoder:  encoder,
		Capturer: a.buildCapturer(sourceCfgs),
		Async:    opts.StreamerAsync,
		Pool:     a.pool,
		Scheduler: scheduler.Options{
			Delay:   opts.StreamerDelay,
			Iterate: opts.StreamerIterate,
			Quota:   opts.StreamerQuota,
		},
		Enabled:  opts.StreamerEnabled,
		EventBus: a.bus,
		Logger:   logging.GetLogger("pipeline"),
	})
	if err != nil {
		return nil, err
	}

	if a.natsURL != "" {
		a.bridge = nats.NewControlBridge(a.natsURL, a.pipe, logging.GetLogger("nats"))
	}

	a.watcher = config.NewConfigWatcher(opts.Config, config.LoadStreamerConfig, logging.GetLogger("config"))
	initial := config.StreamerConfig{Enabled: opts.StreamerEnabled, Delay: opts.StreamerDelay}
	if fileCfg, loadErr := config.LoadStreamerConfig(opts.Config); loadErr == nil {
		initial = fileCfg
	}
	applier := config.NewStreamerApplier(initial, a.pipe, overridden, logging.GetLogger("config"))
	a.watcher.OnReload(applier.Apply)

	apiOpts := &api.Options{
		AuthUsername:      opts.AuthUsername,
		AuthPassword:      opts.AuthPassword,
		Streamer:          a.pipe,
		EventBus:          a.bus,
		PrometheusHandler: promhttp.Handler(),
	}
	if a.hub != nil {
		apiOpts.Sessions = a.hub
	}
	a.api = api.NewServer(apiOpts)

	return a, nil
}

// buildSources turns the [[sources]] table into pipeline sources.
func buildSources(cfgs []config.SourceConfig) ([]pipeline.Source, error) {
	sources := make([]pipeline.Source, len(cfgs))
	for i, c := range cfgs {
		format, err := codec.ParsePixelFormat(c.Format)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", c.Name, err)
		}
		sources[i] = pipeline.Source{Name: c.Name, Width: c.Width, Height: c.Height, Format: format}
	}
	return sources, nil
}

// buildCapturer routes sources with a device to ffmpeg and renders a test
// pattern for the rest.
func (a *application) buildCapturer(cfgs []config.SourceConfig) capture.Capturer {
	mux := capture.NewMux(capture.NewPattern())

	devices := make(map[string]string)
	for _, c := range cfgs {
		if c.Device != "" {
			devices[c.Name] = c.Device
		}
	}
	if len(devices) == 0 {
		return mux
	}

	device := capture.NewDevice(capture.DeviceOptions{
		FFmpegPath: a.opts.CaptureFFmpeg,
		Devices:    devices,
		Timeout:    time.Duration(a.opts.CaptureTimeoutMs) * time.Millisecond,
		Logger:     logging.GetLogger("capture"),
	})
	for name := range devices {
		mux.Handle(name, device)
	}
	return mux
}

// setupNATS starts the embedded broker when requested and resolves the URL
// used by the frame publisher and control bridge.
func (a *application) setupNATS() error {
	a.natsURL = a.opts.NATSURL
	if a.natsURL != "" || !a.opts.NATSEmbedded {
		return nil
	}

	opts := nats.DefaultServerOptions()
	opts.Port = a.opts.NATSPort
	opts.Logger = logging.GetLogger("nats")
	a.natsServer = nats.NewServer(opts)
	if err := a.natsServer.Start(); err != nil {
		return err
	}
	a.natsURL = a.natsServer.ClientURL()
	return nil
}

// setupBroadcaster builds the transport socket mode writes to.
func (a *application) setupBroadcaster() (sink.Broadcaster, error) {
	switch a.opts.SocketTransport {
	case transportNATS:
		if a.natsURL == "" {
			return nil, errors.New("nats transport needs nats.url or nats.embedded")
		}
		a.publisher = nats.NewFramePublisher(a.natsURL, a.opts.NATSChannel, logging.GetLogger("nats"))
		return a.publisher, nil

	case transportWebsocket, "":
		logger := logging.GetLogger("streaming")
		writeTimeout := time.Duration(a.opts.SocketWriteTimeout) * time.Millisecond
		a.hub = streaming.NewHub(writeTimeout, a.bus, logger)

		serverOpts := streaming.ServerOptions{
			Addr:         fmt.Sprintf(":%d", a.opts.SocketPort),
			Path:         a.opts.SocketPath,
			WriteTimeout: writeTimeout,
			Logger:       logger,
		}
		if a.opts.SocketIngest {
			handler, err := a.ingestHandler()
			if err != nil {
				return nil, err
			}
			serverOpts.OnMessage = handler
		}
		a.socket = streaming.NewServer(a.hub, serverOpts)
		return a.hub, nil

	default:
		return nil, fmt.Errorf("unknown socket transport %q", a.opts.SocketTransport)
	}
}

// ingestHandler saves frames pushed by websocket peers under the relay root.
func (a *application) ingestHandler() (streaming.MessageHandler, error) {
	rootSource, err := sink.ParseRootSource(a.opts.SaveRoot)
	if err != nil {
		return nil, err
	}
	root, err := sink.ResolveRoot(rootSource, a.opts.SavePath, relay.DefaultFolder)
	if err != nil {
		return nil, err
	}

	a.ingestPool = worker.New(worker.Options{Name: "ingest", Logger: logging.GetLogger("worker")})
	r, err := relay.New(relay.Options{
		Root:     root,
		Verify:   a.opts.SocketIngestVerify,
		Pool:     a.ingestPool,
		EventBus: a.bus,
		Logger:   logging.GetLogger("relay"),
	})
	if err != nil {
		return nil, err
	}
	return r.HandleSession, nil
}

// run starts the transports, the config watcher and the coordination loop,
// then serves the API until stop is called.
func (a *application) run() error {
	if a.socket != nil {
		if err := a.socket.Start(); err != nil {
			return err
		}
	}
	if a.publisher != nil {
		if err := a.publisher.Connect(); err != nil {
			// Frames are dropped until the broker is reachable.
			a.logger.Warn("NATS frame publisher not connected", "error", err)
		}
	}
	if a.bridge != nil {
		if err := a.bridge.Start(); err != nil {
			a.logger.Warn("NATS control bridge not started", "error", err)
		}
	}
	if err := a.watcher.Start(); err != nil {
		a.logger.Warn("Config hot reload disabled", "error", err)
	}

	a.started.Store(true)
	go func() {
		defer close(a.loopDone)
		if err := a.pipe.Run(a.ctx, a.interval); err != nil {
			a.logger.Error("Coordination loop failed", "error", err)
		}
	}()

	if err := a.api.Start(a.opts.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// stop tears everything down in reverse dependency order. Safe to call more
// than once.
func (a *application) stop() {
	a.stopOnce.Do(func() {
		if err := a.api.Stop(); err != nil {
			a.logger.Error("Error stopping API server", "error", err)
		}
		if err := a.watcher.Stop(); err != nil {
			a.logger.Warn("Error stopping config watcher", "error", err)
		}

		a.cancel()
		if a.started.Load() {
			<-a.loopDone
		}

		a.pool.ShutdownAll()
		if !a.pool.WaitTimeout(shutdownTimeout) {
			a.logger.Warn("Pipeline workers still running after shutdown timeout")
		}
		if a.ingestPool != nil {
			a.ingestPool.ShutdownAll()
			a.ingestPool.WaitTimeout(shutdownTimeout)
		}

		if a.socket != nil {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			if err := a.socket.Stop(ctx); err != nil {
				a.logger.Warn("Error stopping socket server", "error", err)
			}
			cancel()
		}
		if a.bridge != nil {
			a.bridge.Stop()
		}
		if a.publisher != nil {
			a.publisher.Close()
		}
		if a.natsServer != nil {
			a.natsServer.Stop()
		}
	})
}
