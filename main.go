package main

import (
	"log/slog"
	"os"
	"sync"

	"github.com/danielgtaylor/huma/v2/humacli"

	"github.com/smazurov/framestream/cmd"
	"github.com/smazurov/framestream/internal/config"
	"github.com/smazurov/framestream/internal/logging"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"config.toml"`

	// Server settings
	Port string `help:"HTTP API address" short:"p" default:":8090" toml:"server.port" env:"SERVER_PORT"`

	// Streamer settings
	StreamerEnabled     bool   `help:"Produce frames at startup" default:"true" toml:"streamer.enabled" env:"STREAMER_ENABLED"`
	StreamerMode        string `help:"Sink mode (disk, socket, none)" default:"disk" toml:"streamer.mode" env:"STREAMER_MODE"`
	StreamerAsync       bool   `help:"Encode and dispatch on the worker pool" default:"false" toml:"streamer.async" env:"STREAMER_ASYNC"`
	StreamerIntervalMs  int    `help:"Milliseconds between capture events" default:"100" toml:"streamer.interval_ms" env:"STREAMER_INTERVAL_MS"`
	StreamerDelay       int    `help:"Capture events skipped between frames of one source" default:"0" toml:"streamer.delay" env:"STREAMER_DELAY"`
	StreamerIterate     bool   `help:"Rotate through sources instead of capturing all" default:"false" toml:"streamer.iterate" env:"STREAMER_ITERATE"`
	StreamerQuota       int    `help:"Sources active at once when iterating" default:"1" toml:"streamer.quota" env:"STREAMER_QUOTA"`
	StreamerFormat      string `help:"Image format (png, jpeg)" default:"png" toml:"streamer.format" env:"STREAMER_FORMAT"`
	StreamerJPEGQuality int    `help:"JPEG quality 1-100" default:"90" toml:"streamer.jpeg_quality" env:"STREAMER_JPEG_QUALITY"`
	StreamerMaxWorkers  int    `help:"Worker pool slot limit, 0 for unbounded" default:"0" toml:"streamer.max_workers" env:"STREAMER_MAX_WORKERS"`

	// Save settings
	SaveRoot string `help:"Save root source (data, explicit)" default:"data" toml:"save.root" env:"SAVE_ROOT"`
	SavePath string `help:"Save path when save root is explicit" default:"" toml:"save.path" env:"SAVE_PATH"`

	// Socket settings
	SocketTransport    string `help:"Frame transport in socket mode (websocket, nats)" default:"websocket" toml:"socket.transport" env:"SOCKET_TRANSPORT"`
	SocketPort         int    `help:"Websocket port" default:"4649" toml:"socket.port" env:"SOCKET_PORT"`
	SocketPath         string `help:"Websocket service path" default:"/Image" toml:"socket.path" env:"SOCKET_PATH"`
	SocketWriteTimeout int    `help:"Per-session write timeout in milliseconds" default:"5000" toml:"socket.write_timeout_ms" env:"SOCKET_WRITE_TIMEOUT_MS"`
	SocketIngest       bool   `help:"Save frames sent by websocket peers" default:"false" toml:"socket.ingest" env:"SOCKET_INGEST"`
	SocketIngestVerify bool   `help:"Reject ingested payloads that are not PNG or JPEG images" default:"false" toml:"socket.ingest_verify" env:"SOCKET_INGEST_VERIFY"`

	// NATS settings
	NATSEmbedded bool   `help:"Run an embedded NATS server" default:"false" toml:"nats.embedded" env:"NATS_EMBEDDED"`
	NATSPort     int    `help:"Embedded NATS port" default:"4222" toml:"nats.port" env:"NATS_PORT"`
	NATSURL      string `help:"External NATS URL, overrides the embedded server" default:"" toml:"nats.url" env:"NATS_URL"`
	NATSChannel  string `help:"Frame channel name" default:"Image" toml:"nats.channel" env:"NATS_CHANNEL"`

	// Capture settings
	CaptureFFmpeg    string `help:"ffmpeg binary for device sources" default:"ffmpeg" toml:"capture.ffmpeg" env:"CAPTURE_FFMPEG"`
	CaptureTimeoutMs int    `help:"Single device grab timeout in milliseconds" default:"10000" toml:"capture.timeout_ms" env:"CAPTURE_TIMEOUT_MS"`

	// Auth settings
	AuthUsername string `help:"Basic auth username" default:"admin" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"password" toml:"auth.password" env:"AUTH_PASSWORD"`

	// Logging settings
	LoggingLevel     string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat    string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingPipeline  string `help:"Pipeline logging level" default:"info" toml:"logging.pipeline" env:"LOGGING_PIPELINE"`
	LoggingCapture   string `help:"Capture logging level" default:"info" toml:"logging.capture" env:"LOGGING_CAPTURE"`
	LoggingStreaming string `help:"Websocket transport logging level" default:"info" toml:"logging.streaming" env:"LOGGING_STREAMING"`
	LoggingNATS      string `help:"NATS logging level" default:"info" toml:"logging.nats" env:"LOGGING_NATS"`
	LoggingRelay     string `help:"Ingest relay logging level" default:"info" toml:"logging.relay" env:"LOGGING_RELAY"`
	LoggingAPI       string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
}

func main() {
	var cli humacli.CLI
	cli = humacli.New(func(hooks humacli.Hooks, opts *Options) {
		if loadErr := config.LoadConfig(opts, cli.Root()); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		logging.Initialize(logging.Config{
			Level:  opts.LoggingLevel,
			Format: opts.LoggingFormat,
			Modules: map[string]string{
				"pipeline":  opts.LoggingPipeline,
				"capture":   opts.LoggingCapture,
				"streaming": opts.LoggingStreaming,
				"nats":      opts.LoggingNATS,
				"relay":     opts.LoggingRelay,
				"api":       opts.LoggingAPI,
			},
		})
		logger := logging.GetLogger("main")
		overridden := config.OverriddenKeys(opts, cli.Root())

		// The app is built in OnStart so subcommands, which share this
		// callback, do not open ports or create folders.
		var (
			mu  sync.Mutex
			app *application
		)

		hooks.OnStart(func() {
			a, err := newApplication(opts, overridden)
			if err != nil {
				logger.Error("Failed to initialize", "error", err)
				os.Exit(1)
			}
			mu.Lock()
			app = a
			mu.Unlock()

			if err := a.run(); err != nil {
				logger.Error("Failed to start", "error", err)
				a.stop()
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down")
			mu.Lock()
			a := app
			mu.Unlock()
			if a != nil {
				a.stop()
			}
		})
	})

	cli.Root().AddCommand(
		cmd.CreateReceiveCmd(),
		cmd.CreateDecodeCmd(),
		cmd.CreateControlCmd(),
	)

	cli.Run()
}
