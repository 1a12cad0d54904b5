package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/smazurov/framestream/internal/events"
	"github.com/smazurov/framestream/internal/logging"
	"github.com/smazurov/framestream/internal/nats"
	"github.com/smazurov/framestream/internal/relay"
	"github.com/smazurov/framestream/internal/streaming"
	"github.com/smazurov/framestream/internal/version"
	"github.com/smazurov/framestream/internal/worker"
)

// CreateReceiveCmd creates the receive command.
func CreateReceiveCmd() *cobra.Command {
	var (
		url       string
		natsURL   string
		channel   string
		out       string
		verify    bool
		reconnect time.Duration
		logJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "receive",
		Short: "Save frames streamed by another instance",
		Long: `Connects to a websocket service (--url) or a NATS frame channel (--nats) and writes ` +
			`every received frame under --out, one folder per source.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if (url == "") == (natsURL == "") {
				return errors.New("exactly one of --url or --nats is required")
			}

			initCommandLogging(logJSON)
			logger := logging.GetLogger("relay")

			pool := worker.New(worker.Options{Name: "ingest", Logger: logging.GetLogger("worker")})
			r, err := relay.New(relay.Options{
				Root:     out,
				Verify:   verify,
				Pool:     pool,
				EventBus: events.New(),
				Logger:   logger,
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if natsURL != "" {
				err = receiveNATS(ctx, natsURL, channel, r)
			} else {
				err = receiveSocket(ctx, url, reconnect, r)
			}

			pool.ShutdownAll()
			pool.WaitTimeout(3 * time.Second)
			logger.Info("Receive stopped", "root", r.Root())
			return err
		},
	}

	cmd.Flags().StringVar(&url, "url", "", "Websocket service URL, e.g. ws://host:4649/Image")
	cmd.Flags().StringVar(&natsURL, "nats", "", "NATS server URL, e.g. nats://host:4222")
	cmd.Flags().StringVar(&channel, "channel", nats.DefaultChannel, "NATS frame channel, * for all")
	cmd.Flags().StringVarP(&out, "out", "o", relay.DefaultFolder, "Folder to save frames under")
	cmd.Flags().BoolVar(&verify, "verify", false, "Reject payloads that are not PNG or JPEG images")
	cmd.Flags().DurationVar(&reconnect, "reconnect", 2*time.Second, "Delay between websocket reconnect attempts")
	cmd.Flags().BoolVar(&logJSON, "log-json", false, "Use JSON log format")

	return cmd
}

func receiveSocket(ctx context.Context, url string, reconnect time.Duration, r *relay.Relay) error {
	client := streaming.NewClient(streaming.ClientOptions{
		URL:            url,
		ReconnectDelay: reconnect,
		Header:         http.Header{"User-Agent": []string{version.UserAgent()}},
		OnMessage:      r.Handle,
		Logger:         logging.GetLogger("streaming"),
	})
	return client.Run(ctx)
}

func receiveNATS(ctx context.Context, url, channel string, r *relay.Relay) error {
	sub := nats.NewFrameSubscriber(url, channel, r.Handle, logging.GetLogger("nats"))
	if err := sub.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	sub.Stop()
	return nil
}

// initCommandLogging sets up minimal logging for subcommands.
func initCommandLogging(logJSON bool) {
	cfg := logging.Config{Level: "info", Format: "text"}
	if logJSON {
		cfg.Format = "json"
	}
	logging.Initialize(cfg)
}
