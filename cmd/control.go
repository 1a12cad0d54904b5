package cmd

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/smazurov/framestream/internal/logging"
	"github.com/smazurov/framestream/internal/nats"
)

// CreateControlCmd creates the control command and its subcommands.
func CreateControlCmd() *cobra.Command {
	var (
		url     string
		timeout time.Duration
		reason  string
	)

	// send connects, sends one command and prints the resulting state.
	send := func(cmd *cobra.Command, do func(*nats.ControlPublisher) (nats.StateMessage, error)) error {
		pub, err := nats.NewControlPublisher(url, timeout, logging.GetLogger("nats"))
		if err != nil {
			return err
		}
		defer pub.Close()

		state, err := do(pub)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(state)
	}

	cmd := &cobra.Command{
		Use:   "control",
		Short: "Change the streaming state of a running instance over NATS",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "enable",
			Short: "Resume frame production",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return send(cmd, func(p *nats.ControlPublisher) (nats.StateMessage, error) {
					return p.Enable(reason)
				})
			},
		},
		&cobra.Command{
			Use:   "disable",
			Short: "Pause frame production",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return send(cmd, func(p *nats.ControlPublisher) (nats.StateMessage, error) {
					return p.Disable(reason)
				})
			},
		},
		&cobra.Command{
			Use:   "delay N",
			Short: "Set the number of capture events skipped between frames",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				delay, err := strconv.Atoi(args[0])
				if err != nil || delay < 0 {
					return fmt.Errorf("delay must be a non-negative integer, got %q", args[0])
				}
				return send(cmd, func(p *nats.ControlPublisher) (nats.StateMessage, error) {
					return p.SetDelay(delay, reason)
				})
			},
		},
	)

	cmd.PersistentFlags().StringVar(&url, "nats", "nats://127.0.0.1:4222", "NATS server URL")
	cmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Second, "Reply timeout")
	cmd.PersistentFlags().StringVar(&reason, "reason", "cli", "Reason reported with the state change")

	return cmd
}
