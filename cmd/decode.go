package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/smazurov/framestream/internal/relay"
	"github.com/smazurov/framestream/internal/wire"
)

// CreateDecodeCmd creates the decode command.
func CreateDecodeCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "decode FILE...",
		Short: "Unpack stored wire messages into the folder layout",
		Long: `Reads files holding one wire message each (name, payload, 4 byte little-endian name length) ` +
			`and writes the payload to <out>/<folder>/<leaf>.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := os.MkdirAll(out, 0o755); err != nil {
				return fmt.Errorf("failed to create %s: %w", out, err)
			}

			var failed int
			for _, file := range args {
				data, err := os.ReadFile(file)
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", file, err)
					failed++
					continue
				}
				msg, path, err := wire.WriteFile(out, data)
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", file, err)
					failed++
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s (%d bytes)\n", msg.Name, path, len(msg.Payload))
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d files could not be decoded", failed, len(args))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", relay.DefaultFolder, "Folder to write frames under")

	return cmd
}
