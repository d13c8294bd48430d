package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mbusd/mbus/internal/message"
)

// newEnqueueCommand constructs the `enqueue` command. The target queue is
// created on first use so producers never race queue provisioning.
func newEnqueueCommand() *cobra.Command {
	enqueueCmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Enqueue a JSON message onto a queue",
		RunE: func(cmd *cobra.Command, _ []string) error {
			queue, _ := cmd.Flags().GetString("queue")
			data, _ := cmd.Flags().GetString("message")
			if queue == "" {
				return fmt.Errorf("--queue is required")
			}
			if !json.Valid([]byte(data)) {
				return fmt.Errorf("--message must be valid JSON")
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			ctx := cmd.Context()
			if err := st.CreateQueue(ctx, queue, nil); err != nil {
				return err
			}
			id, err := st.Enqueue(ctx, message.NewEnvelope(queue, json.RawMessage(data)))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
	enqueueCmd.Flags().StringP("queue", "q", "", "Queue name")
	enqueueCmd.Flags().StringP("message", "m", "{}", "Message data as JSON")
	return enqueueCmd
}
