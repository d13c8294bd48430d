package cli

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mbusd/mbus/internal/store"
)

// newQueueCommand constructs the `queue` command group.
func newQueueCommand() *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Queue operations",
	}
	queueCmd.AddCommand(
		newQueueCreateCommand(),
		newQueueListCommand(),
		newQueueStatusCommand(),
		newQueuePurgeCommand(),
		newQueueDestroyCommand(),
	)
	return queueCmd
}

func newQueueCreateCommand() *cobra.Command {
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a queue (no-op if it already exists)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			name, _ := cmd.Flags().GetString("name")
			if name == "" {
				return fmt.Errorf("--name is required")
			}
			partition, _ := cmd.Flags().GetBool("partition")
			interval, _ := cmd.Flags().GetInt("interval")
			retention, _ := cmd.Flags().GetInt("retention")
			var opts store.CreateOptions
			if partition {
				opts = store.CreateOptions{
					"partition": "true",
					"interval":  strconv.Itoa(interval),
					"retention": strconv.Itoa(retention),
				}
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
			if err := st.CreateQueue(cmd.Context(), name, opts); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "created:", name)
			return nil
		},
	}
	createCmd.Flags().StringP("name", "n", "", "Queue name")
	createCmd.Flags().Bool("partition", false, "Create a partitioned queue")
	createCmd.Flags().Int("interval", 1000, "With --partition, messages per partition")
	createCmd.Flags().Int("retention", 1000000, "With --partition, messages retained across partitions")
	return createCmd
}

func newQueueListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List queues",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()
			names, err := st.ListQueues(cmd.Context())
			if err != nil {
				return err
			}
			for _, n := range names {
				fmt.Fprintln(cmd.OutOrStdout(), n)
			}
			return nil
		},
	}
}

func newQueueStatusCommand() *cobra.Command {
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show queue metrics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			name, _ := cmd.Flags().GetString("name")
			if name == "" {
				return fmt.Errorf("--name is required")
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
			metrics, err := st.Metrics(cmd.Context(), name)
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(metrics, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
	statusCmd.Flags().StringP("name", "n", "", "Queue name")
	return statusCmd
}

func newQueuePurgeCommand() *cobra.Command {
	purgeCmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete all messages on a queue, keeping the queue itself",
		RunE: func(cmd *cobra.Command, _ []string) error {
			name, _ := cmd.Flags().GetString("name")
			if name == "" {
				return fmt.Errorf("--name is required")
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
			n, err := st.PurgeQueue(cmd.Context(), name)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "purged:", n)
			return nil
		},
	}
	purgeCmd.Flags().StringP("name", "n", "", "Queue name")
	return purgeCmd
}

func newQueueDestroyCommand() *cobra.Command {
	destroyCmd := &cobra.Command{
		Use:   "destroy",
		Short: "Remove a queue and everything on it, archive included",
		RunE: func(cmd *cobra.Command, _ []string) error {
			name, _ := cmd.Flags().GetString("name")
			if name == "" {
				return fmt.Errorf("--name is required")
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
			if err := st.DestroyQueue(cmd.Context(), name); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "destroyed:", name)
			return nil
		},
	}
	destroyCmd.Flags().StringP("name", "n", "", "Queue name")
	return destroyCmd
}
