package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	cfgpkg "github.com/mbusd/mbus/internal/config"
	"github.com/mbusd/mbus/internal/handler"
	"github.com/mbusd/mbus/internal/worker"
)

// newProcessCommand constructs the `process` command: one bounded drain run
// over the named queues.
func newProcessCommand() *cobra.Command {
	processCmd := &cobra.Command{
		Use:   "process",
		Short: "Run one bounded processing pass over the named queues",
		Long: `Process drains the named queues in order, dispatching each message to
its registered handler. Successful messages are archived (or deleted with
--delete-messages); failed messages are replaced with an error-annotated
copy that stays hidden past the end of the run. The pass stops when either
budget (--max-messages per queue, --max-runtime per queue) is spent.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			queueNames, _ := cmd.Flags().GetStringSlice("queue-names")
			if len(queueNames) == 0 {
				return fmt.Errorf("--queue-names is required")
			}
			deleteMessages, _ := cmd.Flags().GetBool("delete-messages")
			validateOnly, _ := cmd.Flags().GetBool("validate-only")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			opts := optionsFromConfig(cmd, cfg)
			opts.DeleteOnSuccess = deleteMessages
			opts.ValidateOnly = validateOnly

			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			known, err := st.ListQueues(ctx)
			if err != nil {
				return err
			}
			existing := make(map[string]struct{}, len(known))
			for _, q := range known {
				existing[q] = struct{}{}
			}
			// Validate-only requires the Validate capability on every handler.
			handlers, err := handler.Builtin().Resolve(queueNames, existing, validateOnly)
			if err != nil {
				return err
			}

			logger := newCmdLogger(cmd, cfg)
			w := worker.New(st, handlers, logger, opts)
			if err := w.Run(ctx, queueNames); err != nil {
				return fmt.Errorf("processing run %s: %w", w.RunID(), err)
			}
			return nil
		},
	}
	processCmd.Flags().StringSlice("queue-names", nil, "Queues to drain, in order")
	processCmd.Flags().Int("max-messages", 0, "Max dequeue attempts per queue (default from config)")
	processCmd.Flags().Int("max-runtime", 0, "Max seconds per queue (default from config)")
	processCmd.Flags().Int("visibility-timeout", 0, "Lease seconds for dequeued messages (default from config)")
	processCmd.Flags().Int("error-visibility-timeout", 0, "Hide seconds for dead-lettered copies (default from config)")
	processCmd.Flags().Bool("delete-messages", false, "Delete handled messages instead of archiving them")
	processCmd.Flags().Bool("validate-only", false, "Run only the validation phase; messages stay leased")
	return processCmd
}

// optionsFromConfig merges process flags over the configured baselines.
func optionsFromConfig(cmd *cobra.Command, cfg cfgpkg.Config) worker.Options {
	opts := worker.Options{
		MaxMessages:            cfg.Process.MaxMessages,
		MaxRuntime:             time.Duration(cfg.Process.MaxRuntimeSeconds) * time.Second,
		VisibilityTimeout:      time.Duration(cfg.Process.VisibilityTimeoutSeconds) * time.Second,
		ErrorVisibilityTimeout: time.Duration(cfg.Process.ErrorVisibilityTimeoutSeconds) * time.Second,
		DeleteOnSuccess:        cfg.Process.DeleteMessages,
	}
	if v, _ := cmd.Flags().GetInt("max-messages"); v > 0 {
		opts.MaxMessages = v
	}
	if v, _ := cmd.Flags().GetInt("max-runtime"); v > 0 {
		opts.MaxRuntime = time.Duration(v) * time.Second
	}
	if v, _ := cmd.Flags().GetInt("visibility-timeout"); v > 0 {
		opts.VisibilityTimeout = time.Duration(v) * time.Second
	}
	if v, _ := cmd.Flags().GetInt("error-visibility-timeout"); v > 0 {
		opts.ErrorVisibilityTimeout = time.Duration(v) * time.Second
	}
	return opts
}
