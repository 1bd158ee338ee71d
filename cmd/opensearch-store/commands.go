package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/n3tuk/langgraph-opensearch-store/internal/model"
	"github.com/n3tuk/langgraph-opensearch-store/internal/schema"
	"github.com/n3tuk/langgraph-opensearch-store/internal/snapshot"
	"github.com/n3tuk/langgraph-opensearch-store/internal/ttl"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Install the index template, indices, and alias",
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := openStore(cmd.Context())
		if err != nil {
			return err
		}

		return printJSON(cmd.OutOrStdout(), setupSummary(sess.store.Settings()))
	},
}

// setupSummary describes the indices setup installed.
func setupSummary(settings *schema.Settings) map[string]any {
	return map[string]any{
		"prefix":          settings.Prefix(),
		"alias":           settings.DataAlias(),
		"template":        settings.TemplateName(),
		"namespace_index": settings.NamespaceIndex(),
		"shards":          settings.Shards(),
		"replicas":        settings.Replicas(),
	}
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Print cluster health for the data alias",
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := openStore(cmd.Context())
		if err != nil {
			return err
		}

		report, err := sess.store.Health(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), report)
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print item and namespace counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := openStore(cmd.Context())
		if err != nil {
			return err
		}

		report, err := sess.store.Stats(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), report)
	},
}

var ttlSweepCmd = &cobra.Command{
	Use:   "ttl-sweep",
	Short: "Delete expired items",
	Long: `Delete one batch of expired items, or with --all keep deleting batches
until none remain.`,
	RunE: runTTLSweep,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Re-apply the schema and optionally roll the data alias over",
	Long: `Re-apply the index templates and, with --rollover, roll the data alias
over to a new backing index. --new-index names that index and is ignored
without --rollover.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		rollover, _ := cmd.Flags().GetBool("rollover")
		newIndex, _ := cmd.Flags().GetString("new-index")

		sess, err := openStore(cmd.Context())
		if err != nil {
			return err
		}

		report, err := sess.store.Migrate(cmd.Context(), rollover, newIndex)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), report)
	},
}

var snapshotsCmd = &cobra.Command{
	Use:   "snapshots",
	Short: "Manage snapshots of the store's indices",
}

var snapshotsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		repository, name, indices, wait := snapshotFlags(cmd)

		sess, err := openStore(cmd.Context())
		if err != nil {
			return err
		}

		report, err := sess.store.CreateSnapshot(cmd.Context(), repository, name, indices, wait)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), report)
	},
}

var snapshotsRestoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Restore a snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		repository, name, indices, wait := snapshotFlags(cmd)

		sess, err := openStore(cmd.Context())
		if err != nil {
			return err
		}

		report, err := sess.store.RestoreSnapshot(cmd.Context(), repository, name, indices, wait)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), report)
	},
}

var snapshotsDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete a snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		repository, _ := cmd.Flags().GetString("repository")
		name, _ := cmd.Flags().GetString("snapshot")

		sess, err := openStore(cmd.Context())
		if err != nil {
			return err
		}

		report, err := sess.store.DeleteSnapshot(cmd.Context(), repository, name)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), report)
	},
}

func init() {
	rootCmd.AddCommand(setupCmd, healthCmd, statsCmd, ttlSweepCmd, migrateCmd, snapshotsCmd)
	snapshotsCmd.AddCommand(snapshotsCreateCmd, snapshotsRestoreCmd, snapshotsDeleteCmd)

	ttlSweepCmd.Flags().Int("batch-size", ttl.DefaultBatchSize, "Expired items removed per batch")
	ttlSweepCmd.Flags().Bool("all", false, "Keep sweeping until no expired items remain")
	ttlSweepCmd.Flags().Float64("rate", 0, "Maximum batches per second with --all (0 is unlimited)")

	migrateCmd.Flags().Bool("rollover", false, "Roll the data alias over to a new backing index")
	migrateCmd.Flags().String("new-index", "", "Name of the new backing index (ignored without --rollover)")

	for _, c := range []*cobra.Command{snapshotsCreateCmd, snapshotsRestoreCmd, snapshotsDeleteCmd} {
		c.Flags().String("repository", "", "Snapshot repository name")
		c.Flags().String("snapshot", "", "Snapshot name")
		_ = c.MarkFlagRequired("repository")
		_ = c.MarkFlagRequired("snapshot")
	}
	for _, c := range []*cobra.Command{snapshotsCreateCmd, snapshotsRestoreCmd} {
		c.Flags().String("indices", "", "Comma separated indices (defaults to the store's indices)")
		c.Flags().Bool("wait", true, "Wait for the operation to complete")
		c.Flags().Bool("no-wait", false, "Return as soon as the operation is accepted")
	}
}

func runTTLSweep(cmd *cobra.Command, args []string) error {
	batchSize, _ := cmd.Flags().GetInt("batch-size")
	all, _ := cmd.Flags().GetBool("all")
	batchRate, _ := cmd.Flags().GetFloat64("rate")

	if batchRate < 0 {
		return fmt.Errorf("--rate must not be negative, got: %v", batchRate)
	}

	sess, err := openStore(cmd.Context())
	if err != nil {
		return err
	}

	var report *model.SweepReport
	if all {
		var limiter *rate.Limiter
		if batchRate > 0 {
			limiter = rate.NewLimiter(rate.Limit(batchRate), 1)
		}
		report, err = sess.store.SweepAll(cmd.Context(), batchSize, limiter)
	} else {
		report, err = sess.store.SweepTTL(cmd.Context(), batchSize)
	}
	if err != nil {
		return err
	}

	sess.logger.Debug("TTL sweep finished",
		zap.Bool("all", all),
		zap.Int64("deleted", report.Deleted),
		zap.Bool("has_more", report.HasMore),
	)

	return printJSON(cmd.OutOrStdout(), report)
}

// snapshotFlags reads the flags shared by snapshot create and restore.
func snapshotFlags(cmd *cobra.Command) (repository, name string, indices []string, wait bool) {
	repository, _ = cmd.Flags().GetString("repository")
	name, _ = cmd.Flags().GetString("snapshot")
	raw, _ := cmd.Flags().GetString("indices")
	wait, _ = cmd.Flags().GetBool("wait")

	if noWait, _ := cmd.Flags().GetBool("no-wait"); noWait {
		wait = false
	}

	return repository, name, snapshot.ParseIndices(raw), wait
}
