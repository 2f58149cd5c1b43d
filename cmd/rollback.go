package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

var extendHours int

var rollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Undo completed restores",
	Long: `Roll a completed restore back by replaying its safety backup.

A rollback is a new full restore of the safety backup with the conflict
strategy forced to replace, so it runs with the same transactional
guarantees as any other restore. Rollbacks are only possible while the
job's rollback window is open (24 hours by default).

Examples:
  tenant-restore rollback can job-123
  tenant-restore rollback execute job-123
  tenant-restore rollback extend job-123 --hours 48
  tenant-restore rollback cleanup`,
}

var rollbackCanCmd = &cobra.Command{
	Use:   "can <job-id>",
	Short: "Check whether a restore can be rolled back",
	Args:  cobra.ExactArgs(1),
	RunE:  runRollbackCan,
}

var rollbackExecuteCmd = &cobra.Command{
	Use:   "execute <job-id>",
	Short: "Roll back a completed restore",
	Args:  cobra.ExactArgs(1),
	RunE:  runRollbackExecute,
}

var rollbackExtendCmd = &cobra.Command{
	Use:   "extend <job-id>",
	Short: "Extend a restore's rollback window",
	Args:  cobra.ExactArgs(1),
	RunE:  runRollbackExtend,
}

var rollbackCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Release safety backups with expired rollback windows",
	Long: `Delete the stored safety backup files of restores whose rollback
window has elapsed. Safe to run repeatedly, including from cron.`,
	RunE: runRollbackCleanup,
}

func init() {
	rootCmd.AddCommand(rollbackCmd)
	rollbackCmd.AddCommand(rollbackCanCmd)
	rollbackCmd.AddCommand(rollbackExecuteCmd)
	rollbackCmd.AddCommand(rollbackExtendCmd)
	rollbackCmd.AddCommand(rollbackCleanupCmd)

	rollbackExtendCmd.Flags().IntVar(&extendHours, "hours", 24, "hours to extend the window by")
}

func runRollbackCan(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	eligible, reason, err := a.rollback.CanRollback(ctx, args[0])
	if err != nil {
		return err
	}
	if eligible {
		a.render.Success("job %s can be rolled back", args[0])
	} else {
		a.render.Warning("job %s cannot be rolled back: %s", args[0], reason)
	}
	return nil
}

func runRollbackExecute(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.connectDB(ctx); err != nil {
		return err
	}

	rollbackJob, err := a.rollback.Rollback(ctx, args[0])
	if err != nil {
		a.render.Error("%v", err)
		return err
	}
	a.render.Info("rolling back job %s via safety backup restore %s", args[0], rollbackJob.ID)

	// Safety backups are produced by this tool and never encrypted, so
	// no passphrase is needed to replay one.
	if _, err := a.orch.Analyze(ctx, rollbackJob.ID, ""); err != nil {
		a.render.Error("rollback analysis failed: %v", err)
		return err
	}
	done, err := a.orch.Process(ctx, rollbackJob.ID, "")
	if err != nil {
		a.render.Error("rollback failed: %v", err)
		return err
	}

	a.render.ExecutionReport(done.Report)
	a.render.Success("job %s rolled back", args[0])
	return nil
}

func runRollbackExtend(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	job, err := a.rollback.ExtendRollbackWindow(ctx, args[0], extendHours)
	if err != nil {
		a.render.Error("%v", err)
		return err
	}
	a.render.Success("rollback window for job %s now ends %s", job.ID,
		job.RollbackExpiresAt.Format("2006-01-02 15:04:05 MST"))
	return nil
}

func runRollbackCleanup(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	cleaned, err := a.rollback.CleanupExpiredRollbacks(ctx)
	if err != nil {
		return err
	}
	if cleaned == 0 {
		a.render.Info("no expired rollback windows")
	} else {
		a.render.Success("released %d expired safety backups", cleaned)
	}
	return nil
}
