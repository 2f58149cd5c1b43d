package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"tenant-restore/internal/conflict"
	"tenant-restore/internal/executor"
	"tenant-restore/internal/restore"
)

var (
	restoreTenant     string
	restoreTypeFlag   string
	restoreCategories []string

	confirmStrategy  string
	confirmDecisions string

	restoreFormat string
)

var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Create and run restore jobs",
	Long: `Drive a restore job through its lifecycle.

A job moves through pending, analyzing, awaiting_confirmation,
processing and completed. Analysis never touches live data; the write
phase runs in one transaction and either commits completely or leaves
the store untouched.`,
}

var restoreCreateCmd = &cobra.Command{
	Use:   "create <backup-id>",
	Short: "Create a restore job for a backup",
	Long: `Create a restore job in the pending state.

A full restore clears the tenant's existing rows (soft delete) before
writing; a partial restore writes on top of existing data and is
limited to the selected categories.

Examples:
  tenant-restore restore create backup-123 --tenant acme --type full
  tenant-restore restore create backup-123 --tenant acme --type partial --categories campaigns,ads`,
	Args: cobra.ExactArgs(1),
	RunE: runRestoreCreate,
}

var restoreAnalyzeCmd = &cobra.Command{
	Use:   "analyze <job-id>",
	Short: "Analyze a restore job",
	Long: `Stage the archive, reconcile its schema snapshot against the live
database and preview conflicts with existing rows. The job then waits
for confirmation; nothing is written.`,
	Args: cobra.ExactArgs(1),
	RunE: runRestoreAnalyze,
}

var restoreConfirmCmd = &cobra.Command{
	Use:   "confirm <job-id>",
	Short: "Confirm a restore job's conflict handling",
	Long: `Store the conflict strategy (and optional per-record decisions) on a
job awaiting confirmation.

Strategies:
  skip     keep existing rows, only insert new ones (default)
  replace  overwrite existing rows with backup data
  merge    newest data wins field by field
  ask      collect per-record decisions before processing

Per-record decisions are read from a JSON file mapping record IDs to
decisions, as produced during analysis:

  {"42": {"action": "keep_existing"}, "57": {"action": "use_backup"}}

Examples:
  tenant-restore restore confirm job-123 --strategy merge
  tenant-restore restore confirm job-123 --strategy ask --decisions decisions.json`,
	Args: cobra.ExactArgs(1),
	RunE: runRestoreConfirm,
}

var restoreProcessCmd = &cobra.Command{
	Use:   "process <job-id>",
	Short: "Execute a confirmed restore job",
	Long: `Execute a confirmed restore. A non-full restore first takes a safety
backup of the tenant's live data; if that backup does not complete, the
restore never runs. On success the rollback window opens.`,
	Args: cobra.ExactArgs(1),
	RunE: runRestoreProcess,
}

var restoreStatusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Show a restore job's state and reports",
	Args:  cobra.ExactArgs(1),
	RunE:  runRestoreStatus,
}

var restoreListCmd = &cobra.Command{
	Use:   "list",
	Short: "List a tenant's restore jobs",
	RunE:  runRestoreList,
}

func init() {
	rootCmd.AddCommand(restoreCmd)
	restoreCmd.AddCommand(restoreCreateCmd)
	restoreCmd.AddCommand(restoreAnalyzeCmd)
	restoreCmd.AddCommand(restoreConfirmCmd)
	restoreCmd.AddCommand(restoreProcessCmd)
	restoreCmd.AddCommand(restoreStatusCmd)
	restoreCmd.AddCommand(restoreListCmd)

	restoreCreateCmd.Flags().StringVar(&restoreTenant, "tenant", "", "tenant to restore into")
	restoreCreateCmd.Flags().StringVar(&restoreTypeFlag, "type", "partial", "restore type (full, partial)")
	restoreCreateCmd.Flags().StringSliceVar(&restoreCategories, "categories", nil, "categories to restore (default: all in the archive)")
	restoreCreateCmd.MarkFlagRequired("tenant")

	restoreConfirmCmd.Flags().StringVar(&confirmStrategy, "strategy", string(conflict.StrategySkip), "conflict strategy (skip, replace, merge, ask)")
	restoreConfirmCmd.Flags().StringVar(&confirmDecisions, "decisions", "", "JSON file with per-record decisions")

	restoreListCmd.Flags().StringVar(&restoreTenant, "tenant", "", "tenant to list jobs for")
	restoreListCmd.MarkFlagRequired("tenant")

	restoreStatusCmd.Flags().StringVar(&restoreFormat, "format", "table", "output format (table, json, yaml)")
	restoreListCmd.Flags().StringVar(&restoreFormat, "format", "table", "output format (table, json, yaml)")
}

// writeFormatted serializes v to stdout as JSON or YAML.
func writeFormatted(v interface{}, format string) error {
	switch strings.ToLower(format) {
	case "json":
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(v)
	case "yaml":
		raw, err := yaml.Marshal(v)
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(raw)
		return err
	}
	return fmt.Errorf("unsupported format: %s", format)
}

func runRestoreCreate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	restoreType, err := executor.ParseRestoreType(restoreTypeFlag)
	if err != nil {
		return err
	}

	job, err := a.orch.CreateJob(ctx, restoreTenant, args[0], restoreType, restoreCategories)
	if err != nil {
		a.render.Error("%v", err)
		return err
	}

	a.render.Job(job)
	a.render.Info("next: tenant-restore restore analyze %s", job.ID)
	fmt.Println(job.ID)
	return nil
}

func runRestoreAnalyze(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.connectDB(ctx); err != nil {
		return err
	}

	pass, err := a.passphraseForJob(ctx, args[0])
	if err != nil {
		return err
	}

	job, err := a.orch.Analyze(ctx, args[0], pass)
	if err != nil {
		a.render.Error("analysis failed: %v", err)
		return err
	}

	a.render.SchemaReport(job.SchemaReport)
	a.render.ConflictPreviews(job.ConflictPreviews)
	a.render.Info("next: tenant-restore restore confirm %s --strategy <skip|replace|merge|ask>", job.ID)
	return nil
}

func runRestoreConfirm(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	strategy, err := conflict.ParseStrategy(confirmStrategy)
	if err != nil {
		return err
	}

	config := conflict.Config{Strategy: strategy}
	if confirmDecisions != "" {
		raw, err := os.ReadFile(confirmDecisions)
		if err != nil {
			return fmt.Errorf("failed to read decisions file: %w", err)
		}
		if err := json.Unmarshal(raw, &config.Decisions); err != nil {
			return fmt.Errorf("decisions file is not valid JSON: %w", err)
		}
	}

	job, err := a.orch.SetConflictConfig(ctx, args[0], config)
	if err != nil {
		a.render.Error("%v", err)
		return err
	}

	a.render.Success("job %s confirmed with strategy %s", job.ID, job.ConflictConfig.Strategy)
	if len(job.ConflictConfig.Decisions) > 0 {
		a.render.Info("%d per-record decisions stored", len(job.ConflictConfig.Decisions))
	}
	a.render.Info("next: tenant-restore restore process %s", job.ID)
	return nil
}

func runRestoreProcess(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.connectDB(ctx); err != nil {
		return err
	}

	pass, err := a.passphraseForJob(ctx, args[0])
	if err != nil {
		return err
	}

	job, err := a.orch.Process(ctx, args[0], pass)
	if err != nil {
		a.render.Error("restore failed: %v", err)
		return err
	}

	a.render.ExecutionReport(job.Report)
	if job.RollbackExpiresAt != nil {
		a.render.Info("rollback available until %s: tenant-restore rollback execute %s",
			job.RollbackExpiresAt.Format("2006-01-02 15:04:05 MST"), job.ID)
	}
	return nil
}

func runRestoreStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	job, err := a.orch.Jobs().GetJob(ctx, args[0])
	if err != nil {
		return err
	}
	if restoreFormat != "table" {
		return writeFormatted(job, restoreFormat)
	}

	a.render.Job(job)
	if job.Status == restore.StatusAwaitingConfirmation {
		a.render.SchemaReport(job.SchemaReport)
		a.render.ConflictPreviews(job.ConflictPreviews)
	}
	if job.Report != nil {
		a.render.ExecutionReport(job.Report)
	}
	return nil
}

func runRestoreList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	jobs, err := a.orch.Jobs().ListJobs(ctx, restoreTenant)
	if err != nil {
		return err
	}
	if restoreFormat != "table" {
		return writeFormatted(jobs, restoreFormat)
	}
	a.render.JobList(jobs)
	return nil
}

// passphraseForJob resolves the passphrase only when the job's backup
// archive is actually encrypted.
func (a *app) passphraseForJob(ctx context.Context, jobID string) (string, error) {
	job, err := a.orch.Jobs().GetJob(ctx, jobID)
	if err != nil {
		return "", err
	}
	record, err := a.orch.Archives().GetArchive(ctx, job.BackupID)
	if err != nil {
		return "", err
	}
	return resolvePassphrase(record.Encrypted)
}
