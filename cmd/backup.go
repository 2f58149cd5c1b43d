package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"tenant-restore/internal/archive"
)

var uploadTenant string

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Manage backup archives",
}

var backupUploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Upload an external backup archive",
	Long: `Validate and register a backup archive exported elsewhere.

The archive is extracted once as a sanity check and then stored under
the tenant's prefix. Encrypted archives (.enc) require a passphrase;
the file stays encrypted at rest.

Examples:
  tenant-restore backup upload ./export.tar.gz --tenant acme
  tenant-restore backup upload ./export.tar.gz.enc --tenant acme --passphrase s3cret`,
	Args: cobra.ExactArgs(1),
	RunE: runBackupUpload,
}

func init() {
	rootCmd.AddCommand(backupCmd)
	backupCmd.AddCommand(backupUploadCmd)

	backupUploadCmd.Flags().StringVar(&uploadTenant, "tenant", "", "tenant the backup belongs to")
	backupUploadCmd.MarkFlagRequired("tenant")
}

func runBackupUpload(cmd *cobra.Command, args []string) error {
	filePath := args[0]
	ctx := context.Background()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	encrypted, err := archive.IsEncryptedFile(filePath)
	if err != nil {
		return err
	}
	pass, err := resolvePassphrase(encrypted)
	if err != nil {
		return err
	}

	manifest, record, err := a.orch.UploadExternalBackup(ctx, uploadTenant,
		filePath, filepath.Base(filePath), pass)
	if err != nil {
		a.render.Error("%v", err)
		return err
	}

	a.render.Archive(record)
	a.render.Info("%d categories, %d records", len(manifest.Categories()), manifest.TotalRecordCount())
	a.render.Info("next: tenant-restore restore create %s --tenant %s", record.ID, uploadTenant)
	fmt.Println(record.ID)
	return nil
}
