package main

import (
	"fmt"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/your-org/facelog/internal/importer"
	"github.com/your-org/facelog/internal/storage"
	"github.com/your-org/facelog/internal/vector"
)

var (
	legacyDSN string
	skipLogs  bool
)

var importLegacyCmd = &cobra.Command{
	Use:   "import-legacy",
	Short: "Copy identities, aliases and camera logs from the legacy MySQL database",
	Long: "Reads FaceIdentityStore and CameraLogs from MySQL and writes them to Postgres, " +
		"keeping identity ids. Representative images go to MinIO. Identities that already " +
		"exist are skipped; camera logs are not deduplicated, use --skip-logs on a rerun.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		dsn := legacyDSN
		if dsn == "" {
			dsn = cfg.Legacy.DSN
		}
		src, err := storage.NewLegacyStore(dsn)
		if err != nil {
			return err
		}
		defer src.Close()

		if err := db.Migrate(ctx); err != nil {
			return err
		}

		images, err := storage.NewMinIOStore(cfg.MinIO)
		if err != nil {
			return fmt.Errorf("connect to minio: %w", err)
		}
		if err := images.EnsureBucket(ctx); err != nil {
			return err
		}

		im := importer.New(src, db, images, vector.TextCodec{})
		opts := importer.Options{SkipLogs: skipLogs}

		total, err := im.Total(ctx, opts)
		if err != nil {
			return err
		}

		bar := progressbar.NewOptions(total,
			progressbar.OptionSetDescription("Importing legacy rows"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
		)

		st, err := im.Run(ctx, opts, bar)
		_ = bar.Finish()
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return err
		}

		fmt.Printf("Identities: %d imported, %d skipped\n", st.Identities, st.SkippedIdentities)
		fmt.Printf("Aliases:    %d imported\n", st.Aliases)
		if !skipLogs {
			fmt.Printf("Logs:       %d imported, %d skipped\n", st.Detections, st.SkippedDetections)
		}
		return nil
	},
}

func init() {
	importLegacyCmd.Flags().StringVar(&legacyDSN, "dsn", "", "MySQL DSN, e.g. user:pass@tcp(host:3306)/facedb (default: legacy.dsn from config)")
	importLegacyCmd.Flags().BoolVar(&skipLogs, "skip-logs", false, "import identities and aliases only")
	rootCmd.AddCommand(importLegacyCmd)
}
