package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pdfme/transformer-service/pkg/database"
)

func jobsCmd() *cobra.Command {
	var requestID string

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List the files recorded for a request",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			if cfg.DatabaseURL == "" {
				return errors.New("config: DATABASE_URL is required")
			}
			if requestID == "" {
				return errors.New("--request-id is required")
			}

			db, err := database.NewPostgresDB(cfg.DatabaseURL, 1)
			if err != nil {
				return fmt.Errorf("database: %w", err)
			}
			defer db.Close()

			jobs, err := db.ListJobs(cmd.Context(), requestID)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "FILE-ID\tSTATUS\tATTEMPTS\tSECONDS\tFILE-PATH\tERROR")
			for _, j := range jobs {
				seconds, errMsg := "-", ""
				if j.TotalTimeSeconds != nil {
					seconds = fmt.Sprintf("%.2f", *j.TotalTimeSeconds)
				}
				if j.ErrorMessage != nil {
					errMsg = *j.ErrorMessage
				}
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\n", j.FileID, j.Status, j.Attempts, seconds, j.FilePath, errMsg)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&requestID, "request-id", "", "request to list")
	return cmd
}
