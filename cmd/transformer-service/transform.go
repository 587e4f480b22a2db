package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/spf13/cobra"

	"github.com/pdfme/transformer-service/pkg/paths"
	"github.com/pdfme/transformer-service/pkg/sink"
	"github.com/pdfme/transformer-service/pkg/transform"
)

func transformCmd() *cobra.Command {
	var path, outputDir, transformer string

	cmd := &cobra.Command{
		Use:   "transform",
		Short: "Transform a single file into OUTPUT_DIR and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			if path == "" {
				return errors.New("--path is required")
			}
			if outputDir == "" {
				outputDir = cfg.OutputDir
			}
			if transformer == "" {
				transformer = cfg.Transformer
			}

			mem := memory.DefaultAllocator
			tr, err := newTransformer(cfg, transformer, mem)
			if err != nil {
				return err
			}

			res, err := transform.NewExecutor(tr, mem).Execute(cmd.Context(), path)
			if err != nil {
				return err
			}
			defer res.Release()

			s := sink.New(outputDir, nil)
			if err := s.EnsureDir(); err != nil {
				return err
			}
			dest := s.Path(paths.OutputName(path))
			if err := s.Persist(res.Table, dest); err != nil {
				return err
			}

			slog.Info("transformed single file", "path", path, "output", dest, "rows", res.Table.NumRows())
			fmt.Fprintln(cmd.OutOrStdout(), dest)
			return nil
		},
	}

	cmd.Flags().StringVar(&path, "path", "", "input file to transform")
	cmd.Flags().StringVar(&outputDir, "output-dir", "", "directory for the result (default OUTPUT_DIR)")
	cmd.Flags().StringVar(&transformer, "transformer", "", "transformer name (default TRANSFORMER)")
	return cmd
}
