package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pdfme/transformer-service/pkg/cache"
)

func statusCmd() *cobra.Command {
	var requestID, fileID string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print the cached status of one file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			if cfg.RedisAddr == "" {
				return errors.New("config: REDIS_ADDR is required")
			}
			if requestID == "" || fileID == "" {
				return errors.New("--request-id and --file-id are required")
			}

			redisCache, err := cache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword)
			if err != nil {
				return fmt.Errorf("redis: %w", err)
			}
			defer redisCache.Close()

			status, err := redisCache.GetFileStatus(cmd.Context(), requestID, fileID)
			if err != nil {
				return err
			}
			if status == "" {
				status = "unknown"
			}

			fmt.Fprintln(cmd.OutOrStdout(), status)
			return nil
		},
	}

	cmd.Flags().StringVar(&requestID, "request-id", "", "request of the file")
	cmd.Flags().StringVar(&fileID, "file-id", "", "file to look up")
	return cmd
}
