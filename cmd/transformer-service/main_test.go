package main

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/apache/arrow/go/v17/parquet/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdfme/transformer-service/pkg/config"
	"github.com/pdfme/transformer-service/pkg/paths"
)

func TestNewLogger_Levels(t *testing.T) {
	logger := newLogger(&config.Config{LogLevel: "warn", LogFormat: "text"})
	assert.False(t, logger.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, logger.Enabled(context.Background(), slog.LevelWarn))

	logger = newLogger(&config.Config{LogLevel: "debug"})
	assert.True(t, logger.Enabled(context.Background(), slog.LevelDebug))
}

func TestTransformCmd_SingleFile(t *testing.T) {
	in := filepath.Join(t.TempDir(), "events.csv")
	require.NoError(t, os.WriteFile(in, []byte("run,pt\n1,2.5\n2,3.5\n"), 0o644))
	outDir := filepath.Join(t.TempDir(), "results")

	var out bytes.Buffer
	cmd := transformCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--path", in, "--output-dir", outDir, "--transformer", "csv"})
	require.NoError(t, cmd.Execute())

	dest := strings.TrimSpace(out.String())
	assert.Equal(t, filepath.Join(outDir, paths.OutputName(in)), dest)
	assert.FileExists(t, dest)
}

func TestTransformCmd_DelimiterFromEnv(t *testing.T) {
	t.Setenv("CSV_DELIMITER", ";")
	in := filepath.Join(t.TempDir(), "events.csv")
	require.NoError(t, os.WriteFile(in, []byte("run;pt\n1;2.5\n"), 0o644))

	var out bytes.Buffer
	cmd := transformCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--path", in, "--output-dir", t.TempDir()})
	require.NoError(t, cmd.Execute())

	rdr, err := file.OpenParquetFile(strings.TrimSpace(out.String()), false)
	require.NoError(t, err)
	defer rdr.Close()
	assert.Equal(t, 2, rdr.MetaData().Schema.NumColumns())
}

func TestTransformCmd_RequiresPath(t *testing.T) {
	cmd := transformCmd()
	cmd.SetArgs(nil)
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	require.Error(t, cmd.Execute())
}

func TestTransformCmd_FailureSurfaces(t *testing.T) {
	cmd := transformCmd()
	cmd.SetArgs([]string{"--path", filepath.Join(t.TempDir(), "missing.csv"), "--output-dir", t.TempDir()})
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to transform input file")
}

func runStatus(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := statusCmd()
	cmd.SetOut(&out)
	cmd.SetArgs(args)
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	err := cmd.Execute()
	return strings.TrimSpace(out.String()), err
}

func TestStatusCmd(t *testing.T) {
	mr := miniredis.RunT(t)
	t.Setenv("REDIS_ADDR", mr.Addr())
	require.NoError(t, mr.Set("transform:r1:f1", "completed"))

	got, err := runStatus(t, "--request-id", "r1", "--file-id", "f1")
	require.NoError(t, err)
	assert.Equal(t, "completed", got)

	got, err = runStatus(t, "--request-id", "r1", "--file-id", "f2")
	require.NoError(t, err)
	assert.Equal(t, "unknown", got)
}

func TestStatusCmd_RequiresRedis(t *testing.T) {
	t.Setenv("REDIS_ADDR", "")
	_, err := runStatus(t, "--request-id", "r1", "--file-id", "f1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REDIS_ADDR")
}
