package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"ipcat/internal/ingest"
	"ipcat/internal/localdb"
	"ipcat/internal/logger"
)

type rootOptions struct {
	csvFile string
	debug   bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:           "ipcat",
		Short:         "ipcat classifies IPv4 addresses as belonging to datacenters and hosting providers",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if opts.debug {
				os.Setenv("LOG_LEVEL", "debug")
			}
			logger.SetupWriter(cmd.ErrOrStderr())
			if opts.csvFile == "" {
				return fmt.Errorf("--csvfile must not be empty")
			}
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(&opts.csvFile, "csvfile", "datacenters.csv", "read/write from this file")
	rootCmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "enable debugging output")

	rootCmd.AddCommand(
		newLookupCmd(opts),
		newValidateCmd(opts),
		newStatsCmd(opts),
		newExportCmd(opts),
		newUpdateCmd(opts),
		newAddCIDRCmd(opts),
		newImportCmd(opts),
	)
	return rootCmd
}

// loadRows 读取 CSV 数据集，不做构建
func loadRows(ctx context.Context, path string) ([]localdb.Record, error) {
	return (&ingest.FileProvider{Path: path}).Fetch(ctx)
}

// loadTable 读取并构建范围表
func loadTable(ctx context.Context, path string) (*localdb.Table, error) {
	rows, err := loadRows(ctx, path)
	if err != nil {
		return nil, err
	}
	tbl, err := localdb.Build(rows)
	if err != nil {
		return nil, err
	}
	slog.Debug("dataset_loaded", "path", path, "rows", len(rows), "records", tbl.Len())
	return tbl, nil
}

// writeDataset 先写临时文件再改名，中途失败不会留下半截数据集
func writeDataset(path string, tbl *localdb.Table) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if err := ingest.WriteCSV(tmp, tbl.Records()); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func printRecord(w io.Writer, r localdb.Record) {
	fmt.Fprintf(w, "[%s:%s] %s %s\n", localdb.FormatIPv4(r.Start), localdb.FormatIPv4(r.End), r.Owner, r.URL)
}

// parseCIDREntry 解析 "CIDR,name,url"（url 可省略）
func parseCIDREntry(entry string) (localdb.Record, error) {
	parts := strings.SplitN(entry, ",", 3)
	if len(parts) < 2 || strings.TrimSpace(parts[1]) == "" {
		return localdb.Record{}, fmt.Errorf("expected CIDR,name[,url], got %q", entry)
	}
	start, end, err := localdb.CIDRRange(strings.TrimSpace(parts[0]))
	if err != nil {
		return localdb.Record{}, err
	}
	r := localdb.Record{Start: start, End: end, Owner: strings.TrimSpace(parts[1])}
	if len(parts) == 3 {
		r.URL = strings.TrimSpace(parts[2])
	}
	return r, nil
}
