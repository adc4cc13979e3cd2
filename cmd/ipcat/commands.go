package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"ipcat/internal/ingest"
	"ipcat/internal/localdb"
	"ipcat/internal/migrate"
	"ipcat/internal/store"
	"ipcat/internal/utils"
)

var errNotFound = errors.New("not found")

func newLookupCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "lookup IP",
		Short: "look up the owner of an IPv4 address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := localdb.ParseIPv4(args[0])
			if err != nil {
				return err
			}
			tbl, err := loadTable(cmd.Context(), opts.csvFile)
			if err != nil {
				return err
			}
			rec, ok := tbl.Find(addr)
			if !ok {
				return fmt.Errorf("%s: %w", args[0], errNotFound)
			}
			printRecord(cmd.OutOrStdout(), rec)
			return nil
		},
	}
}

func newValidateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "check that the dataset parses and has no inverted or overlapping ranges",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tbl, err := loadTable(cmd.Context(), opts.csvFile)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d ranges OK\n", opts.csvFile, tbl.Len())
			return nil
		},
	}
}

func newStatsCmd(opts *rootOptions) *cobra.Command {
	var statsFile string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "write owner,total addresses sorted by coverage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tbl, err := loadTable(cmd.Context(), opts.csvFile)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if statsFile != "" && statsFile != "-" {
				f, err := os.Create(statsFile)
				if err != nil {
					return err
				}
				defer f.Close()
				out = f
			}
			w := csv.NewWriter(out)
			for _, o := range tbl.RankBySize() {
				if err := w.Write([]string{o.Owner, strconv.FormatUint(o.Size, 10)}); err != nil {
					return err
				}
			}
			w.Flush()
			return w.Error()
		},
	}
	cmd.Flags().StringVar(&statsFile, "statsfile", "-", "write statistics to this file (- for stdout)")
	return cmd
}

func newExportCmd(opts *rootOptions) *cobra.Command {
	var url string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "write the dataset as normalized, sorted CSV to stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var p ingest.Provider = &ingest.FileProvider{Path: opts.csvFile}
			if url != "" {
				p = ingest.NewHTTPProvider(url, &http.Client{Timeout: 30 * time.Second})
			}
			rows, err := p.Fetch(cmd.Context())
			if err != nil {
				return err
			}
			tbl, err := localdb.Build(rows)
			if err != nil {
				return err
			}
			return ingest.WriteCSV(cmd.OutOrStdout(), tbl.Records())
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "fetch the dataset from this URL instead of --csvfile")
	return cmd
}

// 文档注释：以云厂商官方网段更新数据集文件
// 背景：删除该归属方的全部旧行后追加官方网段，结果校验通过才写回文件。
func newUpdateCmd(opts *rootOptions) *cobra.Command {
	var aws, cloudflare bool
	var awsURL, cfURL string
	cmd := &cobra.Command{
		Use:   "update",
		Short: "replace AWS and/or Cloudflare ranges in the dataset with their published lists",
		Args:  cobra.NoArgs,
		PreRunE: func(_ *cobra.Command, _ []string) error {
			if !aws && !cloudflare {
				return fmt.Errorf("nothing to update: pass --aws and/or --cloudflare")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			client := &http.Client{Timeout: 30 * time.Second}
			p := &ingest.OverlayProvider{Base: &ingest.FileProvider{Path: opts.csvFile}}
			if aws {
				p.Overlays = append(p.Overlays, &ingest.AWSProvider{URL: awsURL, Client: client})
			}
			if cloudflare {
				p.Overlays = append(p.Overlays, &ingest.CloudflareProvider{URL: cfURL, Client: client})
			}
			rows, err := p.Fetch(cmd.Context())
			if err != nil {
				return err
			}
			tbl, err := localdb.Build(rows)
			if err != nil {
				return err
			}
			if err := writeDataset(opts.csvFile, tbl); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: wrote %d ranges\n", opts.csvFile, tbl.Len())
			return nil
		},
	}
	cmd.Flags().BoolVar(&aws, "aws", false, "update AWS records")
	cmd.Flags().BoolVar(&cloudflare, "cloudflare", false, "update Cloudflare records")
	cmd.Flags().StringVar(&awsURL, "aws-url", ingest.AWSRangesURL, "AWS ip-ranges.json location")
	cmd.Flags().StringVar(&cfURL, "cloudflare-url", ingest.CloudflareIPv4URL, "Cloudflare ips-v4 location")
	return cmd
}

func newAddCIDRCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "add-cidr CIDR,name[,url]",
		Short: "add a CIDR range to the dataset file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := parseCIDREntry(args[0])
			if err != nil {
				return err
			}
			rows, err := loadRows(cmd.Context(), opts.csvFile)
			if err != nil {
				return err
			}
			tbl, err := localdb.Build(append(rows, rec))
			if err != nil {
				return err
			}
			if err := writeDataset(opts.csvFile, tbl); err != nil {
				return err
			}
			printRecord(cmd.OutOrStdout(), rec)
			return nil
		},
	}
}

// 文档注释：将数据集写入 PostgreSQL 快照
// 背景：离线环境下预置快照，服务冷启动且上游不可达时可直接就绪；连接参数沿用 PG_* 环境变量。
func newImportCmd(opts *rootOptions) *cobra.Command {
	var dsn string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "store the dataset as the PostgreSQL snapshot used for warm starts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tbl, err := loadTable(cmd.Context(), opts.csvFile)
			if err != nil {
				return err
			}
			if dsn == "" {
				dsn = utils.BuildPostgresDSNFromEnv()
			}
			pg, err := store.Open(dsn)
			if err != nil {
				return err
			}
			defer pg.Close()
			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()
			if err := migrate.EnsureSchema(ctx, pg.DB()); err != nil {
				return fmt.Errorf("ensure schema: %w", err)
			}
			if err := pg.SaveSnapshot(ctx, "file:"+opts.csvFile, tbl.Records()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d ranges\n", tbl.Len())
			return nil
		},
	}
	cmd.Flags().StringVar(&dsn, "dsn", "", "PostgreSQL DSN (defaults to PG_* environment)")
	return cmd
}
