package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/gyeh/mrfflatten/internal/applog"
	"github.com/gyeh/mrfflatten/internal/mrf"
	"github.com/gyeh/mrfflatten/internal/npi"
	"github.com/gyeh/mrfflatten/internal/progress"
	"github.com/gyeh/mrfflatten/internal/sink"
	"github.com/gyeh/mrfflatten/internal/toc"
	"github.com/gyeh/mrfflatten/internal/worker"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "mrfflatten",
		Short: "Flatten Transparency-in-Coverage MRF files into a hash-linked CSV dataset",
	}

	rootCmd.AddCommand(newFlattenCmd())
	rootCmd.AddCommand(newBatchCmd())
	rootCmd.AddCommand(newTOCCmd())
	rootCmd.AddCommand(newNPILookupCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// withSignals returns a context cancelled on the first SIGINT/SIGTERM; a
// second signal force-exits immediately.
func withSignals() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Fprintf(os.Stderr, "\nreceived %s, shutting down... (^C again to force quit)\n", sig)
		cancel()
		sig = <-sigCh
		fmt.Fprintf(os.Stderr, "\nreceived %s, force quit\n", sig)
		os.Exit(1)
	}()
	return ctx, cancel
}

func newFlattenCmd() *cobra.Command {
	var (
		url             string
		file            string
		outDir          string
		downloadsDir    string
		codeFilterFile  string
		npiFilterFile   string
		resolverWorkers int
		logLevel        string
		noParallelGzip  bool
		s3URI           string
		s3Region        string
	)

	cmd := &cobra.Command{
		Use:   "flatten",
		Short: "Flatten one MRF file into out_dir's seven CSV tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := applog.Setup(logLevel)
			ctx, cancel := withSignals()
			defer cancel()

			cfg := mrf.Config{
				URL:             url,
				File:            file,
				OutDir:          outDir,
				DownloadsDir:    downloadsDir,
				ResolverWorkers: resolverWorkers,
				UseParallelGzip: !noParallelGzip,
				OnDebug: func(format string, args ...any) {
					logger.Debug(fmt.Sprintf(format, args...))
				},
			}

			if codeFilterFile != "" {
				filter, err := mrf.LoadCodeFilter(codeFilterFile)
				if err != nil {
					return err
				}
				cfg.CodeFilter = filter
			}
			if npiFilterFile != "" {
				filter, err := mrf.LoadNPIFilter(npiFilterFile)
				if err != nil {
					return err
				}
				cfg.NPIFilter = filter
			}

			logger.Info("flattening", "url", cfg.URL)
			if err := mrf.ProcessFile(ctx, &cfg); err != nil {
				return fmt.Errorf("flattening %s: %w", cfg.URL, err)
			}
			logger.Info("flattened", "url", cfg.URL, "out_dir", outDir)

			if s3URI != "" {
				bucket, prefix, err := sink.ParseS3URI(s3URI)
				if err != nil {
					return err
				}
				s3sink, err := sink.NewS3Sink(ctx, bucket, s3Region, prefix)
				if err != nil {
					return err
				}
				if err := s3sink.SyncDir(ctx, outDir); err != nil {
					return fmt.Errorf("syncing to %s: %w", s3URI, err)
				}
				logger.Info("synced", "destination", s3URI)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&url, "url", "", "MRF URL or local path (required)")
	cmd.Flags().StringVar(&file, "file", "", "identifier used for filename_hash, defaults to --url")
	cmd.Flags().StringVar(&outDir, "out-dir", "./out", "directory for the seven CSV tables")
	cmd.Flags().StringVar(&downloadsDir, "downloads-dir", "./downloads", "directory for zip extractions")
	cmd.Flags().StringVar(&codeFilterFile, "code-filter", "", "CSV of (billing_code_type, billing_code) pairs to keep")
	cmd.Flags().StringVar(&npiFilterFile, "npi-filter", "", "CSV of NPIs to keep")
	cmd.Flags().IntVar(&resolverWorkers, "resolver-workers", 0, "concurrent reference-fetch workers (0 = default 300)")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "debug, info, warn, or error")
	cmd.Flags().BoolVar(&noParallelGzip, "no-parallel-gzip", false, "use stdlib compress/gzip instead of pgzip")
	cmd.Flags().StringVar(&s3URI, "s3-sync", "", "s3://bucket/prefix to upload out_dir's CSVs to after flattening")
	cmd.Flags().StringVar(&s3Region, "s3-region", "us-east-1", "AWS region for --s3-sync")
	cmd.MarkFlagRequired("url")

	return cmd
}

func newBatchCmd() *cobra.Command {
	var (
		urlsFile        string
		outDir          string
		downloadsDir    string
		codeFilterFile  string
		npiFilterFile   string
		resolverWorkers int
		workers         int
		logLevel        string
		noProgress      bool
	)

	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Flatten many MRF files concurrently into a shared out_dir",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := applog.Setup(logLevel)
			ctx, cancel := withSignals()
			defer cancel()

			urls, err := readLines(urlsFile)
			if err != nil {
				return fmt.Errorf("reading %s: %w", urlsFile, err)
			}
			if len(urls) == 0 {
				return fmt.Errorf("no URLs found in %s", urlsFile)
			}

			base := mrf.Config{
				OutDir:          outDir,
				DownloadsDir:    downloadsDir,
				ResolverWorkers: resolverWorkers,
				UseParallelGzip: true,
			}
			if codeFilterFile != "" {
				filter, err := mrf.LoadCodeFilter(codeFilterFile)
				if err != nil {
					return err
				}
				base.CodeFilter = filter
			}
			if npiFilterFile != "" {
				filter, err := mrf.LoadNPIFilter(npiFilterFile)
				if err != nil {
					return err
				}
				base.NPIFilter = filter
			}

			var mgr progress.Manager
			if noProgress {
				mgr = &progress.LogManager{Logger: logger}
			} else {
				mgr = progress.NewMPBManager()
			}

			pool := worker.Pool{Workers: workers, Base: base, Progress: mgr}
			results := pool.Run(ctx, urls)

			failed := 0
			for _, r := range results {
				if r.Err != nil {
					failed++
					logger.Error("file failed", "url", r.URL, "error", r.Err)
				}
			}
			logger.Info("batch complete", "total", len(results), "failed", failed)
			if failed > 0 {
				return fmt.Errorf("%d of %d files failed", failed, len(results))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&urlsFile, "urls-file", "", "file with one MRF URL per line (required)")
	cmd.Flags().StringVar(&outDir, "out-dir", "./out", "directory for the seven CSV tables")
	cmd.Flags().StringVar(&downloadsDir, "downloads-dir", "./downloads", "directory for zip extractions")
	cmd.Flags().StringVar(&codeFilterFile, "code-filter", "", "CSV of (billing_code_type, billing_code) pairs to keep")
	cmd.Flags().StringVar(&npiFilterFile, "npi-filter", "", "CSV of NPIs to keep")
	cmd.Flags().IntVar(&resolverWorkers, "resolver-workers", 0, "concurrent reference-fetch workers per file (0 = default 300)")
	cmd.Flags().IntVar(&workers, "workers", 4, "files flattened concurrently")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "debug, info, warn, or error")
	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "use plain log lines instead of terminal progress bars")
	cmd.MarkFlagRequired("urls-file")

	return cmd
}

func newTOCCmd() *cobra.Command {
	var planID string

	cmd := &cobra.Command{
		Use:   "toc <toc-url>",
		Short: "Resolve a Table-of-Contents file to its in-network MRF URLs for one plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := withSignals()
			defer cancel()

			result, err := toc.FetchAndResolve(ctx, args[0], planID)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "# %s (%d matched structures)\n", result.ReportingEntityName, result.MatchedStructures)
			for _, u := range result.URLs {
				fmt.Println(u)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&planID, "plan-id", "", "plan_id to match within the TOC (required)")
	cmd.MarkFlagRequired("plan-id")
	return cmd
}

func newNPILookupCmd() *cobra.Command {
	var npiList string

	cmd := &cobra.Command{
		Use:   "npi-lookup",
		Short: "Look up NPIs in the NPPES registry, to validate an --npi-filter file before a long flatten run",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := withSignals()
			defer cancel()

			npis, err := parseNPIs(npiList)
			if err != nil {
				return err
			}
			infos, errs := npi.LookupAll(ctx, npis)
			notFound := 0
			for i, n := range npis {
				if errs[i] != nil {
					fmt.Printf("%d: error: %v\n", n, errs[i])
					continue
				}
				if infos[i] == nil {
					notFound++
					fmt.Printf("%d: not found\n", n)
					continue
				}
				fmt.Printf("%d: %s (%s) — %s\n", n, infos[i].Name, infos[i].Type, infos[i].PrimaryTaxonomy)
			}
			if notFound > 0 {
				return fmt.Errorf("%d of %d NPIs not found in the registry", notFound, len(npis))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&npiList, "npi", "", "comma-separated NPIs to look up (required)")
	cmd.MarkFlagRequired("npi")
	return cmd
}

func parseNPIs(list string) ([]int64, error) {
	var npis []int64
	for _, s := range strings.Split(list, ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid NPI %q: %w", s, err)
		}
		npis = append(npis, n)
	}
	return npis, nil
}

func readLines(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var lines []string
	for _, l := range strings.Split(string(data), "\n") {
		l = strings.TrimSpace(l)
		if l == "" || strings.HasPrefix(l, "#") {
			continue
		}
		lines = append(lines, l)
	}
	return lines, nil
}
