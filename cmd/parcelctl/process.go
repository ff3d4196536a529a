package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"parcelcli/internal/config"
	"parcelcli/internal/dataprocessing"
	"parcelcli/internal/exporter"
	"parcelcli/internal/files"
	"parcelcli/internal/infrastructure"
	"parcelcli/internal/validation"
	"parcelcli/pkg/contracts/domain"
)

var (
	processCarrier    string
	processOut        string
	processCategories []string
	processAll        bool
)

var processCmd = &cobra.Command{
	Use:   "process --carrier fedex|ups --out DIR [flags] FILE...",
	Short: "Extract charge reports from carrier invoice files",
	Long: `Process loads each invoice file, runs the carrier pipeline over it and
writes <name>_report.csv and <name>_summary.txt into the output directory.

Arguments are invoice files (.csv or .xlsx); a directory argument is
scanned for invoice files. Every charge category found in a file is
included unless --categories restricts the report to the named ones.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runProcess,
}

func init() {
	rootCmd.AddCommand(processCmd)

	processCmd.Flags().StringVar(&processCarrier, "carrier", "", "carrier whose invoice layout to expect: fedex or ups")
	processCmd.Flags().StringVar(&processOut, "out", "", "directory to write reports into")
	processCmd.Flags().StringSliceVar(&processCategories, "categories", nil, "charge categories to include (default all)")
	processCmd.Flags().BoolVar(&processAll, "all", false, "include every charge category found")

	processCmd.MarkFlagRequired("carrier")
	processCmd.MarkFlagRequired("out")
	processCmd.MarkFlagsMutuallyExclusive("categories", "all")
}

// fileResult records the outcome of one input file.
type fileResult struct {
	input      string
	reportPath string
	rows       int
	categories int
	err        error
}

func runProcess(cmd *cobra.Command, args []string) error {
	carrier := domain.CarrierID(strings.ToLower(processCarrier))
	if !carrier.Valid() {
		return fmt.Errorf("unsupported carrier %q (expected fedex or ups)", processCarrier)
	}

	logger, err := runLogger()
	if err != nil {
		return err
	}

	validator := validation.NewFileValidator(logger)
	if err := validator.ValidateOutputDirectory(processOut); err != nil {
		return err
	}
	outDir, err := filepath.Abs(processOut)
	if err != nil {
		return fmt.Errorf("resolving output directory: %w", err)
	}

	inputs, err := collectInputs(logger, validator, args)
	if err != nil {
		return err
	}
	if len(inputs) == 0 {
		return fmt.Errorf("no invoice files to process")
	}

	paths, err := config.GetPaths()
	if err != nil {
		return fmt.Errorf("resolving application paths: %w", err)
	}
	// Work on a copy; GetPaths hands out the shared resolved tree
	outPaths := *paths
	outPaths.ExportsDir = outDir
	exp := exporter.NewReportExporter(&outPaths)

	logger.Info("Batch processing started",
		slog.String("carrier", string(carrier)),
		slog.Int("files", len(inputs)),
		slog.String("out_dir", outDir))

	start := time.Now()
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Processing %d %s invoice file(s)\n", len(inputs), carrier)

	// One slot per input; workers write disjoint indexes so results come
	// back in argument order regardless of completion order.
	results := make([]fileResult, len(inputs))

	// One trace ID per batch run, so every pipeline log line in the file
	// correlates back to this invocation.
	g, ctx := errgroup.WithContext(infrastructure.ContextWithTraceID(cmd.Context()))
	g.SetLimit(runtime.NumCPU())
	for i, input := range inputs {
		g.Go(func() error {
			results[i] = processFile(ctx, logger, exp, carrier, input, outDir)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	var failed int
	for _, res := range results {
		if res.err != nil {
			failed++
			fmt.Fprintf(out, "  FAIL %s: %v\n", filepath.Base(res.input), res.err)
			continue
		}
		fmt.Fprintf(out, "  OK   %s -> %s (%d rows, %d categories)\n",
			filepath.Base(res.input), filepath.Base(res.reportPath), res.rows, res.categories)
	}

	fmt.Fprintf(out, "Done: %d succeeded, %d failed in %s\n",
		len(inputs)-failed, failed, time.Since(start).Round(time.Millisecond))

	logger.Info("Batch processing finished",
		slog.Int("succeeded", len(inputs)-failed),
		slog.Int("failed", failed),
		slog.Duration("elapsed", time.Since(start)))

	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(inputs))
	}
	return nil
}

// collectInputs expands the argument list into concrete invoice files.
// Directory arguments go through the shared discovery rules so lock files
// and foreign extensions are skipped; explicit file arguments must
// validate as loadable invoices.
func collectInputs(logger *slog.Logger, validator *validation.FileValidator, args []string) ([]string, error) {
	discovery := files.NewDiscovery("")

	var inputs []string
	seen := make(map[string]struct{})
	add := func(path string) {
		if _, ok := seen[path]; ok {
			return
		}
		seen[path] = struct{}{}
		inputs = append(inputs, path)
	}

	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", arg, err)
		}

		if info.IsDir() {
			found, err := discovery.FindInvoiceFiles(arg)
			if err != nil {
				return nil, err
			}
			if len(found) == 0 {
				logger.Warn("No invoice files in directory", slog.String("directory", arg))
			}
			for _, f := range found {
				add(f.Path)
			}
			continue
		}

		if err := validator.ValidateInvoiceFile(arg); err != nil {
			return nil, err
		}
		add(arg)
	}

	return inputs, nil
}

// processFile runs one invoice through the carrier pipeline and writes
// its report and summary into the output directory.
func processFile(ctx context.Context, logger *slog.Logger, exp *exporter.ReportExporter, carrier domain.CarrierID, input, outDir string) fileResult {
	res := fileResult{input: input}

	loader := dataprocessing.NewLoader(logger)
	table, err := loader.LoadFile(input)
	if err != nil {
		res.err = err
		return res
	}

	var (
		visible   *domain.Table
		summaries []domain.CategorySummary
	)

	switch carrier {
	case domain.CarrierUPS:
		aggregator := dataprocessing.NewAggregator(logger)
		report, err := aggregator.Prepare(ctx, table)
		if err != nil {
			res.err = err
			return res
		}
		selection, err := resolveSelection(report.Categories, input)
		if err != nil {
			res.err = err
			return res
		}
		visible = aggregator.Pivot(ctx, report, selection)
		summaries = aggregator.Summarize(ctx, report, selection)
	default:
		reshaper := dataprocessing.NewReshaper(logger, dataprocessing.DefaultReshaperConfig())
		report, err := reshaper.Reshape(ctx, table)
		if err != nil {
			res.err = err
			return res
		}
		selection, err := resolveSelection(report.Categories, input)
		if err != nil {
			res.err = err
			return res
		}
		visible = reshaper.Visible(report, selection)
		summaries = reshaper.Summarize(ctx, report, selection)
	}

	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	res.reportPath = filepath.Join(outDir, base+"_report.csv")
	if err := exp.ExportTable(visible, res.reportPath); err != nil {
		res.err = err
		return res
	}

	if err := writeSummary(filepath.Join(outDir, base+"_summary.txt"), carrier, summaries); err != nil {
		res.err = err
		return res
	}

	res.rows = visible.RowCount()
	res.categories = len(summaries)

	logger.InfoContext(ctx, "Invoice processed",
		slog.String("carrier", string(carrier)),
		slog.String("input", input),
		slog.String("report", res.reportPath),
		slog.Int("rows", res.rows),
		slog.Int("categories", res.categories))

	return res
}

// resolveSelection maps the category flags onto one file's category
// universe. Without --categories every category is included; with it the
// requested names must match at least one category in the file.
func resolveSelection(universe []string, input string) ([]string, error) {
	if processAll || len(processCategories) == 0 {
		return universe, nil
	}
	active := dataprocessing.IntersectSelection(universe, processCategories)
	if len(active) == 0 {
		return nil, fmt.Errorf("none of the requested categories appear in %s", filepath.Base(input))
	}
	return active, nil
}

// writeSummary writes the per-category summary block for one report.
func writeSummary(path string, carrier domain.CarrierID, summaries []domain.CategorySummary) error {
	text := dataprocessing.BuildSummaryText(carrier, summaries)
	if text != "" {
		text += "\n"
	}
	if err := os.WriteFile(path, []byte(text), 0644); err != nil {
		return fmt.Errorf("writing summary %s: %w", path, err)
	}
	return nil
}
