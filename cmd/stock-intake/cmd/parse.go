package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/rezonia/stock-intake/internal/export"
	"github.com/rezonia/stock-intake/internal/model"
	"github.com/rezonia/stock-intake/internal/processor"
)

var (
	invoiceFormat string
	outputFile    string
	timeout       time.Duration
)

var parseCmd = &cobra.Command{
	Use:   "parse [files...]",
	Short: "Parse invoice text files and match their items",
	Long: `Parse one or more invoice text files of one supplier layout and match
every recognized item against the product catalog.

Lines that cannot be read are skipped and reported as warnings. A result
needs review when any item is unmatched or matched below the review
threshold.

Output formats:
  - json:  full results (default)
  - table: one row per item
  - xlsx:  review sheet for a single invoice, edit it and pass it to commit

Examples:
  stock-intake parse receipt.txt --format receipt
  stock-intake parse invoices/*.txt --format webshop --catalog products.json -f table
  stock-intake parse metro.txt --format wholesale --catalog products.json -f xlsx -o review.xlsx`,
	Args: cobra.MinimumNArgs(1),
	RunE: runParse,
}

func init() {
	rootCmd.AddCommand(parseCmd)

	parseCmd.Flags().StringVar(&invoiceFormat, "format", "", "Invoice layout (receipt, wholesale, webshop)")
	parseCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")
	parseCmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Processing timeout for all files")
	_ = parseCmd.MarkFlagRequired("format")
}

func runParse(cmd *cobra.Command, args []string) error {
	files, err := collectFiles(args)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no files found to process")
	}
	if outputFormat == "xlsx" && len(files) != 1 {
		return fmt.Errorf("xlsx output takes exactly one invoice, got %d", len(files))
	}
	printVerbose("Found %d files to process\n", len(files))

	format := model.ParseFormat(invoiceFormat)
	inputs := make([]processor.Input, 0, len(files))
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", file, err)
		}
		inputs = append(inputs, processor.Input{Name: file, Text: string(data), Format: format})
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()
	results := newPipeline().ProcessBatch(ctx, inputs)

	return writeOutput(func(w io.Writer) error {
		switch outputFormat {
		case "json":
			return outputJSON(w, toParseResults(results))
		case "table":
			return outputTable(w, results)
		case "xlsx":
			if results[0].Error != nil {
				return results[0].Error
			}
			return export.WriteReview(w, results[0].Items)
		default:
			return fmt.Errorf("unsupported output format: %s", outputFormat)
		}
	})
}

func collectFiles(args []string) ([]string, error) {
	var files []string
	for _, arg := range args {
		matches, err := filepath.Glob(arg)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %s: %w", arg, err)
		}
		if len(matches) == 0 {
			matches = []string{arg}
		}
		for _, match := range matches {
			info, err := os.Stat(match)
			if err != nil {
				return nil, fmt.Errorf("file not found: %s", match)
			}
			if !info.IsDir() {
				files = append(files, match)
				continue
			}
			err = filepath.Walk(match, func(path string, info os.FileInfo, err error) error {
				if err != nil {
					return err
				}
				if !info.IsDir() && strings.EqualFold(filepath.Ext(path), ".txt") {
					files = append(files, path)
				}
				return nil
			})
			if err != nil {
				return nil, err
			}
		}
	}
	return files, nil
}

// ParseResult is the JSON shape of one processed file
type ParseResult struct {
	File        string                 `json:"file"`
	Success     bool                   `json:"success"`
	Metadata    *model.InvoiceMetadata `json:"metadata,omitempty"`
	Items       []model.AnnotatedItem  `json:"items,omitempty"`
	NeedsReview bool                   `json:"needs_review"`
	Warnings    []string               `json:"warnings,omitempty"`
	Error       string                 `json:"error,omitempty"`
}

func toParseResults(results []*processor.Result) []ParseResult {
	out := make([]ParseResult, 0, len(results))
	for _, r := range results {
		pr := ParseResult{
			File:        r.Name,
			Items:       r.Items,
			NeedsReview: r.NeedsReview,
			Warnings:    r.Warnings,
		}
		if r.Parse != nil {
			pr.Success = r.Parse.Success
			pr.Metadata = r.Parse.Metadata
			pr.Error = r.Parse.ErrorMessage
		}
		if r.Error != nil {
			pr.Success = false
			pr.Error = r.Error.Error()
		}
		out = append(out, pr)
	}
	return out
}

func writeOutput(write func(io.Writer) error) error {
	var w io.Writer = os.Stdout
	if outputFile != "" {
		f, err := os.Create(outputFile)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}
	return write(w)
}

func outputJSON(w io.Writer, v interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func outputTable(w io.Writer, results []*processor.Result) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tLINE\tPRODUCT\tQTY\tUNIT\tTOTAL\tMATCH\tCONFIDENCE\tPRODUCT_ID")
	fmt.Fprintln(tw, "----\t----\t-------\t---\t----\t-----\t-----\t----------\t----------")

	for _, r := range results {
		if r.Error != nil {
			fmt.Fprintf(tw, "%s\tERROR: %s\t\t\t\t\t\t\t\n", r.Name, r.Error)
			continue
		}
		if r.Parse != nil && !r.Parse.Success {
			fmt.Fprintf(tw, "%s\t%s\t\t\t\t\t\t\t\n", r.Name, r.Parse.ErrorMessage)
			continue
		}
		for _, a := range r.Items {
			productID := ""
			if a.Match.ProductID != nil {
				productID = fmt.Sprint(*a.Match.ProductID)
			}
			fmt.Fprintf(tw, "%s\t%d\t%s\t%d\t%s\t%s\t%s\t%.2f\t%s\n",
				r.Name,
				a.Item.Line,
				a.Item.ProductName,
				a.Item.Quantity,
				a.Item.UnitPrice.String(),
				a.Item.TotalPrice.StringFixed(2),
				a.Match.Type,
				a.Match.Confidence,
				productID,
			)
		}
		for _, warn := range r.Warnings {
			fmt.Fprintf(tw, "%s\tWARN: %s\t\t\t\t\t\t\t\n", r.Name, warn)
		}
	}
	return tw.Flush()
}
