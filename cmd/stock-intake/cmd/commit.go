package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/rezonia/stock-intake/internal/export"
	"github.com/rezonia/stock-intake/internal/model"
	"github.com/rezonia/stock-intake/internal/processor"
)

var reviewFile string

var commitCmd = &cobra.Command{
	Use:   "commit <file>",
	Short: "Save a reviewed invoice and book its items into stock",
	Long: `Parse an invoice again, apply the decisions from a review sheet written
by "parse -f xlsx", save the invoice and book every row marked "To Stock"
into the stock ledger.

Rows that cannot be booked are listed and do not stop the others. The
invoice is saved even when some rows fail.

Examples:
  stock-intake commit metro.txt --format wholesale --catalog products.json --review review.xlsx`,
	Args: cobra.ExactArgs(1),
	RunE: runCommit,
}

func init() {
	rootCmd.AddCommand(commitCmd)

	commitCmd.Flags().StringVar(&invoiceFormat, "format", "", "Invoice layout (receipt, wholesale, webshop)")
	commitCmd.Flags().StringVar(&reviewFile, "review", "", "Reviewed XLSX sheet")
	commitCmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Timeout for the whole commit")
	_ = commitCmd.MarkFlagRequired("format")
	_ = commitCmd.MarkFlagRequired("review")
}

func runCommit(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args[0], err)
	}
	result := newPipeline().Process(ctx, string(data), model.ParseFormat(invoiceFormat))
	if result.Error != nil {
		return result.Error
	}
	if !result.Parse.Success {
		return fmt.Errorf("nothing to commit in %s: %s", args[0], result.Parse.ErrorMessage)
	}

	f, err := os.Open(reviewFile)
	if err != nil {
		return err
	}
	selections, err := export.ReadSelections(f)
	f.Close()
	if err != nil {
		return err
	}
	printVerbose("Review selects %d of %d items\n", len(selections), len(result.Items))

	be, err := openBackend(ctx)
	if err != nil {
		return err
	}
	defer be.close()

	inv, itemErrs, err := processor.NewAssembler(be.invoices, be.ledger).
		Assemble(ctx, result.Parse.Metadata, result.Items, selections)
	for _, ie := range itemErrs {
		fmt.Fprintf(os.Stderr, "  %v\n", &ie)
	}
	if inv != nil {
		if oerr := outputJSON(os.Stdout, inv); oerr != nil && err == nil {
			err = oerr
		}
	}
	return err
}
