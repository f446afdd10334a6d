package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rezonia/stock-intake/internal/catalog"
	"github.com/rezonia/stock-intake/internal/model"
)

var articleNumber string

var matchCmd = &cobra.Command{
	Use:   "match <product name>",
	Short: "Match a single product name against the catalog",
	Long: `Look up one product name the way parse matches invoice items: barcode
first (when --article is given), then exact name, then fuzzy similarity.

Examples:
  stock-intake match "COCA COLA 0,33L DOSE" --catalog products.json
  stock-intake match "Cola" --article 5000112637922 --catalog products.json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runMatch,
}

func init() {
	rootCmd.AddCommand(matchCmd)

	matchCmd.Flags().StringVar(&articleNumber, "article", "", "Article number or barcode printed on the invoice")
}

func runMatch(cmd *cobra.Command, args []string) error {
	if cfg.CatalogFile == "" {
		return fmt.Errorf("match needs a catalog: set --catalog or CATALOG_FILE")
	}
	entries, err := catalog.NewFileSource(cfg.CatalogFile).Snapshot(cmd.Context())
	if err != nil {
		return err
	}

	item := model.ParsedItem{
		ProductName:   strings.Join(args, " "),
		Quantity:      1,
		ArticleNumber: articleNumber,
	}
	result := newMatcher().Match(item, entries)

	if outputFormat == "table" {
		if result.ProductID == nil {
			fmt.Fprintf(os.Stdout, "%s: no match\n", item.ProductName)
			return nil
		}
		fmt.Fprintf(os.Stdout, "%s -> #%d %s (%s, %.2f)\n",
			item.ProductName, *result.ProductID, *result.ProductName, result.Type, result.Confidence)
		return nil
	}
	return outputJSON(os.Stdout, result)
}
