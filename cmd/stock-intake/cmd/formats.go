package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rezonia/stock-intake/internal/parser/text"
)

var formatsCmd = &cobra.Command{
	Use:   "formats",
	Short: "List supported invoice layouts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		registry := text.NewRegistry()

		tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "FORMAT\tAMOUNTS")
		for _, f := range registry.Formats() {
			p, err := registry.Select(f)
			if err != nil {
				return err
			}
			loc := p.Locale()
			fmt.Fprintf(tw, "%s\t1%c234%c56\n", f, loc.Thousands, loc.Decimal)
		}
		return tw.Flush()
	},
}

func init() {
	rootCmd.AddCommand(formatsCmd)
}
