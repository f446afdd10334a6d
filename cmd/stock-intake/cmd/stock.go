package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/rezonia/stock-intake/internal/ledger"
	"github.com/rezonia/stock-intake/internal/model"
)

var (
	productID  int64
	bestBefore string
	quantity   int
	batchID    string
	eventType  string
)

var stockCmd = &cobra.Command{
	Use:   "stock",
	Short: "Inspect and change the per-batch stock ledger",
	Long: `Work with the shelving event ledger. Stock is never stored; it is folded
from the events of each batch. An event that would take storage or shelf
below zero is rejected.

fold works on a JSON event file and needs no database. The other
subcommands use the Postgres ledger at DATABASE_URL.`,
}

var stockFoldCmd = &cobra.Command{
	Use:   "fold <events.json>",
	Short: "Fold a JSON array of shelving events into stock per batch",
	Args:  cobra.ExactArgs(1),
	RunE:  runStockFold,
}

var stockReceiveCmd = &cobra.Command{
	Use:     "receive",
	Short:   "Book delivered units of a product into storage",
	Example: `  stock-intake stock receive --product 7 --best-before 2024-12-31 --qty 24`,
	Args:    cobra.NoArgs,
	RunE:    runStockReceive,
}

var stockMoveCmd = &cobra.Command{
	Use:   "move",
	Short: "Append a shelving event to a batch",
	Long: `Append one shelving event. Types:
  AddedToStorage, AddedToShelf, MovedToShelf, MovedFromShelf,
  RemovedFromStorage, RemovedFromShelf, Consumed`,
	Example: `  stock-intake stock move --batch 6f1c... --type MovedToShelf --qty 6`,
	Args:    cobra.NoArgs,
	RunE:    runStockMove,
}

var stockShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show stock of a product per batch",
	Args:  cobra.NoArgs,
	RunE:  runStockShow,
}

func init() {
	rootCmd.AddCommand(stockCmd)
	stockCmd.AddCommand(stockFoldCmd, stockReceiveCmd, stockMoveCmd, stockShowCmd)

	stockReceiveCmd.Flags().Int64Var(&productID, "product", 0, "Catalog product ID")
	stockReceiveCmd.Flags().StringVar(&bestBefore, "best-before", "", "Best-before date (YYYY-MM-DD)")
	stockReceiveCmd.Flags().IntVar(&quantity, "qty", 0, "Units delivered")
	for _, name := range []string{"product", "best-before", "qty"} {
		_ = stockReceiveCmd.MarkFlagRequired(name)
	}

	stockMoveCmd.Flags().StringVar(&batchID, "batch", "", "Batch ID")
	stockMoveCmd.Flags().StringVar(&eventType, "type", "", "Event type")
	stockMoveCmd.Flags().IntVar(&quantity, "qty", 0, "Units moved")
	for _, name := range []string{"batch", "type", "qty"} {
		_ = stockMoveCmd.MarkFlagRequired(name)
	}

	stockShowCmd.Flags().Int64Var(&productID, "product", 0, "Catalog product ID")
	_ = stockShowCmd.MarkFlagRequired("product")
}

// FoldResult is the folded stock of one batch in an event file
type FoldResult struct {
	BatchID      uuid.UUID   `json:"batch_id"`
	Stock        model.Stock `json:"stock"`
	ShelvingRate float64     `json:"shelving_rate_per_week"`
	Error        string      `json:"error,omitempty"`
}

func runStockFold(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args[0], err)
	}
	var events []model.ShelvingEvent
	if err := json.Unmarshal(data, &events); err != nil {
		return fmt.Errorf("decode events: %w", err)
	}

	// file order stands in for append order
	byBatch := make(map[uuid.UUID][]model.ShelvingEvent)
	var order []uuid.UUID
	for i, ev := range events {
		if ev.Seq == 0 {
			ev.Seq = int64(i + 1)
		}
		if _, ok := byBatch[ev.BatchID]; !ok {
			order = append(order, ev.BatchID)
		}
		byBatch[ev.BatchID] = append(byBatch[ev.BatchID], ev)
	}

	results := make([]FoldResult, 0, len(order))
	for _, id := range order {
		evs := byBatch[id]
		r := FoldResult{BatchID: id, ShelvingRate: ledger.ShelvingRate(evs)}
		stock, err := ledger.Replay(evs)
		if err != nil {
			r.Error = err.Error()
			stock = ledger.Fold(evs)
		}
		r.Stock = stock
		results = append(results, r)
	}

	if outputFormat == "table" {
		tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "BATCH\tSTORAGE\tSHELF\tRATE/WEEK\tERROR")
		for _, r := range results {
			fmt.Fprintf(tw, "%s\t%d\t%d\t%.2f\t%s\n", r.BatchID, r.Stock.Storage, r.Stock.Shelf, r.ShelvingRate, r.Error)
		}
		return tw.Flush()
	}
	return outputJSON(os.Stdout, results)
}

func runStockReceive(cmd *cobra.Command, args []string) error {
	bb, err := time.Parse("2006-01-02", bestBefore)
	if err != nil {
		return fmt.Errorf("invalid --best-before %q: %w", bestBefore, err)
	}

	be, err := openBackend(cmd.Context())
	if err != nil {
		return err
	}
	defer be.close()

	ev, err := be.ledger.Receive(cmd.Context(), productID, bb, quantity, time.Now().UTC(), nil)
	if err != nil {
		return err
	}
	return outputJSON(os.Stdout, ev)
}

func runStockMove(cmd *cobra.Command, args []string) error {
	id, err := uuid.Parse(batchID)
	if err != nil {
		return fmt.Errorf("invalid --batch %q: %w", batchID, err)
	}

	be, err := openBackend(cmd.Context())
	if err != nil {
		return err
	}
	defer be.close()

	ev := &model.ShelvingEvent{
		BatchID:    id,
		Type:       model.EventType(eventType),
		Quantity:   quantity,
		OccurredAt: time.Now().UTC(),
	}
	if err := be.ledger.TryAppend(cmd.Context(), ev); err != nil {
		return err
	}
	stock, err := be.ledger.BatchStock(cmd.Context(), id)
	if err != nil {
		return err
	}
	return outputJSON(os.Stdout, struct {
		Event *model.ShelvingEvent `json:"event"`
		Stock model.BatchStock     `json:"batch"`
	}{ev, stock})
}

func runStockShow(cmd *cobra.Command, args []string) error {
	be, err := openBackend(cmd.Context())
	if err != nil {
		return err
	}
	defer be.close()

	ps, err := be.ledger.ProductStock(cmd.Context(), productID)
	if err != nil {
		return err
	}
	rate, err := be.ledger.ShelvingRate(cmd.Context(), productID)
	if err != nil {
		return err
	}

	if outputFormat == "table" {
		tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "BATCH\tBEST BEFORE\tSTORAGE\tSHELF")
		for _, b := range ps.Batches {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%d\n", b.Batch.ID, b.Batch.BestBefore.Format("2006-01-02"), b.Stock.Storage, b.Stock.Shelf)
		}
		fmt.Fprintf(tw, "TOTAL\t\t%d\t%d\n", ps.TotalStorage, ps.TotalShelf)
		fmt.Fprintf(tw, "RATE/WEEK\t%.2f\t\t\n", rate)
		return tw.Flush()
	}
	return outputJSON(os.Stdout, struct {
		model.ProductStock
		ShelvingRate float64 `json:"shelving_rate_per_week"`
	}{ps, rate})
}
