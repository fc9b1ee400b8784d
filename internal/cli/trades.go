package cli

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	jerrors "trade-journal/internal/errors"
	"trade-journal/internal/importer"
	"trade-journal/internal/journal"
	"trade-journal/internal/models"
)

const tradeTimeout = 2 * time.Minute

// addTradeCommands adds trade journal commands.
func addTradeCommands(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:     "trades",
		Aliases: []string{"t"},
		Short:   "Record and review trades",
		Long:    "List, add, import, annotate and remove journal trades.",
	}

	cmd.AddCommand(newTradesListCmd(app))
	cmd.AddCommand(newTradesShowCmd(app))
	cmd.AddCommand(newTradesAddCmd(app))
	cmd.AddCommand(newTradesImportCmd(app))
	cmd.AddCommand(newTradesUpdateCmd(app))
	cmd.AddCommand(newTradesDeleteCmd(app))
	cmd.AddCommand(newTradesAnnotateCmd(app))
	cmd.AddCommand(newTradesAttachCmd(app))
	cmd.AddCommand(newTradesDetachCmd(app))
	cmd.AddCommand(newTradesExportCmd(app))

	rootCmd.AddCommand(cmd)
}

// withJournal opens the signed-in user's journal for the duration of fn.
func withJournal(app *App, fn func(ctx context.Context, sess *journal.Session) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), tradeTimeout)
	defer cancel()

	sess, err := app.OpenJournal(ctx)
	if err != nil {
		return err
	}
	defer sess.Close()
	return fn(ctx, sess)
}

func newTradesListCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List trades",
		Example: `  journal trades list
  journal trades list --symbol ES --limit 20`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			symbol, _ := cmd.Flags().GetString("symbol")
			limit, _ := cmd.Flags().GetInt("limit")

			return withJournal(app, func(ctx context.Context, sess *journal.Session) error {
				trades := filterTrades(sess.Store.Trades(), symbol)
				sortByOpenDate(trades)
				if limit > 0 && len(trades) > limit {
					trades = trades[:limit]
				}

				if output.IsJSON() {
					return output.JSON(trades)
				}
				if len(trades) == 0 {
					output.Info("No trades recorded yet.")
					output.Dim("Tip: add one with 'journal trades add' or import with 'journal trades import'.")
					return nil
				}
				renderTrades(output, trades, app.Engine.Location())
				output.Printf("  %s\n", output.SyncState(sess.Store.State()))
				return nil
			})
		},
	}
	cmd.Flags().String("symbol", "", "only trades in this symbol")
	cmd.Flags().Int("limit", 0, "show at most this many trades")
	return cmd
}

func filterTrades(trades []models.Trade, symbol string) []models.Trade {
	if symbol == "" {
		return trades
	}
	out := trades[:0:0]
	for _, t := range trades {
		if strings.EqualFold(t.Trade.Symbol, symbol) {
			out = append(out, t)
		}
	}
	return out
}

// sortByOpenDate orders newest first. Dates are compared as text, which
// matches chronological order for the ISO layouts trades are stored in.
func sortByOpenDate(trades []models.Trade) {
	sort.SliceStable(trades, func(i, j int) bool {
		return trades[i].Trade.OpenDate > trades[j].Trade.OpenDate
	})
}

func renderTrades(output *Output, trades []models.Trade, loc *time.Location) {
	var total float64
	table := NewTable(output, "Date", "Symbol", "Side", "Qty", "Entry", "Exit", "P&L", "Status", "ID")
	for _, t := range trades {
		d := t.Trade
		total += d.PnL
		table.AddRow(
			FormatDate(d.OpenDate, loc),
			d.Symbol,
			output.FormatSide(d.Side),
			FormatQty(d.Qty),
			FormatPrice(d.Entry),
			FormatPrice(d.Exit),
			output.FormatPnL(d.PnL),
			output.FormatStatus(d.Status),
			TruncateString(t.TradeID, 12),
		)
	}
	table.Render()
	output.Println()
	output.Printf("  %d trades, total P&L %s\n", len(trades), output.FormatPnL(total))
}

func newTradesShowCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show <trade-id>",
		Short: "Show one trade with its annotations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			return withJournal(app, func(ctx context.Context, sess *journal.Session) error {
				t, ok := sess.Store.Find(args[0])
				if !ok {
					return fmt.Errorf("trade %s: %w", args[0], jerrors.ErrDocumentNotFound)
				}
				if output.IsJSON() {
					return output.JSON(t)
				}

				loc := app.Engine.Location()
				d := t.Trade
				output.Bold("%s %s  %s", output.FormatSide(d.Side), d.Symbol, t.TradeID)
				output.Printf("  Opened:  %s\n", FormatDate(d.OpenDate, loc))
				output.Printf("  Closed:  %s\n", FormatDate(d.CloseDate, loc))
				output.Printf("  Entry:   %s  Exit: %s  Qty: %s\n", FormatPrice(d.Entry), FormatPrice(d.Exit), FormatQty(d.Qty))
				output.Printf("  P&L:     %s (%s)\n", output.FormatPnL(d.PnL), output.FormatStatus(d.Status))
				output.Println()

				p := t.Psychology
				output.Bold("Psychology")
				output.Printf("  Greedy: %v  FOMO: %v  Revenge: %v\n", p.IsGreedy, p.IsFomo, p.IsRevenge)
				if p.EmotionalState != "" {
					output.Printf("  State:  %s\n", p.EmotionalState)
				}
				if p.Notes != "" {
					output.Printf("  Notes:  %s\n", p.Notes)
				}
				output.Println()

				a := t.Analysis
				output.Bold("Analysis")
				output.Printf("  Setup:  %s  R:R %.2f\n", a.SetupType, a.RiskRewardRatio)
				if len(a.Mistakes) > 0 {
					output.Printf("  Mistakes: %s\n", strings.Join(a.Mistakes, ", "))
				}
				output.Println()

				if len(t.Images) > 0 {
					output.Bold("Charts")
					for _, img := range t.Images {
						output.Printf("  [%s] %s\n", img.Timeframe, img.URL)
						if img.Description != "" {
							output.Dim("      %s", img.Description)
						}
					}
				}
				return nil
			})
		},
	}
}

// detailFlags registers the trade detail flags shared by add and update.
func detailFlags(cmd *cobra.Command) {
	cmd.Flags().String("symbol", "", "instrument symbol")
	cmd.Flags().String("side", "", "buy or sell")
	cmd.Flags().Float64("entry", 0, "entry price")
	cmd.Flags().Float64("exit", 0, "exit price")
	cmd.Flags().Float64("qty", 0, "quantity")
	cmd.Flags().Float64("pnl", 0, "realized profit or loss")
	cmd.Flags().String("status", "", "tp, sl, be or manual")
	cmd.Flags().String("open", "", "open date (YYYY-MM-DD or RFC 3339)")
	cmd.Flags().String("close", "", "close date (YYYY-MM-DD or RFC 3339)")
}

// applyDetailFlags copies every flag the user set onto d.
func applyDetailFlags(cmd *cobra.Command, d *models.TradeDetails) {
	f := cmd.Flags()
	if f.Changed("symbol") {
		d.Symbol, _ = f.GetString("symbol")
	}
	if f.Changed("side") {
		s, _ := f.GetString("side")
		d.Side = models.Side(strings.ToLower(s))
	}
	if f.Changed("entry") {
		d.Entry, _ = f.GetFloat64("entry")
	}
	if f.Changed("exit") {
		d.Exit, _ = f.GetFloat64("exit")
	}
	if f.Changed("qty") {
		d.Qty, _ = f.GetFloat64("qty")
	}
	if f.Changed("pnl") {
		d.PnL, _ = f.GetFloat64("pnl")
	}
	if f.Changed("status") {
		s, _ := f.GetString("status")
		d.Status = models.Status(strings.ToLower(s))
	}
	if f.Changed("open") {
		d.OpenDate, _ = f.GetString("open")
	}
	if f.Changed("close") {
		d.CloseDate, _ = f.GetString("close")
	}
}

func newTradesAddCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Record a trade",
		Example: `  journal trades add --symbol ES --side buy --entry 5000 --exit 5012 --qty 1 \
    --pnl 600 --status tp --open 2024-03-05T14:30:00Z --close 2024-03-05T15:10:00Z`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			id, _ := cmd.Flags().GetString("id")
			if id == "" {
				id = uuid.NewString()
			}
			d := models.TradeDetails{TradeID: id, Status: models.StatusManual}
			applyDetailFlags(cmd, &d)

			return withJournal(app, func(ctx context.Context, sess *journal.Session) error {
				if err := sess.Mutator.AddTrades(ctx, []models.TradeDetails{d}); err != nil {
					output.Error("Failed to add trade: %v", err)
					return err
				}
				if output.IsJSON() {
					return output.JSON(d)
				}
				output.Success("✓ Trade %s recorded", d.TradeID)
				return nil
			})
		},
	}
	detailFlags(cmd)
	cmd.Flags().String("id", "", "trade id (generated if omitted)")
	return cmd
}

func newTradesImportCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import trades from CSV, a screenshot, or statement text",
		Long: `Import trades from one source.

--csv reads a file with a header row naming the trade columns. --screenshot
and --text send a broker screenshot or pasted statement text to the import
service. Parsed trades are shown and then added; use --dry-run to only show
them.`,
		Example: `  journal trades import --csv trades.csv
  journal trades import --screenshot fills.png --dry-run
  journal trades import --text "ES long 5000 -> 5012, +600"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			csvPath, _ := cmd.Flags().GetString("csv")
			shotPath, _ := cmd.Flags().GetString("screenshot")
			text, _ := cmd.Flags().GetString("text")
			dryRun, _ := cmd.Flags().GetBool("dry-run")

			sources := 0
			for _, s := range []string{csvPath, shotPath, text} {
				if s != "" {
					sources++
				}
			}
			if sources != 1 {
				return fmt.Errorf("exactly one of --csv, --screenshot or --text is required")
			}

			var parse func(context.Context) ([]models.TradeDetails, error)
			switch {
			case csvPath != "":
				parse = func(ctx context.Context) ([]models.TradeDetails, error) {
					return readCSVFile(csvPath)
				}
			case shotPath != "":
				parse = func(ctx context.Context) ([]models.TradeDetails, error) {
					f, err := os.Open(shotPath)
					if err != nil {
						return nil, fmt.Errorf("failed to open screenshot: %w", err)
					}
					defer f.Close()
					return app.Importer().ParseImage(ctx, filepath.Base(shotPath), f)
				}
			default:
				parse = func(ctx context.Context) ([]models.TradeDetails, error) {
					return app.Importer().ParseText(ctx, text)
				}
			}

			return withJournal(app, func(ctx context.Context, sess *journal.Session) error {
				details, err := importer.Guarded(ctx, app.Access, app.Audit, sess.UserID(), parse)
				if err != nil {
					output.Error("Import failed: %v", err)
					return err
				}

				if !dryRun && len(details) > 0 {
					if err := sess.Mutator.AddTrades(ctx, details); err != nil {
						output.Error("Failed to add imported trades: %v", err)
						return err
					}
				}

				if output.IsJSON() {
					return output.JSON(map[string]interface{}{
						"trades": details,
						"added":  !dryRun,
					})
				}
				if len(details) == 0 {
					output.Warning("No trades found.")
					return nil
				}

				trades := make([]models.Trade, len(details))
				for i, d := range details {
					trades[i] = models.NewTrade(d)
				}
				renderTrades(output, trades, app.Engine.Location())
				output.Println()
				if dryRun {
					output.Info("Dry run: %d trades parsed, nothing added", len(details))
				} else {
					output.Success("✓ %d trades imported", len(details))
				}
				return nil
			})
		},
	}
	cmd.Flags().String("csv", "", "CSV file to import")
	cmd.Flags().String("screenshot", "", "broker screenshot to parse")
	cmd.Flags().String("text", "", "statement text to parse")
	cmd.Flags().Bool("dry-run", false, "show parsed trades without adding them")
	return cmd
}

func readCSVFile(path string) ([]models.TradeDetails, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open csv: %w", err)
	}
	defer f.Close()

	details, err := importer.ReadCSV(f)
	if err != nil {
		return nil, err
	}
	if err := importer.Validate(nil, details); err != nil {
		return nil, err
	}
	return details, nil
}

func newTradesUpdateCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update <trade-id>",
		Short: "Change a trade's details",
		Example: `  journal trades update 3f2a... --exit 5015 --pnl 750`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			return withJournal(app, func(ctx context.Context, sess *journal.Session) error {
				t, ok := sess.Store.Find(args[0])
				if !ok {
					return fmt.Errorf("trade %s: %w", args[0], jerrors.ErrDocumentNotFound)
				}
				applyDetailFlags(cmd, &t.Trade)
				if err := sess.Mutator.UpdateTrade(ctx, t); err != nil {
					output.Error("Failed to update trade: %v", err)
					return err
				}
				if output.IsJSON() {
					return output.JSON(t)
				}
				output.Success("✓ Trade %s updated", t.TradeID)
				return nil
			})
		},
	}
	detailFlags(cmd)
	return cmd
}

func newTradesDeleteCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <trade-id>",
		Aliases: []string{"rm"},
		Short:   "Remove a trade",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			return withJournal(app, func(ctx context.Context, sess *journal.Session) error {
				if err := sess.Mutator.DeleteTrade(ctx, args[0]); err != nil {
					output.Error("Failed to delete trade: %v", err)
					return err
				}
				if output.IsJSON() {
					return output.JSON(map[string]string{"deleted": args[0]})
				}
				output.Success("✓ Trade %s deleted", args[0])
				return nil
			})
		},
	}
}

func newTradesAnnotateCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "annotate <trade-id>",
		Short: "Record psychology, setup analysis and execution metrics",
		Example: `  journal trades annotate 3f2a... --fomo --emotion anxious --notes "chased the breakout"
  journal trades annotate 3f2a... --setup breakout --rr 2.5 --mistake "late entry"
  journal trades annotate 3f2a... --risk 200 --session "NY open" --conditions trending`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			return withJournal(app, func(ctx context.Context, sess *journal.Session) error {
				t, ok := sess.Store.Find(args[0])
				if !ok {
					return fmt.Errorf("trade %s: %w", args[0], jerrors.ErrDocumentNotFound)
				}
				applyAnnotationFlags(cmd, &t)
				if err := sess.Mutator.UpdateTrade(ctx, t); err != nil {
					output.Error("Failed to annotate trade: %v", err)
					return err
				}
				if output.IsJSON() {
					return output.JSON(t)
				}
				output.Success("✓ Trade %s annotated", t.TradeID)
				return nil
			})
		},
	}

	f := cmd.Flags()
	f.Bool("greedy", false, "trade was driven by greed")
	f.Bool("fomo", false, "trade was driven by fear of missing out")
	f.Bool("revenge", false, "trade was a revenge trade")
	f.String("emotion", "", "emotional state")
	f.String("notes", "", "free-form notes")
	f.String("setup", "", "setup type")
	f.Float64("rr", 0, "planned risk/reward ratio")
	f.StringSlice("mistake", nil, "mistake made (repeatable, replaces the list)")
	f.Float64("risk", 0, "amount risked")
	f.Float64("sl-deviation", 0, "stop-loss deviation")
	f.Float64("target-deviation", 0, "target deviation")
	f.String("conditions", "", "market conditions")
	f.String("session", "", "trading session")
	return cmd
}

func applyAnnotationFlags(cmd *cobra.Command, t *models.Trade) {
	f := cmd.Flags()
	if f.Changed("greedy") {
		t.Psychology.IsGreedy, _ = f.GetBool("greedy")
	}
	if f.Changed("fomo") {
		t.Psychology.IsFomo, _ = f.GetBool("fomo")
	}
	if f.Changed("revenge") {
		t.Psychology.IsRevenge, _ = f.GetBool("revenge")
	}
	if f.Changed("emotion") {
		t.Psychology.EmotionalState, _ = f.GetString("emotion")
	}
	if f.Changed("notes") {
		t.Psychology.Notes, _ = f.GetString("notes")
	}
	if f.Changed("setup") {
		t.Analysis.SetupType, _ = f.GetString("setup")
	}
	if f.Changed("rr") {
		t.Analysis.RiskRewardRatio, _ = f.GetFloat64("rr")
	}
	if f.Changed("mistake") {
		t.Analysis.Mistakes, _ = f.GetStringSlice("mistake")
	}
	if f.Changed("risk") {
		t.Metrics.RiskPerTrade, _ = f.GetFloat64("risk")
	}
	if f.Changed("sl-deviation") {
		t.Metrics.StopLossDeviation, _ = f.GetFloat64("sl-deviation")
	}
	if f.Changed("target-deviation") {
		t.Metrics.TargetDeviation, _ = f.GetFloat64("target-deviation")
	}
	if f.Changed("conditions") {
		t.Metrics.MarketConditions, _ = f.GetString("conditions")
	}
	if f.Changed("session") {
		t.Metrics.TradingSession, _ = f.GetString("session")
	}
}

func newTradesAttachCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "attach <trade-id> <image>",
		Short: "Attach a chart screenshot to a trade",
		Example: `  journal trades attach 3f2a... entry.png --timeframe 5m --description "entry on retest"`,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			timeframe, _ := cmd.Flags().GetString("timeframe")
			description, _ := cmd.Flags().GetString("description")

			f, err := os.Open(args[1])
			if err != nil {
				return fmt.Errorf("failed to open image: %w", err)
			}
			defer f.Close()

			head := make([]byte, 512)
			n, _ := io.ReadFull(f, head)
			contentType := http.DetectContentType(head[:n])
			if !strings.HasPrefix(contentType, "image/") {
				return jerrors.NewValidationError("image", args[1], "please upload an image file")
			}
			if _, err := f.Seek(0, io.SeekStart); err != nil {
				return err
			}

			return withJournal(app, func(ctx context.Context, sess *journal.Session) error {
				img, err := sess.Mutator.AttachImage(ctx, args[0], filepath.Base(args[1]), f, contentType, timeframe, description)
				if err != nil {
					output.Error("Failed to attach image: %v", err)
					return err
				}
				if output.IsJSON() {
					return output.JSON(img)
				}
				output.Success("✓ Image attached")
				output.Dim("%s", img.URL)
				return nil
			})
		},
	}
	cmd.Flags().String("timeframe", "", "chart timeframe, e.g. 5m or 1h")
	cmd.Flags().String("description", "", "what the chart shows")
	return cmd
}

func newTradesDetachCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "detach <trade-id> <image-url>",
		Short: "Remove a chart screenshot from a trade",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			return withJournal(app, func(ctx context.Context, sess *journal.Session) error {
				if err := sess.Mutator.DetachImage(ctx, args[0], args[1]); err != nil {
					output.Error("Failed to detach image: %v", err)
					return err
				}
				if output.IsJSON() {
					return output.JSON(map[string]string{"detached": args[1]})
				}
				output.Success("✓ Image removed")
				return nil
			})
		},
	}
}

func newTradesExportCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "export <file.csv>",
		Short: "Write all trades to a CSV file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			return withJournal(app, func(ctx context.Context, sess *journal.Session) error {
				f, err := os.Create(args[0])
				if err != nil {
					return fmt.Errorf("failed to create export file: %w", err)
				}
				details := sess.Store.Details()
				if err := importer.WriteCSV(f, details); err != nil {
					f.Close()
					return err
				}
				if err := f.Close(); err != nil {
					return err
				}

				if output.IsJSON() {
					return output.JSON(map[string]interface{}{"path": args[0], "trades": len(details)})
				}
				output.Success("✓ %d trades written to %s", len(details), args[0])
				return nil
			})
		},
	}
}
