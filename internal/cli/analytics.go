package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"trade-journal/internal/analytics"
	"trade-journal/internal/journal"
	"trade-journal/internal/models"
)

// addAnalyticsCommands adds performance review commands.
func addAnalyticsCommands(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:     "analytics",
		Aliases: []string{"stats"},
		Short:   "Performance by day, week and month",
		Long: `Summarize journal performance.

Trades are bucketed by close date in the local time zone. Weeks start on
Monday. Trades whose dates do not parse are left out and counted.`,
	}

	for _, tf := range []analytics.Timeframe{analytics.Daily, analytics.Weekly, analytics.Monthly} {
		cmd.AddCommand(newBucketsCmd(app, tf))
	}
	cmd.AddCommand(newSummaryCmd(app))
	cmd.AddCommand(newCalendarCmd(app))
	cmd.AddCommand(newDistributionCmd(app))
	cmd.AddCommand(newSetupsCmd(app))
	cmd.AddCommand(newAnalyticsExportCmd(app))

	rootCmd.AddCommand(cmd)
}

func newBucketsCmd(app *App, tf analytics.Timeframe) *cobra.Command {
	cmd := &cobra.Command{
		Use:   string(tf),
		Short: fmt.Sprintf("Show %s performance", tf),
		Example: fmt.Sprintf(`  journal analytics %[1]s
  journal analytics %[1]s --sort totalPnl --desc --limit 10
  journal analytics %[1]s --filter date=2024-03`, tf),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			q, err := tableQueryFromFlags(cmd)
			if err != nil {
				return err
			}

			return withJournal(app, func(ctx context.Context, sess *journal.Session) error {
				agg := app.Engine.Aggregate(sess.Store.Details())
				page, err := analytics.Table(agg.Buckets(tf), q)
				if err != nil {
					return err
				}

				if output.IsJSON() {
					return output.JSON(map[string]interface{}{
						"timeframe": tf,
						"skipped":   agg.Skipped,
						"table":     page,
					})
				}
				if page.TotalRows == 0 {
					output.Info("No %s data yet.", tf)
					return nil
				}
				renderBuckets(output, page.Rows)
				if page.TotalPages > 1 {
					output.Dim("Page %d of %d (%d rows)", page.Page, page.TotalPages, page.TotalRows)
				}
				if agg.Skipped > 0 {
					output.Warning("%d trades skipped: unparseable dates", agg.Skipped)
				}
				return nil
			})
		},
	}
	cmd.Flags().String("sort", string(analytics.ColDate), "column to sort by")
	cmd.Flags().Bool("desc", false, "sort descending")
	cmd.Flags().Int("limit", 0, "rows per page (0 for all)")
	cmd.Flags().Int("page", 1, "page to show")
	cmd.Flags().StringSlice("filter", nil, "column=substring filter (repeatable)")
	return cmd
}

func tableQueryFromFlags(cmd *cobra.Command) (analytics.TableQuery, error) {
	sortBy, _ := cmd.Flags().GetString("sort")
	desc, _ := cmd.Flags().GetBool("desc")
	limit, _ := cmd.Flags().GetInt("limit")
	page, _ := cmd.Flags().GetInt("page")
	filters, _ := cmd.Flags().GetStringSlice("filter")

	q := analytics.TableQuery{
		SortBy:   analytics.Column(sortBy),
		Desc:     desc,
		Page:     page,
		PageSize: limit,
		Filters:  make(map[analytics.Column]string, len(filters)),
	}
	for _, f := range filters {
		col, val, ok := strings.Cut(f, "=")
		if !ok {
			return q, fmt.Errorf("invalid filter %q, expected column=value", f)
		}
		q.Filters[analytics.Column(col)] = val
	}
	return q, nil
}

func renderBuckets(output *Output, rows []models.AggregatedData) {
	table := NewTable(output, "Period", "Trades", "P&L", "Won", "Lost", "Best", "Worst", "Buy/Sell", "Avg P&L", "Avg Hold")
	for _, r := range rows {
		table.AddRow(
			r.Date,
			fmt.Sprintf("%d", r.TotalTrades),
			output.FormatPnL(r.TotalPnL),
			fmt.Sprintf("%d", r.ProfitTrades),
			fmt.Sprintf("%d", r.LossTrades),
			output.FormatPnL(r.MaxProfit),
			output.FormatPnL(r.MaxLoss),
			fmt.Sprintf("%d/%d", r.BuyTrades, r.SellTrades),
			output.FormatPnL(r.AveragePnL),
			FormatMinutes(r.AverageDuration),
		)
	}
	table.Render()
}

func newSummaryCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Headline statistics over all trades",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			return withJournal(app, func(ctx context.Context, sess *journal.Session) error {
				s := app.Engine.Summarize(sess.Store.Details())
				if output.IsJSON() {
					return output.JSON(s)
				}

				output.Bold("Performance Summary")
				output.Printf("  Trades:         %d (%d won, %d lost, %d flat)\n", s.TotalTrades, s.Wins, s.Losses, s.BreakEven)
				output.Printf("  Win rate:       %s\n", FormatWinRate(s.WinRate*100))
				output.Printf("  Total P&L:      %s\n", output.FormatPnL(s.TotalPnL))
				output.Printf("  Gross:          %s / %s\n", output.FormatPnL(s.GrossProfit), output.FormatPnL(s.GrossLoss))
				output.Printf("  Profit factor:  %.2f\n", s.ProfitFactor)
				output.Printf("  Avg win/loss:   %s / %s\n", output.FormatPnL(s.AverageWin), output.FormatPnL(s.AverageLoss))
				output.Printf("  Expectancy:     %s\n", output.FormatPnL(s.Expectancy))
				output.Printf("  Std deviation:  %s\n", FormatCurrency(s.PnLStdDev))
				output.Printf("  Largest:        %s / %s\n", output.FormatPnL(s.LargestWin), output.FormatPnL(s.LargestLoss))
				output.Printf("  Avg hold:       %s\n", FormatMinutes(s.AverageHoldingMinutes))
				return nil
			})
		},
	}
}

func newCalendarCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "calendar",
		Short: "Show a month of daily P&L",
		Example: `  journal analytics calendar
  journal analytics calendar --year 2024 --month 3`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			now := time.Now().In(app.Engine.Location())
			year, _ := cmd.Flags().GetInt("year")
			month, _ := cmd.Flags().GetInt("month")
			if year == 0 {
				year = now.Year()
			}
			if month == 0 {
				month = int(now.Month())
			}

			return withJournal(app, func(ctx context.Context, sess *journal.Session) error {
				cal, err := app.Engine.Calendar(app.Engine.Aggregate(sess.Store.Details()), year, time.Month(month))
				if err != nil {
					return err
				}
				if output.IsJSON() {
					return output.JSON(cal)
				}
				renderCalendar(output, cal)
				return nil
			})
		},
	}
	cmd.Flags().Int("year", 0, "year (default: current)")
	cmd.Flags().Int("month", 0, "month 1-12 (default: current)")
	return cmd
}

func renderCalendar(output *Output, cal analytics.Calendar) {
	output.Bold("%s %d", cal.Month, cal.Year)

	table := NewTable(output, "Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun", "Week")
	for _, w := range cal.Weeks {
		cells := make([]string, 0, 8)
		for _, d := range w.Days {
			switch {
			case !d.InMonth:
				cells = append(cells, output.ColoredString(ColorDim, fmt.Sprintf("%2d", d.Day)))
			case d.Bucket == nil:
				cells = append(cells, fmt.Sprintf("%2d", d.Day))
			default:
				cells = append(cells, fmt.Sprintf("%2d %s", d.Day, output.ColoredString(output.PnLColor(d.Bucket.TotalPnL), FormatCompact(d.Bucket.TotalPnL))))
			}
		}
		cells = append(cells, output.FormatPnL(w.PnL))
		table.AddRow(cells...)
	}
	table.Render()

	st := cal.Stats
	output.Println()
	output.Printf("  %d trades, %s  (%d up, %d down, %d flat)\n",
		st.TotalTrades, output.FormatPnL(st.TotalPnL), st.PositiveTrades, st.NegativeTrades, st.BreakEvenTrades)
}

func newDistributionCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:       "distribution <pnl|duration>",
		Short:     "Histogram of P&L or holding time",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"pnl", "duration"},
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			return withJournal(app, func(ctx context.Context, sess *journal.Session) error {
				var brackets []analytics.Bracket
				switch args[0] {
				case "pnl":
					brackets = app.Engine.PnLDistribution(sess.Store.Details())
				case "duration":
					brackets = app.Engine.DurationDistribution(sess.Store.Details())
				default:
					return fmt.Errorf("distribution must be pnl or duration")
				}

				if output.IsJSON() {
					return output.JSON(brackets)
				}
				renderHistogram(output, brackets)
				return nil
			})
		},
	}
}

func renderHistogram(output *Output, brackets []analytics.Bracket) {
	maxCount, width := 0, 0
	for _, b := range brackets {
		if b.Count > maxCount {
			maxCount = b.Count
		}
		if len(b.Label) > width {
			width = len(b.Label)
		}
	}

	const barWidth = 40
	for _, b := range brackets {
		n := 0
		if maxCount > 0 {
			n = b.Count * barWidth / maxCount
		}
		output.Printf("  %s  %s %d\n", PadLeft(b.Label, width), strings.Repeat("#", n), b.Count)
	}
}

func newSetupsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "setups",
		Short: "Win rate by setup type",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			return withJournal(app, func(ctx context.Context, sess *journal.Session) error {
				stats := analytics.WinRateBySetup(sess.Store.Trades())
				if output.IsJSON() {
					return output.JSON(stats)
				}

				table := NewTable(output, "Setup", "Trades", "Wins", "Win Rate")
				for _, s := range stats {
					table.AddRow(s.Setup, fmt.Sprintf("%d", s.TradeCount), fmt.Sprintf("%d", s.Wins), FormatWinRate(s.WinRate))
				}
				table.Render()
				return nil
			})
		},
	}
}

func newAnalyticsExportCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "export <file.xlsx>",
		Short: "Write daily, weekly and monthly sheets to a spreadsheet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			return withJournal(app, func(ctx context.Context, sess *journal.Session) error {
				f, err := os.Create(args[0])
				if err != nil {
					return fmt.Errorf("failed to create export file: %w", err)
				}
				if err := analytics.ExportXLSX(f, app.Engine.Aggregate(sess.Store.Details())); err != nil {
					f.Close()
					return err
				}
				if err := f.Close(); err != nil {
					return err
				}

				if output.IsJSON() {
					return output.JSON(map[string]string{"path": args[0]})
				}
				output.Success("✓ Spreadsheet written to %s", args[0])
				return nil
			})
		},
	}
}
