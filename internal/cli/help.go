package cli

import (
	"github.com/spf13/cobra"
)

// addHelpCommands adds help and documentation commands.
func addHelpCommands(rootCmd *cobra.Command) {
	rootCmd.AddCommand(newCommandsCmd())
	rootCmd.AddCommand(newExamplesCmd())
}

type commandHelp struct {
	cmd  string
	desc string
}

var commandCategories = []struct {
	name     string
	commands []commandHelp
}{
	{
		name: "Account",
		commands: []commandHelp{
			{"auth signup <email>", "Create an account"},
			{"auth signin <email>", "Sign in and remember the session"},
			{"auth verify <token>", "Verify your email address"},
			{"auth signout", "End the session"},
			{"auth whoami", "Show the signed-in user"},
		},
	},
	{
		name: "Trades",
		commands: []commandHelp{
			{"trades list", "List trades"},
			{"trades show <id>", "One trade with annotations"},
			{"trades add", "Record a trade"},
			{"trades import", "Import from CSV, screenshot or text"},
			{"trades update <id>", "Change trade details"},
			{"trades annotate <id>", "Psychology, setup and execution notes"},
			{"trades attach <id> <image>", "Attach a chart"},
			{"trades detach <id> <url>", "Remove a chart"},
			{"trades delete <id>", "Remove a trade"},
			{"trades export <file.csv>", "Write trades to CSV"},
		},
	},
	{
		name: "Analytics",
		commands: []commandHelp{
			{"analytics daily|weekly|monthly", "Bucketed performance tables"},
			{"analytics summary", "Headline statistics"},
			{"analytics calendar", "Month of daily P&L"},
			{"analytics distribution pnl|duration", "Histograms"},
			{"analytics setups", "Win rate by setup"},
			{"analytics export <file.xlsx>", "Spreadsheet export"},
		},
	},
	{
		name: "Server",
		commands: []commandHelp{
			{"serve", "HTTP API with live websocket feed"},
		},
	},
	{
		name: "Other",
		commands: []commandHelp{
			{"config show|path|validate", "Configuration"},
			{"commands", "List all commands"},
			{"examples", "Common workflows"},
			{"version", "Version information"},
		},
	},
}

func newCommandsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "commands",
		Short: "List all commands by category",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			if output.IsJSON() {
				out := make(map[string]map[string]string, len(commandCategories))
				for _, cat := range commandCategories {
					m := make(map[string]string, len(cat.commands))
					for _, c := range cat.commands {
						m[c.cmd] = c.desc
					}
					out[cat.name] = m
				}
				return output.JSON(out)
			}

			output.Bold("Trade Journal Commands")
			output.Println()
			for _, cat := range commandCategories {
				output.Bold(cat.name)
				for _, c := range cat.commands {
					output.Printf("  %s %s\n", output.ColoredString(ColorCyan, PadRight(c.cmd, 40)), c.desc)
				}
				output.Println()
			}
			output.Dim("Use 'journal help <command>' for detailed help on any command")
			return nil
		},
	}
}

func newExamplesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "examples",
		Short: "Show common workflow examples",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)

			output.Bold("Getting started")
			output.Println("  journal auth signup me@example.com")
			output.Println("  journal auth verify <token>")
			output.Println("  journal auth signin me@example.com")
			output.Println()

			output.Bold("End of day review")
			output.Println("  journal trades import --screenshot ~/Desktop/fills.png")
			output.Println("  journal trades list --limit 10")
			output.Println("  journal trades annotate <id> --setup breakout --fomo --notes \"entered late\"")
			output.Println("  journal trades attach <id> chart.png --timeframe 5m")
			output.Println("  journal analytics daily --sort date --desc --limit 5")
			output.Println()

			output.Bold("Monthly review")
			output.Println("  journal analytics calendar")
			output.Println("  journal analytics summary")
			output.Println("  journal analytics setups")
			output.Println("  journal analytics export review.xlsx")
			output.Println()

			output.Bold("Moving data")
			output.Println("  journal trades export backup.csv")
			output.Println("  journal trades import --csv backup.csv --dry-run")
		},
	}
}
