package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"trade-journal/internal/journal"
	"trade-journal/internal/models"
)

// ANSI styles. They are only emitted when writing to a terminal.
const (
	ColorReset  = "\033[0m"
	ColorRed    = "\033[31m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorCyan   = "\033[36m"
	ColorBold   = "\033[1m"
	ColorDim    = "\033[2m"
)

var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*m`)

// Output writes command results as styled text or, with --json, as JSON.
type Output struct {
	w     io.Writer
	json  bool
	color bool
}

// NewOutput reads --json from cmd and writes to its output stream.
func NewOutput(cmd *cobra.Command) *Output {
	asJSON, _ := cmd.Flags().GetBool("json")
	w := cmd.OutOrStdout()
	return &Output{w: w, json: asJSON, color: !asJSON && stdoutIsTerminal(w)}
}

func stdoutIsTerminal(w io.Writer) bool {
	if w != os.Stdout {
		return false
	}
	fi, err := os.Stdout.Stat()
	return err == nil && fi.Mode()&os.ModeCharDevice != 0
}

// IsJSON reports whether --json was given.
func (o *Output) IsJSON() bool {
	return o.json
}

// JSON writes v indented.
func (o *Output) JSON(v interface{}) error {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (o *Output) Println(args ...interface{}) {
	fmt.Fprintln(o.w, args...)
}

func (o *Output) Printf(format string, args ...interface{}) {
	fmt.Fprintf(o.w, format, args...)
}

// Success, Error, Warning, Info, Bold and Dim print one styled line.
func (o *Output) Success(format string, args ...interface{}) { o.line(ColorGreen, format, args) }
func (o *Output) Error(format string, args ...interface{})   { o.line(ColorRed, format, args) }
func (o *Output) Warning(format string, args ...interface{}) { o.line(ColorYellow, format, args) }
func (o *Output) Info(format string, args ...interface{})    { o.line(ColorCyan, format, args) }
func (o *Output) Bold(format string, args ...interface{})    { o.line(ColorBold, format, args) }
func (o *Output) Dim(format string, args ...interface{})     { o.line(ColorDim, format, args) }

func (o *Output) line(style, format string, args []interface{}) {
	fmt.Fprintln(o.w, o.ColoredString(style, fmt.Sprintf(format, args...)))
}

// ColoredString wraps text in style when color is on.
func (o *Output) ColoredString(style, text string) string {
	if !o.color || style == "" {
		return text
	}
	return style + text + ColorReset
}

// PnLColor is green for gains, red for losses and plain for flat.
func (o *Output) PnLColor(pnl float64) string {
	switch {
	case pnl > 0:
		return ColorGreen
	case pnl < 0:
		return ColorRed
	}
	return ""
}

// FormatPnL renders a signed currency amount.
func (o *Output) FormatPnL(pnl float64) string {
	s := FormatCurrency(pnl)
	if pnl > 0 {
		s = "+" + s
	}
	return o.ColoredString(o.PnLColor(pnl), s)
}

var statusLabels = map[models.Status]struct{ label, style string }{
	models.StatusTakeProfit: {"TP", ColorGreen},
	models.StatusStopLoss:   {"SL", ColorRed},
	models.StatusBreakEven:  {"BE", ColorYellow},
	models.StatusManual:     {"MANUAL", ""},
}

// FormatStatus renders a trade outcome.
func (o *Output) FormatStatus(s models.Status) string {
	if l, ok := statusLabels[s]; ok {
		return o.ColoredString(l.style, l.label)
	}
	return string(s)
}

// FormatSide renders a trade direction.
func (o *Output) FormatSide(s models.Side) string {
	label := strings.ToUpper(string(s))
	switch {
	case s.Is(models.SideBuy):
		return o.ColoredString(ColorGreen, label)
	case s.Is(models.SideSell):
		return o.ColoredString(ColorRed, label)
	}
	return label
}

// SyncState describes the journal's load status.
func (o *Output) SyncState(st journal.State) string {
	switch st.Status {
	case journal.StatusSucceeded:
		return o.ColoredString(ColorGreen, "● synced")
	case journal.StatusLoading:
		return o.ColoredString(ColorYellow, "● loading")
	case journal.StatusFailed:
		return o.ColoredString(ColorRed, "● failed: "+st.Error)
	}
	return o.ColoredString(ColorDim, "● idle")
}

func visibleLen(s string) int {
	return utf8.RuneCountInString(ansiPattern.ReplaceAllString(s, ""))
}
