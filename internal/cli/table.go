package cli

import "strings"

// Table lays out rows in aligned columns. Cells may carry ANSI styles.
type Table struct {
	out     *Output
	headers []string
	rows    [][]string
}

func NewTable(out *Output, headers ...string) *Table {
	return &Table{out: out, headers: headers}
}

// AddRow appends a row. Cells beyond the header count are dropped.
func (t *Table) AddRow(cells ...string) {
	t.rows = append(t.rows, cells)
}

// Render prints the header, a rule and every row.
func (t *Table) Render() {
	if len(t.headers) == 0 {
		return
	}

	widths := make([]int, len(t.headers))
	measure := func(cells []string) {
		for i := 0; i < len(cells) && i < len(widths); i++ {
			if n := visibleLen(cells[i]); n > widths[i] {
				widths[i] = n
			}
		}
	}
	measure(t.headers)
	for _, r := range t.rows {
		measure(r)
	}

	rule := make([]string, len(widths))
	for i, w := range widths {
		rule[i] = strings.Repeat("-", w)
	}

	t.out.Println(t.out.ColoredString(ColorBold, t.join(t.headers, widths)))
	t.out.Println(t.out.ColoredString(ColorDim, strings.Join(rule, "  ")))
	for _, r := range t.rows {
		t.out.Println(t.join(r, widths))
	}
}

func (t *Table) join(cells []string, widths []int) string {
	var b strings.Builder
	for i, w := range widths {
		if i > 0 {
			b.WriteString("  ")
		}
		if i >= len(cells) {
			b.WriteString(strings.Repeat(" ", w))
			continue
		}
		b.WriteString(cells[i])
		if pad := w - visibleLen(cells[i]); pad > 0 {
			b.WriteString(strings.Repeat(" ", pad))
		}
	}
	return strings.TrimRight(b.String(), " ")
}
