// ABOUTME: Text and JSON rendering for smsrelay-admin output
// ABOUTME: Tables go through tabwriter; JSON is indented for humans and jq alike

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
)

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format string
	Writer io.Writer
}

func (o *RootOptions) formatter(w io.Writer) *OutputFormatter {
	return &OutputFormatter{Format: o.Format, Writer: w}
}

// JSON reports whether machine output was requested.
func (f *OutputFormatter) JSON() bool { return f.Format == "json" }

// Emit writes v as JSON in json mode, or calls text otherwise.
func (f *OutputFormatter) Emit(v any, text func(w io.Writer)) error {
	if f.JSON() {
		enc := json.NewEncoder(f.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(f.Writer)
	return nil
}

// Table writes rows aligned under header.
func (f *OutputFormatter) Table(header []any, rows [][]any) {
	tw := tabwriter.NewWriter(f.Writer, 0, 4, 2, ' ', 0)
	writeRow(tw, header)
	for _, r := range rows {
		writeRow(tw, r)
	}
	_ = tw.Flush()
}

func writeRow(w io.Writer, cols []any) {
	for i, c := range cols {
		if i > 0 {
			fmt.Fprint(w, "\t")
		}
		fmt.Fprint(w, c)
	}
	fmt.Fprintln(w)
}

// Success prints a confirmation line in text mode, or v in json mode.
func (f *OutputFormatter) Success(v any, format string, args ...any) error {
	return f.Emit(v, func(w io.Writer) {
		fmt.Fprintln(w, color.GreenString("✓ ")+fmt.Sprintf(format, args...))
	})
}

func stamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}
