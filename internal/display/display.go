// Package display renders restore pipeline results for the terminal.
// Color and icon use degrade automatically when stdout is not a TTY or
// the environment opts out.
package display

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"
)

// Config controls renderer output.
type Config struct {
	ColorEnabled bool `mapstructure:"color_enabled"`
	UseIcons     bool `mapstructure:"use_icons"`
}

// DefaultConfig enables everything; detection trims what the terminal
// cannot handle.
func DefaultConfig() Config {
	return Config{ColorEnabled: true, UseIcons: true}
}

// Renderer writes formatted sections, status lines and tables.
type Renderer struct {
	out      io.Writer
	colors   bool
	icons    bool
	success  *color.Color
	warning  *color.Color
	errColor *color.Color
	info     *color.Color
	header   *color.Color
	muted    *color.Color
}

// NewRenderer builds a renderer for stdout with terminal detection.
func NewRenderer(config Config) *Renderer {
	return NewRendererTo(os.Stdout, config)
}

// NewRendererTo builds a renderer writing to out. Color is only kept
// when out is a real terminal that advertises support.
func NewRendererTo(out io.Writer, config Config) *Renderer {
	colors := config.ColorEnabled && supportsColor(out)
	r := &Renderer{
		out:      out,
		colors:   colors,
		icons:    config.UseIcons,
		success:  color.New(color.FgHiGreen),
		warning:  color.New(color.FgHiYellow),
		errColor: color.New(color.FgHiRed),
		info:     color.New(color.FgCyan),
		header:   color.New(color.FgHiBlue, color.Bold),
		muted:    color.New(color.FgWhite),
	}
	if !colors {
		for _, c := range []*color.Color{r.success, r.warning, r.errColor, r.info, r.header, r.muted} {
			c.DisableColor()
		}
	}
	return r
}

func supportsColor(out io.Writer) bool {
	f, ok := out.(*os.File)
	if !ok {
		return false
	}
	if !isatty.IsTerminal(f.Fd()) && !isatty.IsCygwinTerminal(f.Fd()) {
		return false
	}
	if os.Getenv("NO_COLOR") != "" || os.Getenv("TERM") == "dumb" {
		return false
	}
	return termenv.ColorProfile() != termenv.Ascii
}

func (r *Renderer) icon(unicode, ascii string) string {
	if r.icons {
		return unicode
	}
	return ascii
}

// Success prints a green checkmark line.
func (r *Renderer) Success(format string, args ...interface{}) {
	fmt.Fprintf(r.out, "%s %s\n", r.success.Sprint(r.icon("✓", "[OK]")), fmt.Sprintf(format, args...))
}

// Warning prints a yellow warning line.
func (r *Renderer) Warning(format string, args ...interface{}) {
	fmt.Fprintf(r.out, "%s %s\n", r.warning.Sprint(r.icon("⚠", "[WARN]")), fmt.Sprintf(format, args...))
}

// Error prints a red error line.
func (r *Renderer) Error(format string, args ...interface{}) {
	fmt.Fprintf(r.out, "%s %s\n", r.errColor.Sprint(r.icon("✗", "[ERROR]")), fmt.Sprintf(format, args...))
}

// Info prints a neutral informational line.
func (r *Renderer) Info(format string, args ...interface{}) {
	fmt.Fprintf(r.out, "%s %s\n", r.info.Sprint(r.icon("ℹ", "[INFO]")), fmt.Sprintf(format, args...))
}

// Header prints a bold section header with an underline.
func (r *Renderer) Header(title string) {
	fmt.Fprintf(r.out, "\n%s\n%s\n", r.header.Sprint(title), r.muted.Sprint(strings.Repeat("─", len([]rune(title)))))
}

// Table prints rows aligned under headers. Widths adapt to content.
func (r *Renderer) Table(headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len([]rune(h))
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len([]rune(cell)) > widths[i] {
				widths[i] = len([]rune(cell))
			}
		}
	}

	var line strings.Builder
	for i, h := range headers {
		line.WriteString(pad(h, widths[i]))
		if i < len(headers)-1 {
			line.WriteString("  ")
		}
	}
	fmt.Fprintln(r.out, r.header.Sprint(line.String()))

	for _, row := range rows {
		line.Reset()
		for i, cell := range row {
			if i >= len(widths) {
				break
			}
			line.WriteString(pad(cell, widths[i]))
			if i < len(row)-1 {
				line.WriteString("  ")
			}
		}
		fmt.Fprintln(r.out, line.String())
	}
}

func pad(s string, width int) string {
	gap := width - len([]rune(s))
	if gap <= 0 {
		return s
	}
	return s + strings.Repeat(" ", gap)
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}
