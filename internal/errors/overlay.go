package errors

import (
	"fmt"
	"html"
	"strings"

	"go.uber.org/multierr"
)

// Severity grades a diagnostic.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// contextRadius is how many source lines are shown around the failing one.
const contextRadius = 2

// Diagnostic is one error prepared for display.
type Diagnostic struct {
	Severity Severity `json:"severity"`
	Code     string   `json:"code,omitempty"`
	Address  string   `json:"address,omitempty"`
	Line     int      `json:"line,omitempty"`
	Column   int      `json:"column,omitempty"`
	Message  string   `json:"message"`
	Context  []string `json:"context,omitempty"`
}

// SourceFunc returns the template text stored at an address.
type SourceFunc func(address string) (string, bool)

// Diagnose flattens err, including joined errors, into diagnostics. When
// source is not nil, errors with a line get the surrounding template lines.
func Diagnose(err error, severity Severity, source SourceFunc) []Diagnostic {
	var out []Diagnostic
	for _, e := range multierr.Errors(err) {
		d := Diagnostic{Severity: severity, Message: e.Error()}

		var qe *QuiltError
		if As(e, &qe) {
			d.Code = qe.Code
			d.Address = qe.Address
			d.Line = qe.Line
			d.Column = qe.Column
			d.Message = qe.Message
			if qe.Cause != nil {
				d.Message += ": " + qe.Cause.Error()
			}
			if source != nil && qe.Address != "" && qe.Line > 0 {
				if text, ok := source(qe.Address); ok {
					d.Context = contextLines(strings.Split(text, "\n"), qe.Line-1, contextRadius)
				}
			}
		}
		out = append(out, d)
	}
	return out
}

func contextLines(lines []string, index int, radius int) []string {
	if index < 0 || index >= len(lines) {
		return nil
	}
	start := max(0, index-radius)
	end := min(len(lines), index+radius+1)

	var context []string
	for i := start; i < end; i++ {
		prefix := "  "
		if i == index {
			prefix = "→ "
		}
		context = append(context, fmt.Sprintf("%s%4d | %s", prefix, i+1, lines[i]))
	}
	return context
}

// Location returns "address:line:column", omitting what is unknown.
func (d Diagnostic) Location() string {
	loc := d.Address
	if loc != "" && d.Line > 0 {
		loc += fmt.Sprintf(":%d", d.Line)
		if d.Column > 0 {
			loc += fmt.Sprintf(":%d", d.Column)
		}
	}
	return loc
}

// Format formats a diagnostic for a terminal.
func (d Diagnostic) Format() string {
	var builder strings.Builder

	builder.WriteString(strings.ToUpper(string(d.Severity)))
	if d.Code != "" {
		fmt.Fprintf(&builder, " [%s]", d.Code)
	}
	if loc := d.Location(); loc != "" {
		fmt.Fprintf(&builder, " in %s", loc)
	}
	fmt.Fprintf(&builder, "\n  %s\n", d.Message)

	for _, line := range d.Context {
		fmt.Fprintf(&builder, "    %s\n", line)
	}

	return builder.String()
}

// FormatForBrowser renders diagnostics as a standalone error page.
func FormatForBrowser(title string, diagnostics []Diagnostic) string {
	var builder strings.Builder

	builder.WriteString(`<!DOCTYPE html>
<html>
<head>
    <title>`)
	builder.WriteString(html.EscapeString(title))
	builder.WriteString(`</title>
    <style>
        body { font-family: monospace; margin: 20px; background-color: #1e1e1e; color: #ffffff; }
        .error { margin: 20px 0; padding: 15px; border-left: 4px solid #ff4444; background-color: #2d2d2d; }
        .warning { border-left-color: #ffaa00; }
        .error-header { font-weight: bold; font-size: 1.1em; margin-bottom: 10px; }
        .error-location { color: #88ccff; font-size: 0.9em; }
        .error-message { margin: 10px 0; white-space: pre-wrap; }
        .error-context { margin-top: 10px; padding: 10px; background-color: #1a1a1a; border-radius: 4px; white-space: pre; }
        .context-current { color: #ff4444; font-weight: bold; }
    </style>
</head>
<body>
    <h1>`)
	builder.WriteString(html.EscapeString(title))
	builder.WriteString("</h1>\n")

	for _, d := range diagnostics {
		class := "error"
		if d.Severity == SeverityWarning {
			class = "error warning"
		}
		fmt.Fprintf(&builder, `    <div class="%s">`, class)

		header := strings.ToUpper(string(d.Severity))
		if d.Code != "" {
			header += " " + d.Code
		}
		fmt.Fprintf(&builder, `<div class="error-header">%s</div>`, html.EscapeString(header))

		if loc := d.Location(); loc != "" {
			fmt.Fprintf(&builder, `<div class="error-location">%s</div>`, html.EscapeString(loc))
		}
		fmt.Fprintf(&builder, `<div class="error-message">%s</div>`, html.EscapeString(d.Message))

		if len(d.Context) > 0 {
			builder.WriteString(`<div class="error-context">`)
			for _, line := range d.Context {
				class := "context-line"
				if strings.HasPrefix(line, "→ ") {
					class = "context-current"
				}
				fmt.Fprintf(&builder, `<div class="%s">%s</div>`, class, html.EscapeString(line))
			}
			builder.WriteString(`</div>`)
		}

		builder.WriteString("</div>\n")
	}

	builder.WriteString("</body>\n</html>")
	return builder.String()
}
