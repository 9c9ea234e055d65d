package errors

import (
	stderrors "errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func TestDiagnose(t *testing.T) {
	source := func(addr string) (string, bool) {
		if addr != "/site/page.html" {
			return "", false
		}
		return "one\ntwo\n{{nothere}}\nfour\nfive\nsix", true
	}

	err := multierr.Append(
		MissingHelper("nothere", "/site/page.html", 3),
		stderrors.New("plain failure"),
	)

	diags := Diagnose(err, SeverityError, source)
	require.Len(t, diags, 2)

	first := diags[0]
	assert.Equal(t, ErrCodeMissingHelper, first.Code)
	assert.Equal(t, "/site/page.html:3", first.Location())
	assert.Equal(t, "missing helper nothere", first.Message)
	assert.Equal(t, []string{
		"     1 | one",
		"     2 | two",
		"→    3 | {{nothere}}",
		"     4 | four",
		"     5 | five",
	}, first.Context)

	second := diags[1]
	assert.Empty(t, second.Code)
	assert.Empty(t, second.Location())
	assert.Equal(t, "plain failure", second.Message)
}

func TestDiagnoseWithoutSource(t *testing.T) {
	diags := Diagnose(NewParseError("/a.html", 1, stderrors.New("unclosed tag")), SeverityWarning, nil)
	require.Len(t, diags, 1)
	assert.Equal(t, "parse failed: unclosed tag", diags[0].Message)
	assert.Nil(t, diags[0].Context)

	assert.Empty(t, Diagnose(nil, SeverityError, nil))
}

func TestContextLinesOutOfRange(t *testing.T) {
	assert.Nil(t, contextLines([]string{"a"}, 4, 2))
	assert.Nil(t, contextLines([]string{"a"}, -1, 2))
	assert.Len(t, contextLines([]string{"a", "b"}, 0, 2), 2)
}

func TestDiagnosticFormat(t *testing.T) {
	d := Diagnostic{
		Severity: SeverityError,
		Code:     ErrCodeParse,
		Address:  "/a.html",
		Line:     2,
		Column:   5,
		Message:  "parse failed",
		Context:  []string{"→    2 | {{#if}}"},
	}

	out := d.Format()
	assert.True(t, strings.HasPrefix(out, "ERROR [ERR_PARSE] in /a.html:2:5\n"), out)
	assert.Contains(t, out, "  parse failed\n")
	assert.Contains(t, out, "    →    2 | {{#if}}\n")
}

func TestFormatForBrowserEscapes(t *testing.T) {
	page := FormatForBrowser("500 <Internal>", []Diagnostic{
		{Severity: SeverityError, Message: "<script>alert(1)</script>", Context: []string{"→    1 | <b>"}},
		{Severity: SeverityWarning, Message: "soft"},
	})

	assert.Contains(t, page, "<title>500 &lt;Internal&gt;</title>")
	assert.Contains(t, page, "&lt;script&gt;alert(1)&lt;/script&gt;")
	assert.NotContains(t, page, "<script>alert(1)")
	assert.Contains(t, page, `<div class="context-current">→    1 | &lt;b&gt;</div>`)
	assert.Contains(t, page, `<div class="error warning">`)
	assert.True(t, strings.HasSuffix(page, "</body>\n</html>"))
}
