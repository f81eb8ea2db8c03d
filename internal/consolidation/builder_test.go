package consolidation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/thinhdnn/ai-test-management/internal/domain"
)

func TestQuoteJS(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "#submit", `'#submit'`},
		{"single quote", "O'Brien", `'O\'Brien'`},
		{"backslash", `C:\tmp`, `'C:\\tmp'`},
		{"backslash before quote", `\'`, `'\\\''`},
		{"newline", "a\nb", `'a\nb'`},
		{"carriage return", "a\r\nb", `'a\r\nb'`},
		{"tab", "a\tb", `'a\tb'`},
		{"double quote untouched", `say "hi"`, `'say "hi"'`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, quoteJS(tt.in))
		})
	}
}

// Every literal the assembler generates goes through quoteJS, so titles,
// tags, selectors and values share one escaping rule.
func TestQuoteJS_AppliedToEveryGeneratedLiteral(t *testing.T) {
	raw := "it's\ta\\b"
	escaped := `'it\'s\ta\\b'`

	code, ok := Synthesize(&domain.TestStep{Action: "fill", Selector: raw, Data: raw})
	assert.True(t, ok)
	assert.Equal(t, "await page.fill("+escaped+", "+escaped+");", code)

	assert.Equal(t, "{ tag: ['@"+`it\'s\ta\\b`+"'] }", tagMetadata([]string{raw}))

	a := NewAssembler(nil, nil)
	script := a.Assemble(newCase(raw, ""), nil, nil, BulkOptions()).Script
	assert.Contains(t, script, "test("+escaped+", async ({ page }) => {")
}
