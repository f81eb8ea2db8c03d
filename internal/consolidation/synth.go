package consolidation

import (
	"regexp"
	"strings"

	"github.com/thinhdnn/ai-test-management/internal/domain"
)

// compoundSeparator splits "selector >> value" data payloads
const compoundSeparator = ">>"

var wordPattern = regexp.MustCompile(`[a-z]+`)

func actionWords(action string) map[string]bool {
	words := make(map[string]bool)
	for _, w := range wordPattern.FindAllString(strings.ToLower(action), -1) {
		words[w] = true
	}
	return words
}

// isNavigation reports whether the step's label or code navigates
func isNavigation(step *domain.TestStep) bool {
	if strings.Contains(step.PlaywrightCode, ".goto(") {
		return true
	}
	words := actionWords(step.Action)
	return words["navigate"] || words["goto"]
}

// selectorAndValue returns the target selector and the value for a step.
// An explicit Selector wins; otherwise data of the form "selector >> value"
// is split on the first separator.
func selectorAndValue(step *domain.TestStep) (string, string) {
	sel := strings.TrimSpace(step.Selector)
	data := strings.TrimSpace(step.Data)
	if sel != "" {
		return sel, data
	}
	parts := strings.SplitN(data, compoundSeparator, 2)
	if len(parts) == 2 {
		return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
	}
	return "", data
}

// Synthesize derives a single code line from the step's action keyword.
// It returns false when the action is unknown or a required field is
// missing.
func Synthesize(step *domain.TestStep) (string, bool) {
	words := actionWords(step.Action)
	sel, value := selectorAndValue(step)

	switch {
	case words["navigate"] || words["goto"]:
		url := value
		if url == "" {
			url = sel
		}
		if url == "" {
			return "", false
		}
		return "await page.goto(" + quoteJS(url) + ");", true

	case words["uncheck"]:
		if sel == "" {
			return "", false
		}
		return "await page.uncheck(" + quoteJS(sel) + ");", true

	case words["check"]:
		if sel == "" {
			return "", false
		}
		return "await page.check(" + quoteJS(sel) + ");", true

	case words["click"]:
		if sel == "" {
			sel = value
		}
		if sel == "" {
			return "", false
		}
		return "await page.click(" + quoteJS(sel) + ");", true

	case words["fill"] || words["type"]:
		if sel == "" || value == "" {
			return "", false
		}
		return "await page.fill(" + quoteJS(sel) + ", " + quoteJS(value) + ");", true

	case words["select"]:
		if sel == "" || value == "" {
			return "", false
		}
		return "await page.selectOption(" + quoteJS(sel) + ", " + quoteJS(value) + ");", true
	}
	return "", false
}
