package consolidation

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/thinhdnn/ai-test-management/internal/domain"
)

// FixtureMeta is what the assembler needs to import and compose a fixture
type FixtureMeta struct {
	ID         uuid.UUID          `json:"id"`
	Name       string             `json:"name"`
	ExportName string             `json:"export_name"`
	Path       string             `json:"path"`
	Type       domain.FixtureType `json:"type"`
}

// TestBinding is the local name the fixture's test object is imported as
func (m FixtureMeta) TestBinding() string {
	return m.ExportName + "Test"
}

// ImportPath is the module specifier used from the tests directory
func (m FixtureMeta) ImportPath() string {
	if strings.HasPrefix(m.Path, ".") || strings.HasPrefix(m.Path, "/") {
		return m.Path
	}
	return "../" + m.Path
}

// FixtureMap indexes resolved fixtures by id
type FixtureMap map[uuid.UUID]FixtureMeta

var (
	nonAlnum     = regexp.MustCompile(`[^a-z0-9]+`)
	nonAlnumChar = regexp.MustCompile(`[^a-z0-9]`)
)

// DeriveExportName is the lowercase alphanumeric-only form of name
func DeriveExportName(name string) string {
	s := nonAlnumChar.ReplaceAllString(strings.ToLower(name), "")
	if s == "" {
		return "fixture"
	}
	return s
}

// DerivePath is fixtures/<name> with non-alphanumeric runs collapsed to "_"
func DerivePath(name string) string {
	return "fixtures/" + nonAlnum.ReplaceAllString(strings.ToLower(name), "_")
}

// ResolveFixtures builds the lookup used by the assembler. Content that is
// not valid JSON falls back to derived values and is logged; other
// fixtures are unaffected.
func ResolveFixtures(fixtures []*domain.Fixture, logger *zap.Logger) FixtureMap {
	if logger == nil {
		logger = zap.NewNop()
	}
	out := make(FixtureMap, len(fixtures))
	for _, f := range fixtures {
		if f == nil {
			continue
		}
		meta := FixtureMeta{
			ID:         f.ID,
			Name:       f.Name,
			ExportName: DeriveExportName(f.Name),
			Path:       DerivePath(f.Name),
			Type:       f.Type,
		}
		if strings.TrimSpace(f.Content) != "" {
			var content domain.FixtureContent
			if err := json.Unmarshal([]byte(f.Content), &content); err != nil {
				logger.Warn("fixture content is not valid JSON, using derived names",
					zap.String("fixture_id", f.ID.String()),
					zap.String("fixture_name", f.Name),
					zap.Error(err),
				)
			} else {
				if s := strings.TrimSpace(content.ExportName); s != "" {
					meta.ExportName = s
				}
				if s := strings.TrimSpace(content.Path); s != "" {
					meta.Path = s
				}
			}
		}
		out[f.ID] = meta
	}
	return out
}

// ReferencedFixtureIDs returns the distinct fixture ids used by steps in
// first-appearance order
func ReferencedFixtureIDs(steps []*domain.TestStep) []uuid.UUID {
	seen := make(map[uuid.UUID]bool)
	var ids []uuid.UUID
	for _, s := range steps {
		if s == nil || s.FixtureID == nil || seen[*s.FixtureID] {
			continue
		}
		seen[*s.FixtureID] = true
		ids = append(ids, *s.FixtureID)
	}
	return ids
}
