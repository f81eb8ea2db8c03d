package consolidation

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/thinhdnn/ai-test-management/internal/domain"
)

// DefaultScriptExtension is used when no extension is configured
const DefaultScriptExtension = "ts"

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// Slug turns a test case name into a file name stem
func Slug(name string) string {
	s := slugPattern.ReplaceAllString(strings.ToLower(name), "-")
	s = strings.Trim(s, "-")
	if s == "" {
		return "untitled-test"
	}
	return s
}

// ScriptFileName is <slug>.spec.<ext>
func ScriptFileName(name, ext string) string {
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		ext = DefaultScriptExtension
	}
	return Slug(name) + ".spec." + ext
}

// ScriptPath is <projectRoot>/tests/<slug>.spec.<ext>
func ScriptPath(projectRoot, name, ext string) string {
	return filepath.Join(projectRoot, "tests", ScriptFileName(name, ext))
}

type fingerprintStep struct {
	Order    int    `json:"o"`
	Action   string `json:"a"`
	Data     string `json:"d"`
	Selector string `json:"s"`
	Code     string `json:"c"`
	Fixture  string `json:"f,omitempty"`
}

type fingerprintInput struct {
	Name     string            `json:"name"`
	Tags     string            `json:"tags"`
	Steps    []fingerprintStep `json:"steps"`
	Fixtures []FixtureMeta     `json:"fixtures"`
	Options  Options           `json:"options"`
}

// Fingerprint hashes everything that influences the assembled script.
// Assembly is deterministic, so equal fingerprints mean equal scripts.
func Fingerprint(tc *domain.TestCase, steps []*domain.TestStep, fixtures FixtureMap, opts Options) string {
	active := ActiveSteps(steps)
	in := fingerprintInput{
		Name:     tc.Name,
		Tags:     tc.Tags,
		Steps:    make([]fingerprintStep, 0, len(active)),
		Fixtures: usedFixtures(active, fixtures),
		Options:  opts.withDefaults(),
	}
	for _, s := range active {
		fs := fingerprintStep{
			Order:    s.Order,
			Action:   s.Action,
			Data:     s.Data,
			Selector: s.Selector,
			Code:     s.PlaywrightCode,
		}
		if s.FixtureID != nil {
			fs.Fixture = s.FixtureID.String()
		}
		in.Steps = append(in.Steps, fs)
	}
	b, _ := json.Marshal(in)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
