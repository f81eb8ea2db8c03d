package domain

import (
	"testing"

	"github.com/google/uuid"
)

func versionFixture() (*TestCase, []*TestStep) {
	tc := NewTestCase(uuid.New(), "Checkout", "buy things", `["smoke"]`)
	tc.Script = "script"
	tc.Version = "1.0.4"

	fixtureID := uuid.New()
	first := NewTestStep(tc.ID, "Open cart", "", "")
	first.Order = 1
	first.PlaywrightCode = "await page.goto('/cart');"
	second := NewTestStep(tc.ID, "Pay", "4242", "Receipt")
	second.Order = 2
	second.Disabled = true
	second.FixtureID = &fixtureID
	return tc, []*TestStep{first, second}
}

func TestNewTestCaseVersion(t *testing.T) {
	tc, steps := versionFixture()

	v := NewTestCaseVersion(tc, steps, "", "alice")

	if v.Version != "1.0.4" {
		t.Errorf("Version = %q, want the test case version", v.Version)
	}
	if v.TestCaseID != tc.ID || v.Name != tc.Name || v.Tags != tc.Tags || v.Script != tc.Script {
		t.Errorf("test case fields not captured: %+v", v)
	}
	if v.CreatedBy != "alice" {
		t.Errorf("CreatedBy = %q", v.CreatedBy)
	}
	if len(v.Steps) != 2 {
		t.Fatalf("len(Steps) = %d, want 2", len(v.Steps))
	}
	if v.Steps[0].VersionID != v.ID || v.Steps[0].Order != 1 || v.Steps[0].PlaywrightCode != steps[0].PlaywrightCode {
		t.Errorf("first step = %+v", v.Steps[0])
	}
	if !v.Steps[1].Disabled || v.Steps[1].FixtureID == nil || *v.Steps[1].FixtureID != *steps[1].FixtureID {
		t.Errorf("second step = %+v", v.Steps[1])
	}
	if v.Steps[1].FixtureID == steps[1].FixtureID {
		t.Error("FixtureID should be copied, not shared")
	}
	for i, sv := range v.Steps {
		if sv.Position != i {
			t.Errorf("Steps[%d].Position = %d", i, sv.Position)
		}
	}

	if got := NewTestCaseVersion(tc, nil, "2.0.0", "bob").Version; got != "2.0.0" {
		t.Errorf("explicit Version = %q, want 2.0.0", got)
	}
}

func TestTestCaseVersion_LiveSteps(t *testing.T) {
	tc, steps := versionFixture()
	v := NewTestCaseVersion(tc, steps, "", "alice")

	live := v.LiveSteps()

	if len(live) != 2 {
		t.Fatalf("len(LiveSteps) = %d, want 2", len(live))
	}
	for i, s := range live {
		if s.ID == steps[i].ID {
			t.Errorf("step %d should get a new ID", i)
		}
		if s.TestCaseID == nil || *s.TestCaseID != tc.ID {
			t.Errorf("step %d TestCaseID = %v", i, s.TestCaseID)
		}
		if s.Order != steps[i].Order || s.Action != steps[i].Action || s.Disabled != steps[i].Disabled {
			t.Errorf("step %d = %+v, want fields of %+v", i, s, steps[i])
		}
	}
	if !live[0].CreatedAt.Before(live[1].CreatedAt) {
		t.Error("CreatedAt should follow snapshot order")
	}
}
