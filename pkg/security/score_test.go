package security

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/forest6511/sitepass/pkg/breach"
)

func TestScoreEmpty(t *testing.T) {
	got := Score(nil)
	if got.Overall != 100 {
		t.Errorf("expected perfect score for no sites, got %d", got.Overall)
	}
	if len(got.Issues) != 0 || len(got.Suggestions) != 0 {
		t.Errorf("expected no issues, got %+v", got)
	}
}

func TestScoreAllClean(t *testing.T) {
	findings := []Finding{
		{Site: "a.com", Strength: PasswordStrong, Breach: breach.Classify(0, nil)},
		{Site: "b.com", Strength: PasswordStrong, Breach: breach.Classify(0, nil)},
	}
	got := Score(findings)
	want := ScoreComponents{StrengthScore: 25, ExposureScore: 50, CoverageScore: 25}
	if diff := cmp.Diff(want, got.Components); diff != "" {
		t.Errorf("components mismatch (-want +got):\n%s", diff)
	}
	if got.Overall != 100 {
		t.Errorf("expected 100, got %d", got.Overall)
	}
}

func TestScoreIssues(t *testing.T) {
	findings := []Finding{
		{Site: "weak.com", Strength: PasswordWeak, Breach: breach.Classify(0, nil)},
		{Site: "pwned.com", Strength: PasswordStrong, Breach: breach.Classify(12, nil)},
		{Site: "offline.com", Strength: PasswordStrong, Breach: breach.Classify(0, errors.New("dial tcp"))},
		{Site: "broken.com", Err: errors.New("hash word size out of range")},
	}
	got := Score(findings)

	want := ScoreComponents{
		StrengthScore: (0 + 25 + 25) / 3,
		ExposureScore: 1 * 50 / 2,
		CoverageScore: 2 * 25 / 3,
	}
	if diff := cmp.Diff(want, got.Components); diff != "" {
		t.Errorf("components mismatch (-want +got):\n%s", diff)
	}
	if got.Overall != want.StrengthScore+want.ExposureScore+want.CoverageScore {
		t.Errorf("overall %d does not add up", got.Overall)
	}

	var types []IssueType
	for _, issue := range got.Issues {
		types = append(types, issue.Type)
	}
	wantTypes := []IssueType{IssueCompromised, IssueWeakPassword, IssueGenerateFailed, IssueUnchecked}
	if diff := cmp.Diff(wantTypes, types); diff != "" {
		t.Errorf("issues should be ordered by severity (-want +got):\n%s", diff)
	}
	if got.Issues[0].Description != "Password compromised 12 times" {
		t.Errorf("unexpected description %q", got.Issues[0].Description)
	}

	wantSuggestions := []string{
		"Change 1 compromised password(s)",
		"Strengthen 1 weak password(s)",
		"Fix settings for 1 site(s)",
		"Re-run the audit online to check 1 site(s)",
	}
	if diff := cmp.Diff(wantSuggestions, got.Suggestions); diff != "" {
		t.Errorf("suggestions mismatch (-want +got):\n%s", diff)
	}
}
