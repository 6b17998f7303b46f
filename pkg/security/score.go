package security

import (
	"fmt"
	"sort"

	"github.com/forest6511/sitepass/pkg/breach"
)

// SecurityScore represents the overall assessment of the saved sites.
type SecurityScore struct {
	// Overall is the total score (0-100).
	Overall int `json:"overall"`
	// Components breaks down the score into categories.
	Components ScoreComponents `json:"components"`
	// Issues contains the detected security issues.
	Issues []SecurityIssue `json:"issues"`
	// Suggestions provides actionable recommendations.
	Suggestions []string `json:"suggestions"`
}

// ScoreComponents breaks down the security score into categories.
type ScoreComponents struct {
	// StrengthScore is based on average generated password strength (0-25).
	StrengthScore int `json:"strength"`
	// ExposureScore is based on the share of passwords not found in breaches (0-50).
	ExposureScore int `json:"exposure"`
	// CoverageScore is based on the share of breach checks that completed (0-25).
	CoverageScore int `json:"coverage"`
}

// IssueType identifies the type of security issue.
type IssueType string

const (
	// IssueWeakPassword indicates a generated password with insufficient strength.
	IssueWeakPassword IssueType = "weak"
	// IssueCompromised indicates a password found in known breaches.
	IssueCompromised IssueType = "compromised"
	// IssueUnchecked indicates a breach check that did not complete.
	IssueUnchecked IssueType = "unchecked"
	// IssueGenerateFailed indicates a site whose password could not be generated.
	IssueGenerateFailed IssueType = "generate_failed"
)

// Severity indicates the urgency of a security issue.
type Severity string

const (
	// SeverityCritical requires immediate attention.
	SeverityCritical Severity = "critical"
	// SeverityWarning should be addressed soon.
	SeverityWarning Severity = "warning"
	// SeverityInfo is informational only.
	SeverityInfo Severity = "info"
)

// SecurityIssue represents a detected security problem.
type SecurityIssue struct {
	Type        IssueType `json:"type"`
	Severity    Severity  `json:"severity"`
	Site        string    `json:"site"`
	Description string    `json:"description"`
	Suggestion  string    `json:"suggestion,omitempty"`
}

// Finding is the audit outcome for one saved site.
type Finding struct {
	Site     string           `json:"site"`
	Strength PasswordStrength `json:"strength"`
	Breach   breach.Result    `json:"-"`
	// Err is set when the password could not be generated.
	Err error `json:"-"`
}

// Score computes the security score for a set of findings. An empty set
// scores 100.
func Score(findings []Finding) *SecurityScore {
	score := &SecurityScore{
		Components: ScoreComponents{StrengthScore: 25, ExposureScore: 50, CoverageScore: 25},
		Issues:     []SecurityIssue{},
	}

	var generated, strengthPoints, checked, clean int
	for _, f := range findings {
		if f.Err != nil {
			score.Issues = append(score.Issues, SecurityIssue{
				Type:        IssueGenerateFailed,
				Severity:    SeverityWarning,
				Site:        f.Site,
				Description: fmt.Sprintf("Password could not be generated: %v", f.Err),
				Suggestion:  "Review the saved settings for this site",
			})
			continue
		}
		generated++
		strengthPoints += f.Strength.Points()
		if f.Strength == PasswordWeak {
			score.Issues = append(score.Issues, SecurityIssue{
				Type:        IssueWeakPassword,
				Severity:    SeverityWarning,
				Site:        f.Site,
				Description: "Generated password has insufficient strength",
				Suggestion:  "Increase the hash word size (14+ characters recommended)",
			})
		}

		switch f.Breach.Status {
		case breach.StatusClean:
			checked++
			clean++
		case breach.StatusCompromised:
			checked++
			score.Issues = append(score.Issues, SecurityIssue{
				Type:        IssueCompromised,
				Severity:    SeverityCritical,
				Site:        f.Site,
				Description: f.Breach.Message,
				Suggestion:  "Change the site password, for example by adjusting its settings",
			})
		default:
			score.Issues = append(score.Issues, SecurityIssue{
				Type:        IssueUnchecked,
				Severity:    SeverityInfo,
				Site:        f.Site,
				Description: "Breach check did not complete",
			})
		}
	}

	if generated > 0 {
		score.Components.StrengthScore = min(strengthPoints/generated, 25)
	}
	if checked > 0 {
		score.Components.ExposureScore = clean * 50 / checked
	}
	if generated > 0 {
		score.Components.CoverageScore = checked * 25 / generated
	}
	c := score.Components
	score.Overall = c.StrengthScore + c.ExposureScore + c.CoverageScore

	sort.SliceStable(score.Issues, func(i, j int) bool {
		return severityRank(score.Issues[i].Severity) < severityRank(score.Issues[j].Severity)
	})
	score.Suggestions = suggestions(score.Issues)
	return score
}

func severityRank(s Severity) int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityWarning:
		return 1
	default:
		return 2
	}
}

// suggestions summarizes issues into recommendations.
func suggestions(issues []SecurityIssue) []string {
	counts := make(map[IssueType]int)
	for _, issue := range issues {
		counts[issue.Type]++
	}

	out := []string{}
	if n := counts[IssueCompromised]; n > 0 {
		out = append(out, fmt.Sprintf("Change %d compromised password(s)", n))
	}
	if n := counts[IssueWeakPassword]; n > 0 {
		out = append(out, fmt.Sprintf("Strengthen %d weak password(s)", n))
	}
	if n := counts[IssueGenerateFailed]; n > 0 {
		out = append(out, fmt.Sprintf("Fix settings for %d site(s)", n))
	}
	if n := counts[IssueUnchecked]; n > 0 {
		out = append(out, fmt.Sprintf("Re-run the audit online to check %d site(s)", n))
	}
	return out
}
