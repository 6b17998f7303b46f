package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/forest6511/sitepass/pkg/breach"
	"github.com/forest6511/sitepass/pkg/security"
	"github.com/forest6511/sitepass/pkg/session"
)

// Security command flags
var (
	checkSite        string
	auditVerbose     bool
	auditJSON        bool
	auditConcurrency int
)

func init() {
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(auditCmd)

	checkCmd.Flags().StringVar(&checkSite, "site", "", "Check the password of a saved site instead of the master key")
	checkCmd.RegisterFlagCompletionFunc("site", completeSites)

	auditCmd.Flags().BoolVarP(&auditVerbose, "verbose", "v", false, "Show all details including suggestions")
	auditCmd.Flags().BoolVar(&auditJSON, "json", false, "Output in JSON format")
	auditCmd.Flags().IntVar(&auditConcurrency, "concurrency", session.DefaultAuditConcurrency, "Sites checked in parallel")
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check the master key or a site password against known breaches",
	Long: `Check the master key against known data breaches. With --site, the
password of a saved site is checked instead. Only the first five hex
characters of the SHA-1 hash leave this machine.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cfg.Breach.Enabled {
			return fmt.Errorf("breach checking is disabled (breach.enabled)")
		}
		a, err := openApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()

		key, err := readMasterKey()
		if err != nil {
			return err
		}
		res := a.sess.SetMasterKey(cmd.Context(), key)
		defer a.sess.ClearMasterKey()

		label := "Master key"
		if checkSite != "" {
			out, err := a.sess.Inspect(cmd.Context(), checkSite)
			if err != nil {
				return err
			}
			label, res = out.Site, out.Breach
		}
		fmt.Printf("%s: %s\n", label, describeBreach(res))
		if res.Status == breach.StatusCompromised {
			return fmt.Errorf("%s found in known breaches", label)
		}
		return nil
	},
}

// describeBreach renders a breach result for humans.
func describeBreach(r breach.Result) string {
	switch r.Status {
	case breach.StatusClean:
		return "not found in known breaches"
	case breach.StatusUnchecked:
		return "not checked"
	default:
		return r.Message
	}
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Regenerate every saved site and check it against known breaches",
	Long: `Regenerate the password of every saved site with the master key, grade
its strength and check it against known data breaches. Nothing is saved.

Score components:
  - Password Strength (25 pts): Share of strong generated passwords
  - Exposure (50 pts):          Share of passwords not found in breaches
  - Coverage (25 pts):          Share of breach checks that completed`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := unlock(cmd.Context(), a.sess); err != nil {
			return err
		}
		defer a.sess.ClearMasterKey()

		findings, err := a.sess.Audit(cmd.Context(), auditConcurrency)
		if err != nil {
			return fmt.Errorf("audit failed: %w", err)
		}
		score := security.Score(findings)
		if auditJSON {
			return outputSecurityJSON(os.Stdout, score)
		}
		outputSecurityText(os.Stdout, score, auditVerbose)
		return nil
	},
}

// outputSecurityJSON outputs the security score as JSON.
func outputSecurityJSON(w io.Writer, score *security.SecurityScore) error {
	data, err := json.MarshalIndent(score, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(w, string(data))
	return nil
}

// outputSecurityText outputs the security score as formatted text.
func outputSecurityText(w io.Writer, score *security.SecurityScore, verbose bool) {
	var rating string
	switch {
	case score.Overall >= 90:
		rating = "Excellent"
	case score.Overall >= 70:
		rating = "Good"
	case score.Overall >= 50:
		rating = "Fair"
	default:
		rating = "Needs Attention"
	}

	fmt.Fprintf(w, "Security Score: %d/100 (%s)\n\n", score.Overall, rating)

	fmt.Fprintln(w, "Components:")
	fmt.Fprintf(w, "  Password Strength: %d/25 %s\n", score.Components.StrengthScore, progressBar(score.Components.StrengthScore, 25))
	fmt.Fprintf(w, "  Exposure:          %d/50 %s\n", score.Components.ExposureScore, progressBar(score.Components.ExposureScore, 50))
	fmt.Fprintf(w, "  Coverage:          %d/25 %s\n", score.Components.CoverageScore, progressBar(score.Components.CoverageScore, 25))
	fmt.Fprintln(w)

	if len(score.Issues) > 0 {
		fmt.Fprintf(w, "Issues (%d):\n", len(score.Issues))
		for i, issue := range score.Issues {
			fmt.Fprintf(w, "  %d. [%s] %q: %s\n", i+1, strings.ToUpper(string(issue.Type)), issue.Site, issue.Description)
		}
		fmt.Fprintln(w)
	}

	if len(score.Suggestions) > 0 && verbose {
		fmt.Fprintln(w, "Suggestions:")
		for _, suggestion := range score.Suggestions {
			fmt.Fprintf(w, "  - %s\n", suggestion)
		}
		fmt.Fprintln(w)
	}
}

// progressBar creates a simple ASCII progress bar.
func progressBar(value, maxVal int) string {
	width := 20
	filled := value * width / maxVal
	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", width-filled) + "]"
}
