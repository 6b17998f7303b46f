package main

import (
	"fmt"
	"os"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"

	"github.com/forest6511/sitepass/pkg/breach"
	"github.com/forest6511/sitepass/pkg/hashengine"
	"github.com/forest6511/sitepass/pkg/session"
)

// clipboardWriteAll is a package-level variable to allow mocking in tests.
var clipboardWriteAll = clipboard.WriteAll

// Generate command flags
var (
	generateSize            int
	generatePunctuation     bool
	generateRestrictSpecial bool
	generateBangify         bool
	generateCopy            bool
	generateQuiet           bool
)

func init() {
	rootCmd.AddCommand(generateCmd)

	addSettingsFlags(generateCmd)
	generateCmd.Flags().BoolVarP(&generateCopy, "copy", "c", false, "Copy the password to the clipboard instead of printing it")
	generateCmd.Flags().BoolVarP(&generateQuiet, "quiet", "q", false, "Print only the password")
	generateCmd.ValidArgsFunction = completeSites
}

// addSettingsFlags registers the generation settings flags on cmd.
func addSettingsFlags(cmd *cobra.Command) {
	cmd.Flags().IntVarP(&generateSize, "size", "s", session.DefaultSettings().HashWordSize,
		fmt.Sprintf("Password length (%d-%d)", hashengine.MinWordSize, hashengine.MaxWordSize))
	cmd.Flags().BoolVarP(&generatePunctuation, "punctuation", "p", false, "Require punctuation")
	cmd.Flags().BoolVar(&generateRestrictSpecial, "restrict-special", false, "Letters and digits only")
	cmd.Flags().BoolVarP(&generateBangify, "bangify", "b", false, "End the password with '!'")
}

var generateCmd = &cobra.Command{
	Use:   "generate <site>",
	Short: "Generate the password for a site",
	Long: `Generate the password for a site and save the settings used.

A saved site is generated with its saved settings unless flags override
them. A new site starts from the defaults.

Examples:
  # Generate with saved settings (or defaults)
  sitepass generate example.com

  # Generate a 16-character password with punctuation
  sitepass generate example.com -s 16 -p

  # Copy to the clipboard
  sitepass generate example.com -c`,
	Args: cobra.ExactArgs(1),
	RunE: executeGenerate,
}

func executeGenerate(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer a.Close()

	settings := settingsFromFlags(cmd, a.sess.Site(args[0]).Settings)
	if err := validateSettings(settings); err != nil {
		return err
	}

	if err := unlock(cmd.Context(), a.sess); err != nil {
		return err
	}
	defer a.sess.ClearMasterKey()

	out, err := a.sess.Generate(cmd.Context(), args[0], settings)
	if err != nil {
		return err
	}

	if generateCopy {
		if err := clipboardWriteAll(out.Hash); err != nil {
			return fmt.Errorf("failed to copy to clipboard: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Password for %s copied to clipboard\n", out.Site)
	} else {
		fmt.Println(out.Hash)
	}
	if !generateQuiet {
		reportBreach(out.Breach)
	}
	return nil
}

// settingsFromFlags overrides base with the flags the user set.
func settingsFromFlags(cmd *cobra.Command, base hashengine.Settings) hashengine.Settings {
	flags := cmd.Flags()
	if flags.Changed("size") {
		base.HashWordSize = generateSize
	}
	if flags.Changed("punctuation") {
		base.RequirePunctuation = generatePunctuation
	}
	if flags.Changed("restrict-special") {
		base.RestrictSpecial = generateRestrictSpecial
	}
	if flags.Changed("bangify") {
		base.Bangify = generateBangify
	}
	return base
}

// validateSettings checks settings before the master key is requested.
func validateSettings(s hashengine.Settings) error {
	if s.HashWordSize < hashengine.MinWordSize || s.HashWordSize > hashengine.MaxWordSize {
		return fmt.Errorf("size must be between %d and %d", hashengine.MinWordSize, hashengine.MaxWordSize)
	}
	return nil
}

// reportBreach prints the breach check outcome to stderr.
func reportBreach(r breach.Result) {
	switch r.Status {
	case breach.StatusCompromised, breach.StatusError, breach.StatusNetwork:
		fmt.Fprintf(os.Stderr, "warning: %s\n", r.Message)
	}
}
