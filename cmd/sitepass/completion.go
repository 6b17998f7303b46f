package main

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/forest6511/sitepass/internal/config"
)

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate completion script for your shell",
	Long: `To load completions:

Bash:
  $ source <(sitepass completion bash)

  # To load for each session (Linux):
  $ sitepass completion bash > ~/.local/share/bash-completion/completions/sitepass

Zsh:
  $ sitepass completion zsh > ~/.zsh/completions/_sitepass
  # (create ~/.zsh/completions if needed, add to fpath in .zshrc)

Fish:
  $ sitepass completion fish > ~/.config/fish/completions/sitepass.fish

PowerShell:
  PS> sitepass completion powershell >> $PROFILE

Site tags complete from the saved sites; no master key is needed.
`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		switch args[0] {
		case "bash":
			return cmd.Root().GenBashCompletion(os.Stdout)
		case "zsh":
			return cmd.Root().GenZshCompletion(os.Stdout)
		case "fish":
			return cmd.Root().GenFishCompletion(os.Stdout, true)
		case "powershell":
			return cmd.Root().GenPowerShellCompletionWithDesc(os.Stdout)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(completionCmd)
}

// completeSites completes saved site tags.
func completeSites(cmd *cobra.Command, _ []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if cfg == nil {
		v, err := config.New(cfgFile)
		if err != nil {
			return nil, cobra.ShellCompDirectiveError
		}
		if cfg, err = config.Load(v); err != nil {
			return nil, cobra.ShellCompDirectiveError
		}
	}
	a, err := openApp(cmd.Context(), false)
	if err != nil {
		return nil, cobra.ShellCompDirectiveError
	}
	defer a.Close()

	return filterPrefix(a.sess.DataList(), toComplete), cobra.ShellCompDirectiveNoFileComp
}

// filterPrefix keeps the sites starting with prefix, ignoring case.
func filterPrefix(sites []string, prefix string) []string {
	lower := strings.ToLower(prefix)
	var out []string
	for _, site := range sites {
		if strings.HasPrefix(strings.ToLower(site), lower) {
			out = append(out, site)
		}
	}
	return out
}
