package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/forest6511/sitepass/internal/cli"
	"github.com/forest6511/sitepass/pkg/hashengine"
	"github.com/forest6511/sitepass/pkg/session"
)

// Site command flags
var (
	listLong       bool
	listCustomized bool
	deleteForce    bool
)

func init() {
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(resetCmd)

	listCmd.Flags().BoolVarP(&listLong, "long", "l", false, "Show settings and when each site was last generated")
	listCmd.Flags().BoolVar(&listCustomized, "customized", false, "Only sites with non-default settings")
	deleteCmd.Flags().BoolVarP(&deleteForce, "force", "f", false, "Skip confirmation prompt")

	showCmd.ValidArgsFunction = completeSites
	deleteCmd.ValidArgsFunction = completeSites
	resetCmd.ValidArgsFunction = completeSites
}

var listCmd = &cobra.Command{
	Use:   "list [pattern...]",
	Short: "List saved sites",
	Long: `List saved sites in display order. Patterns select sites by glob
(e.g. "*.google.com"); without patterns every site is listed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()

		sites, err := selectSites(a.sess, args)
		if err != nil {
			return err
		}
		views := make([]session.SiteView, 0, len(sites))
		for _, site := range sites {
			view := a.sess.Site(site)
			if listCustomized && !view.Customized {
				continue
			}
			views = append(views, view)
		}
		if len(views) == 0 {
			fmt.Println("No sites saved")
			return nil
		}
		return writeSiteList(os.Stdout, views, listLong, time.Now())
	},
}

// writeSiteList prints one site per line, or a table with settings when
// long is set.
func writeSiteList(w io.Writer, views []session.SiteView, long bool, now time.Time) error {
	if !long {
		for _, view := range views {
			fmt.Fprintln(w, view.Tag)
		}
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SITE\tSIZE\tOPTIONS\tUPDATED")
	for _, view := range views {
		updated := "-"
		if !view.Updated.IsZero() {
			updated = humanize.RelTime(view.Updated, now, "ago", "from now")
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", view.Tag, view.Settings.HashWordSize, settingsSummary(view.Settings), updated)
	}
	return tw.Flush()
}

// settingsSummary lists the enabled options, or "-" for none.
func settingsSummary(s hashengine.Settings) string {
	var opts []string
	if s.RequirePunctuation {
		opts = append(opts, "punctuation")
	}
	if s.RestrictSpecial {
		opts = append(opts, "restrict-special")
	}
	if s.Bangify {
		opts = append(opts, "bangify")
	}
	if len(opts) == 0 {
		return "-"
	}
	return strings.Join(opts, ",")
}

var showCmd = &cobra.Command{
	Use:   "show <site>",
	Short: "Show the settings for a site",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()

		writeSiteView(os.Stdout, a.sess.Site(args[0]))
		return nil
	},
}

func writeSiteView(w io.Writer, view session.SiteView) {
	fmt.Fprintf(w, "Site:                %s\n", view.Tag)
	if !view.Saved {
		fmt.Fprintln(w, "Saved:               no (defaults shown)")
	} else {
		fmt.Fprintln(w, "Saved:               yes")
	}
	fmt.Fprintf(w, "Size:                %d\n", view.Settings.HashWordSize)
	fmt.Fprintf(w, "Require punctuation: %t\n", view.Settings.RequirePunctuation)
	fmt.Fprintf(w, "Restrict special:    %t\n", view.Settings.RestrictSpecial)
	fmt.Fprintf(w, "Bangify:             %t\n", view.Settings.Bangify)
	if !view.Updated.IsZero() {
		fmt.Fprintf(w, "Updated:             %s\n", view.Updated.Format(time.RFC3339))
	}
}

var deleteCmd = &cobra.Command{
	Use:   "delete <pattern>...",
	Short: "Delete saved sites",
	Long: `Delete the saved settings of the sites matching the patterns. The
passwords themselves are never stored; generating the site again recreates it
with default settings.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()

		sites, err := cli.ExpandPatterns(args, a.sess.DataList())
		if err != nil {
			return err
		}
		if !deleteForce && !confirm(os.Stdin, os.Stderr, fmt.Sprintf("Delete %d site(s): %s?", len(sites), strings.Join(sites, ", "))) {
			fmt.Println("Aborted")
			return nil
		}
		for _, site := range sites {
			a.sess.Delete(site)
			fmt.Printf("Site '%s' deleted\n", site)
		}
		return a.store.LastError()
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset <site>",
	Short: "Regenerate a site with default settings",
	Args:  cobra.ExactArgs(1),
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

		out, err := a.sess.Generate(cmd.Context(), args[0], a.sess.Reset())
		if err != nil {
			return err
		}
		fmt.Println(out.Hash)
		reportBreach(out.Breach)
		return nil
	},
}

// selectSites returns every saved site, or those matching patterns.
func selectSites(sess *session.Session, patterns []string) ([]string, error) {
	sites := sess.DataList()
	if len(patterns) == 0 {
		return sites, nil
	}
	return cli.ExpandPatterns(patterns, sites)
}

// confirm asks a yes/no question; anything but y or yes is no.
func confirm(in io.Reader, out io.Writer, question string) bool {
	fmt.Fprintf(out, "%s [y/N]: ", question)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
