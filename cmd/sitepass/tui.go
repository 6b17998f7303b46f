package main

import (
	"github.com/spf13/cobra"

	"github.com/forest6511/sitepass/internal/tui"
)

func init() {
	rootCmd.AddCommand(tuiCmd)
}

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Interactive generator with a masked master key field",
	Long: `Open the interactive generator. Typed master key characters stay
readable for a moment and are then replaced by the mask glyph. The master key
is cleared after the configured idle timeout without terminal focus.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer a.Close()

		return tui.Run(cmd.Context(), a.sess, tui.Options{
			Glyph:       cfg.Mask.GlyphRune(),
			RevealDelay: cfg.Mask.RevealDelay,
			IdleTimeout: cfg.Mask.IdleTimeout,
			Logger:      logger,
		})
	},
}
