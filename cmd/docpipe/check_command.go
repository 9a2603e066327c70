package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"docpipe/internal/preflight"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	var skipGenerator bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify directories and generator access",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			fmt.Fprintf(out, "Config: %s\n", displayConfigPath(ctx))

			results := preflight.RunAll(cmd.Context(), cfg, preflight.Options{Generator: !skipGenerator})
			for _, result := range results {
				kind := statusOK
				if !result.Passed {
					kind = statusError
				}
				fmt.Fprintln(out, renderStatusLine(result.Name, kind, result.Detail, colorize))
			}
			if failed := preflight.Failed(results); len(failed) > 0 {
				return fmt.Errorf("%d check(s) failed", len(failed))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&skipGenerator, "offline", false, "Skip the generator probe")
	return cmd
}

func displayConfigPath(ctx *commandContext) string {
	if !ctx.configSeen {
		return ctx.configPath + " (not found, defaults in use)"
	}
	return ctx.configPath
}
