// cmd/staleguard/commands.go
package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/valpere/staleguard/internal/config"
	"github.com/valpere/staleguard/internal/fixture"
	"github.com/valpere/staleguard/internal/scenario"
)

func getCmdValidate(gs *globalState) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <config.yaml>",
		Short: "Validate a configuration file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.ParseFile(args[0])
			if err != nil {
				return err
			}

			result := cfg.ValidateWithDetails()
			for _, warning := range result.Warnings {
				fmt.Fprintf(gs.stderr, "⚠ %s\n", warning)
			}
			if !result.Valid {
				for _, suggestion := range result.Suggestions() {
					fmt.Fprintf(gs.stderr, "  • %s\n", suggestion)
				}
				return fmt.Errorf("invalid configuration: %w", cfg.Validate())
			}

			fmt.Fprintf(gs.stdout, "✓ Configuration file '%s' is valid\n", args[0])
			if gs.verbose {
				fmt.Fprintf(gs.stdout, "  driver:    %s\n", cfg.Browser.Driver)
				fmt.Fprintf(gs.stdout, "  base url:  %s\n", cfg.BaseURL)
				fmt.Fprintf(gs.stdout, "  wait:      %s every %s\n", cfg.Wait.Timeout, cfg.Wait.Interval)
				fmt.Fprintf(gs.stdout, "  scenarios: %s\n", strings.Join(cfg.Scenarios, ", "))
				fmt.Fprintf(gs.stdout, "  output:    %s\n", cfg.Output.Format)
			}
			return nil
		},
	}
}

func getCmdTemplate(gs *globalState) *cobra.Command {
	var (
		templateType string
		output       string
	)

	templateCmd := &cobra.Command{
		Use:   "template",
		Short: "Generate a configuration template",
		Example: `  staleguard template > suite.yaml
  staleguard template --type chromedp --output local.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tmpl := config.GenerateTemplate(templateType)
			if output == "" {
				return config.SaveToWriter(&tmpl, gs.stdout)
			}
			if err := config.SaveToFile(&tmpl, output); err != nil {
				return err
			}
			fmt.Fprintf(gs.stderr, "Template written to %s\n", output)
			return nil
		},
	}

	templateCmd.Flags().StringVarP(&templateType, "type", "t", config.TemplateRemote,
		fmt.Sprintf("template type (%s, %s, %s)", config.TemplateRemote, config.TemplateChromedp, config.TemplatePlaywright))
	templateCmd.Flags().StringVarP(&output, "output", "o", "", "write the template to a file instead of stdout")
	return templateCmd
}

func getCmdServe(gs *globalState) *cobra.Command {
	fix := fixture.DefaultConfig()

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the table filter playground locally",
		Long: `Serve a local copy of the playground pages the scenarios browse.
The filter input is inserted --delay after the page loads, so element
lookups that do not retry can miss it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return fixture.New(fix, gs.logger("info")).ListenAndServe(cmd.Context())
		},
	}

	serveCmd.Flags().StringVar(&fix.Addr, "addr", fix.Addr, "listen address")
	serveCmd.Flags().DurationVar(&fix.FilterDelay, "delay", fix.FilterDelay, "delay before the filter input appears")
	serveCmd.Flags().Float64Var(&fix.RequestsPerSecond, "rps", fix.RequestsPerSecond, "request rate limit, 0 disables it")
	return serveCmd
}

func getCmdScenarios(gs *globalState) *cobra.Command {
	return &cobra.Command{
		Use:   "scenarios",
		Short: "List the available scenarios",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(gs.stdout, 0, 0, 2, ' ', 0)
			for _, s := range scenario.All() {
				fmt.Fprintf(w, "%s\t%s\n", s.Name, s.Description)
			}
			return w.Flush()
		},
	}
}

func getCmdVersion(gs *globalState) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(gs.stdout, "staleguard %s\n", version)
			fmt.Fprintf(gs.stdout, "Build time: %s\n", buildTime)
			fmt.Fprintf(gs.stdout, "Git commit: %s\n", gitCommit)
		},
	}
}
