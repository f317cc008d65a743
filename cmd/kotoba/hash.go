package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/com-junkawasaki/kotoba-sub011/catalog"
	"github.com/com-junkawasaki/kotoba-sub011/rule"
	"github.com/com-junkawasaki/kotoba-sub011/strategy"
)

// refReport pairs a definition file with its content ref.
type refReport struct {
	File string `json:"file"`
	Kind string `json:"kind"`
	Name string `json:"name,omitempty"`
	Ref  string `json:"ref"`
}

func newHashCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "hash <file>...",
		Short: "Print content refs of rule and strategy definitions",
		Long: `Hash rule and strategy JSON files into content refs.

A ref is the sha256 of the definition's canonical form, so formatting,
key order and unicode spelling do not change it. Two files with the same
ref define the same rule or strategy, and the ref is what catalogs and
strategies use to pin an exact definition.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHash(cmd, opts, args)
		},
	}
}

func runHash(cmd *cobra.Command, opts *rootOptions, files []string) error {
	reports := make([]refReport, 0, len(files))
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return err
		}
		kind, err := detectKind(data)
		if err != nil {
			return fmt.Errorf("%s: %w", file, err)
		}

		rep := refReport{File: file, Kind: kind}
		switch kind {
		case kindRule:
			r, err := rule.ParseRule(data)
			if err != nil {
				return fmt.Errorf("%s: %w", file, err)
			}
			ref, _, err := catalog.RuleRef(r)
			if err != nil {
				return fmt.Errorf("%s: %w", file, err)
			}
			rep.Name, rep.Ref = r.Name, ref.String()
		case kindStrategy:
			op, err := strategy.Parse(data)
			if err != nil {
				return fmt.Errorf("%s: %w", file, err)
			}
			ref, _, err := catalog.StrategyRef(op)
			if err != nil {
				return fmt.Errorf("%s: %w", file, err)
			}
			rep.Ref = ref.String()
		}
		reports = append(reports, rep)
	}

	if opts.Format == "json" {
		return printJSON(cmd.OutOrStdout(), reports)
	}
	for _, rep := range reports {
		fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", rep.Ref, rep.File)
	}
	return nil
}
