package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/com-junkawasaki/kotoba-sub011/engine"
	"github.com/com-junkawasaki/kotoba-sub011/rule"
	"github.com/com-junkawasaki/kotoba-sub011/strategy"
)

const (
	kindRule     = "rule"
	kindStrategy = "strategy"
)

// detectKind decides whether a definition file holds a rule or a strategy.
// Strategy documents carry a top-level "op" discriminator, rules never do.
func detectKind(data []byte) (string, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return "", fmt.Errorf("not a JSON object: %w", err)
	}
	if _, ok := probe["op"]; ok {
		return kindStrategy, nil
	}
	return kindRule, nil
}

// fileReport is the per-file validate result in json output.
type fileReport struct {
	File   string                   `json:"file"`
	Kind   string                   `json:"kind,omitempty"`
	Name   string                   `json:"name,omitempty"`
	Valid  bool                     `json:"valid"`
	Error  string                   `json:"error,omitempty"`
	Result *engine.ValidationResult `json:"result,omitempty"`
}

func newValidateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>...",
		Short: "Validate rule and strategy definitions",
		Long: `Validate rule and strategy JSON files without running them.

Rules are checked structurally: the preserved context must appear in both
sides, negative conditions may only anchor on pattern variables, guard
names must be registered. Strategies are parsed and walked; rule names
defined by other files of the same invocation resolve, anything else is
reported as a warning.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, opts, args)
		},
	}
}

func runValidate(cmd *cobra.Command, opts *rootOptions, files []string) error {
	eng, err := offlineEngine(opts)
	if err != nil {
		return err
	}

	reports := make([]fileReport, 0, len(files))
	strategies := make(map[int]strategy.Op)
	for _, file := range files {
		rep := fileReport{File: file}
		data, err := os.ReadFile(file)
		if err != nil {
			rep.Error = err.Error()
			reports = append(reports, rep)
			continue
		}
		kind, err := detectKind(data)
		if err != nil {
			rep.Error = err.Error()
			reports = append(reports, rep)
			continue
		}
		rep.Kind = kind

		// Rules register right away so later strategies resolve them.
		switch kind {
		case kindRule:
			r, err := rule.ParseRule(data)
			if err == nil {
				rep.Name = r.Name
				_, err = eng.RegisterRule(cmd.Context(), r)
			}
			if err != nil {
				rep.Error = err.Error()
			} else {
				rep.Valid = true
			}
		case kindStrategy:
			op, err := strategy.Parse(data)
			if err != nil {
				rep.Error = err.Error()
			} else {
				strategies[len(reports)] = op
			}
		}
		reports = append(reports, rep)
	}

	// Second pass: strategies validate against everything registered above.
	for i, op := range strategies {
		result, err := eng.ValidateStrategy(cmd.Context(), op)
		if err != nil {
			reports[i].Error = err.Error()
			continue
		}
		reports[i].Result = result
		reports[i].Valid = result.Status != "errors"
		if !reports[i].Valid {
			reports[i].Error = result.Errors[0].Message
		}
	}

	return writeValidateReports(cmd, opts, reports)
}

func writeValidateReports(cmd *cobra.Command, opts *rootOptions, reports []fileReport) error {
	failed := 0
	for _, rep := range reports {
		if !rep.Valid {
			failed++
		}
	}

	if opts.Format == "json" {
		if err := printJSON(cmd.OutOrStdout(), reports); err != nil {
			return err
		}
	} else {
		for _, rep := range reports {
			printFileReport(cmd, rep)
		}
	}

	if failed > 0 {
		return fmt.Errorf("validation failed for %d of %d file(s)", failed, len(reports))
	}
	return nil
}

func printFileReport(cmd *cobra.Command, rep fileReport) {
	out := cmd.OutOrStdout()
	switch {
	case !rep.Valid:
		fmt.Fprintf(out, "FAIL %s: %s\n", rep.File, rep.Error)
	case rep.Kind == kindRule:
		fmt.Fprintf(out, "ok   %s: rule %q\n", rep.File, rep.Name)
	default:
		fmt.Fprintf(out, "ok   %s: strategy, %d op(s), depth %d\n",
			rep.File, rep.Result.Ops, rep.Result.Depth)
	}
	if rep.Result != nil {
		for _, w := range rep.Result.Warnings {
			fmt.Fprintf(out, "     warning %s at %s: %s\n", w.Type, w.Path, w.Message)
		}
	}
}

// offlineEngine builds an engine that never dials out, so validate and
// hash work without a broker even when the config enables one.
func offlineEngine(opts *rootOptions) (*engine.Engine, error) {
	cfg := opts.cfg.Clone()
	cfg.NATS.Enabled = false
	return engine.New(cfg, opts.logger)
}
