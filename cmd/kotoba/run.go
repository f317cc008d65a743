package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/com-junkawasaki/kotoba-sub011/engine"
	"github.com/com-junkawasaki/kotoba-sub011/graph"
	"github.com/com-junkawasaki/kotoba-sub011/metric"
	"github.com/com-junkawasaki/kotoba-sub011/pkg/timestamp"
	"github.com/com-junkawasaki/kotoba-sub011/rule"
	"github.com/com-junkawasaki/kotoba-sub011/strategy"
	"github.com/com-junkawasaki/kotoba-sub011/workflow"
)

// runOptions holds the flags of the run command.
type runOptions struct {
	GraphPath    string
	StrategyPath string
	StrategyName string
	RulePaths    []string
	Inputs       []string
	OutPath      string
	ShowEvents   bool
	Timeout      time.Duration
	MetricsAddr  string
}

// runResult is the run summary in json output.
type runResult struct {
	Success  bool             `json:"success"`
	Vertices int              `json:"vertices"`
	Edges    int              `json:"edges"`
	Duration string           `json:"duration"`
	Outputs  map[string]any   `json:"outputs,omitempty"`
	Events   []workflow.Event `json:"events,omitempty"`
	Error    string           `json:"error,omitempty"`
	Out      string           `json:"out,omitempty"`
}

func newRunCommand(opts *rootOptions) *cobra.Command {
	ro := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a strategy over a graph",
		Long: `Run a strategy over a graph document and report the outcome.

Rules named by the strategy are registered from --rule files first. The
strategy itself comes from a file (--strategy) or, with a broker-backed
catalog, from a registered name or ref (--name). Without --graph the run
starts from an empty graph; --out writes the rewritten graph back out.`,
		Example: `  kotoba run -g city.json -r collapse.json -s cleanup.json -o city-clean.json
  kotoba run -r escalate.json -s oncall.json --input team=platform --events`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRun(cmd, opts, ro)
		},
	}

	cmd.Flags().StringVarP(&ro.GraphPath, "graph", "g", "",
		"graph document to rewrite (defaults to an empty graph)")
	cmd.Flags().StringVarP(&ro.StrategyPath, "strategy", "s", "",
		"strategy file to run")
	cmd.Flags().StringVar(&ro.StrategyName, "name", "",
		"registered strategy name or ref to run instead of a file")
	cmd.Flags().StringArrayVarP(&ro.RulePaths, "rule", "r", nil,
		"rule file to register before the run, repeatable")
	cmd.Flags().StringArrayVar(&ro.Inputs, "input", nil,
		"workflow input as key=value, repeatable; values parse as JSON when possible")
	cmd.Flags().StringVarP(&ro.OutPath, "out", "o", "",
		"write the resulting graph document to this file")
	cmd.Flags().BoolVar(&ro.ShowEvents, "events", false,
		"print the execution history")
	cmd.Flags().DurationVar(&ro.Timeout, "timeout", 0,
		"abort the run after this long, 0 means no limit")
	cmd.Flags().StringVar(&ro.MetricsAddr, "metrics-addr", "",
		"serve Prometheus metrics at this address for the duration of the run")

	return cmd
}

func runRun(cmd *cobra.Command, opts *rootOptions, ro *runOptions) error {
	if (ro.StrategyPath == "") == (ro.StrategyName == "") {
		return fmt.Errorf("exactly one of --strategy and --name is required")
	}
	inputs, err := parseInputs(ro.Inputs)
	if err != nil {
		return err
	}
	snap, err := loadSnapshot(ro.GraphPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if ro.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ro.Timeout)
		defer cancel()
	}

	var engOpts []engine.Option
	if ro.MetricsAddr != "" {
		registry := metric.NewMetricsRegistry()
		engOpts = append(engOpts, engine.WithMetricsRegistry(registry))

		srv := metric.NewServer(ro.MetricsAddr, "", registry)
		go func() {
			if serr := srv.Start(); serr != nil {
				opts.logger.Error("metrics server failed", "error", serr)
			}
		}()
		defer func() { _ = srv.Stop() }()
		opts.logger.Info("serving metrics", "url", srv.Address())
	}

	eng, err := engine.New(opts.cfg, opts.logger, engOpts...)
	if err != nil {
		return err
	}
	if err := eng.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = eng.Stop(stopCtx)
	}()

	for _, path := range ro.RulePaths {
		if err := registerRuleFile(ctx, eng, path); err != nil {
			return err
		}
	}

	start := time.Now()
	var outcome *workflow.Outcome
	var runErr error
	if ro.StrategyPath != "" {
		op, err := loadStrategy(ro.StrategyPath)
		if err != nil {
			return err
		}
		outcome, runErr = eng.Run(ctx, snap, op, inputs)
	} else {
		outcome, runErr = eng.RunStrategy(ctx, snap, ro.StrategyName, inputs)
	}
	if outcome == nil {
		return runErr
	}

	result := summarize(outcome, time.Since(start), ro.ShowEvents || opts.Format == "json")
	if ro.OutPath != "" && outcome.Snapshot != nil {
		if err := writeSnapshot(ro.OutPath, outcome.Snapshot); err != nil {
			return err
		}
		result.Out = ro.OutPath
	}
	if err := writeRunResult(cmd, opts, ro, result, len(outcome.Events)); err != nil {
		return err
	}

	if runErr != nil {
		return fmt.Errorf("run failed: %s", outcome.Error)
	}
	return nil
}

func loadSnapshot(path string) (*graph.Snapshot, error) {
	if path == "" {
		return graph.NewSnapshot(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	doc, err := graph.ParseDocument(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	snap, err := doc.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return snap, nil
}

func loadStrategy(path string) (strategy.Op, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	op, err := strategy.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return op, nil
}

func registerRuleFile(ctx context.Context, eng *engine.Engine, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	r, err := rule.ParseRule(data)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if _, err := eng.RegisterRule(ctx, r); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// parseInputs turns key=value pairs into workflow inputs. Values that
// parse as JSON keep their type, anything else stays a string.
func parseInputs(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	inputs := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("input %q is not key=value", pair)
		}
		var parsed any
		if err := json.Unmarshal([]byte(v), &parsed); err != nil {
			parsed = v
		}
		inputs[k] = parsed
	}
	return inputs, nil
}

func summarize(outcome *workflow.Outcome, elapsed time.Duration, withEvents bool) *runResult {
	result := &runResult{
		Success:  outcome.Success,
		Duration: elapsed.Round(time.Millisecond).String(),
		Outputs:  outcome.Outputs,
		Error:    outcome.Error,
	}
	if outcome.Snapshot != nil {
		result.Vertices = outcome.Snapshot.VertexCount()
		result.Edges = outcome.Snapshot.EdgeCount()
	}
	if withEvents {
		result.Events = outcome.Events
	}
	return result
}

func writeSnapshot(path string, snap *graph.Snapshot) error {
	data, err := graph.Export(snap).Encode()
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

func writeRunResult(cmd *cobra.Command, opts *rootOptions, ro *runOptions, result *runResult, eventCount int) error {
	out := cmd.OutOrStdout()
	if opts.Format == "json" {
		return printJSON(out, result)
	}

	status := "succeeded"
	if !result.Success {
		status = "failed"
	}
	fmt.Fprintf(out, "run %s in %s: %d vertices, %d edges\n",
		status, result.Duration, result.Vertices, result.Edges)
	if len(result.Outputs) > 0 {
		fmt.Fprintln(out, "outputs:")
		for _, k := range sortedOutputKeys(result.Outputs) {
			fmt.Fprintf(out, "  %s: %v\n", k, result.Outputs[k])
		}
	}
	if ro.ShowEvents {
		for _, ev := range result.Events {
			at := timestamp.ToTime(ev.Time).Format("15:04:05.000")
			fmt.Fprintf(out, "  %s  %-24s %s\n", at, ev.Kind, ev.Subject)
		}
	} else if eventCount > 0 {
		fmt.Fprintf(out, "%d event(s), use --events to print them\n", eventCount)
	}
	if result.Out != "" {
		fmt.Fprintf(out, "wrote %s\n", result.Out)
	}
	return nil
}

func sortedOutputKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
