package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kestrelrules/decisioncore/agent"
	"github.com/kestrelrules/decisioncore/explain"
	"github.com/kestrelrules/decisioncore/jsonrule"
	"github.com/kestrelrules/decisioncore/rulectx"
	"github.com/kestrelrules/decisioncore/scoring"
)

func newDecideCommand() *cobra.Command {
	var rulesetPath, contextPath, feedbackPath, strategyName string
	var verbose bool

	cmd := &cobra.Command{
		Use:   "decide",
		Short: "Evaluate a ruleset against a context and print the resulting Decision",
		RunE: func(cmd *cobra.Command, args []string) error {
			ac := getAppContext(cmd)

			rs, err := loadRuleset(rulesetPath)
			if err != nil {
				return err
			}
			ctxData, err := loadMapping(contextPath)
			if err != nil {
				return fmt.Errorf("loading context: %w", err)
			}
			feedback, err := loadMapping(feedbackPath)
			if err != nil {
				return fmt.Errorf("loading feedback: %w", err)
			}

			evaluator := jsonrule.NewEvaluator(rs.Name, rs)
			strategy, err := resolveStrategy(strategyName)
			if err != nil {
				return err
			}

			a, err := agent.New(
				[]agent.Evaluator{evaluator},
				strategy,
				agent.NoopSink{},
				agent.WithLogger(ac.logger),
				agent.WithMetrics(ac.metrics),
				agent.WithProductionMode(ac.cfg.IsProduction()),
			)
			if err != nil {
				return err
			}

			decision, err := a.Decide(cmd.Context(), rulectx.New(ctxData), feedback)
			if err != nil {
				return err
			}

			out := map[string]any{
				"decision":        decision.Decision(),
				"confidence":      decision.Confidence(),
				"explanations":    decision.Explanations(),
				"audit_payload":   decision.AuditPayload(),
				"because":         explain.Because(decision.Evaluations(), verbose),
				"failed_reasons":  explain.FailedConditions(decision.Evaluations(), verbose),
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}

	cmd.Flags().StringVar(&rulesetPath, "ruleset", "", "path to a ruleset JSON/YAML file (required)")
	cmd.Flags().StringVar(&contextPath, "context", "", "path to a context JSON file (required)")
	cmd.Flags().StringVar(&feedbackPath, "feedback", "", "optional path to a feedback JSON file")
	cmd.Flags().StringVar(&strategyName, "strategy", "weighted_average", "scoring strategy: weighted_average|majority_vote|highest_single_weight")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "include condition-level detail in because/failed_reasons")
	_ = cmd.MarkFlagRequired("ruleset")
	_ = cmd.MarkFlagRequired("context")
	return cmd
}

func resolveStrategy(name string) (scoring.Strategy, error) {
	switch strings.ToLower(name) {
	case "", "weighted_average":
		return scoring.WeightedAverage{}, nil
	case "majority_vote":
		return scoring.MajorityVote{}, nil
	case "highest_single_weight":
		return scoring.HighestSingleWeight{}, nil
	default:
		return nil, fmt.Errorf("unknown scoring strategy %q", name)
	}
}

func loadRuleset(path string) (*jsonrule.Ruleset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening ruleset %q: %w", path, err)
	}
	defer f.Close()
	return jsonrule.ReadRuleset(f, fileType(path))
}

func loadMapping(path string) (map[string]any, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var out map[string]any
	dec := json.NewDecoder(f)
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

func fileType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	default:
		return "json"
	}
}
