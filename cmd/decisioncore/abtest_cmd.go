package main

import (
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/kestrelrules/decisioncore/abtest"
)

// buildAssignmentStore resolves the configured A/B test assignment
// store backend (memory|redis) into an abtest.AssignmentStore.
func buildAssignmentStore(ac *appContext) (abtest.AssignmentStore, func() error, error) {
	cfg := ac.cfg.ABTest
	if cfg.Backend == "redis" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		return abtest.NewRedisAssignmentStore(client, cfg.KeyPrefix), client.Close, nil
	}
	return abtest.NewMemoryAssignmentStore(), func() error { return nil }, nil
}

func newABTestCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "abtest",
		Short: "Manage A/B tests: create, lifecycle transitions, assignment, results",
	}
	cmd.AddCommand(newABTestCreateCommand())
	cmd.AddCommand(newABTestStartCommand())
	cmd.AddCommand(newABTestCompleteCommand())
	cmd.AddCommand(newABTestCancelCommand())
	cmd.AddCommand(newABTestAssignCommand())
	cmd.AddCommand(newABTestRecordCommand())
	cmd.AddCommand(newABTestResultsCommand())
	return cmd
}

func newManager(cmd *cobra.Command) (*abtest.Manager, func() error, error) {
	ac := getAppContext(cmd)
	store, closeFn, err := buildAssignmentStore(ac)
	if err != nil {
		return nil, nil, err
	}
	return abtest.NewManager(store), closeFn, nil
}

func newABTestCreateCommand() *cobra.Command {
	var name, champion, challenger string
	var championSplit int
	var durationHours int
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a scheduled A/B test between a champion and challenger rule version",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, closeFn, err := newManager(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			split := abtest.TrafficSplit{Champion: championSplit, Challenger: 100 - championSplit}
			start := time.Now()
			var end *time.Time
			if durationHours > 0 {
				e := start.Add(time.Duration(durationHours) * time.Hour)
				end = &e
			}
			t, err := mgr.CreateTest(name, champion, challenger, split, start, end)
			if err != nil {
				return err
			}
			return printJSON(cmd, t)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "test name (required)")
	cmd.Flags().StringVar(&champion, "champion-version", "", "champion rule version id (required)")
	cmd.Flags().StringVar(&challenger, "challenger-version", "", "challenger rule version id (required)")
	cmd.Flags().IntVar(&championSplit, "champion-split", 90, "traffic percentage routed to the champion (0-100)")
	cmd.Flags().IntVar(&durationHours, "duration-hours", 0, "optional test duration in hours (0 = open-ended)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("champion-version")
	_ = cmd.MarkFlagRequired("challenger-version")
	return cmd
}

func transitionCommand(use, short string, transition func(*abtest.Manager, string) (*abtest.ABTest, error)) *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, closeFn, err := newManager(cmd)
			if err != nil {
				return err
			}
			defer closeFn()
			t, err := transition(mgr, id)
			if err != nil {
				return err
			}
			return printJSON(cmd, t)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "test id (required)")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func newABTestStartCommand() *cobra.Command {
	return transitionCommand("start", "Transition a test from scheduled to running", (*abtest.Manager).Start)
}

func newABTestCompleteCommand() *cobra.Command {
	return transitionCommand("complete", "Transition a test from running to completed", (*abtest.Manager).Complete)
}

func newABTestCancelCommand() *cobra.Command {
	return transitionCommand("cancel", "Cancel a scheduled or running test", (*abtest.Manager).Cancel)
}

func newABTestAssignCommand() *cobra.Command {
	var testID, userID, contextPath string
	cmd := &cobra.Command{
		Use:   "assign",
		Short: "Resolve (or reuse) a variant assignment for a user against a running test",
		RunE: func(cmd *cobra.Command, args []string) error {
			ac := getAppContext(cmd)
			mgr, closeFn, err := newManager(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			ctxData, err := loadMapping(contextPath)
			if err != nil {
				return fmt.Errorf("loading context: %w", err)
			}
			a, err := mgr.Assign(testID, userID, ctxData)
			if err != nil {
				return err
			}
			ac.metrics.RecordAssignment(testID, string(a.Variant))
			return printJSON(cmd, a)
		},
	}
	cmd.Flags().StringVar(&testID, "test-id", "", "test id (required)")
	cmd.Flags().StringVar(&userID, "user-id", "", "optional user id for sticky consistent-hash assignment")
	cmd.Flags().StringVar(&contextPath, "context", "", "optional path to a context JSON file to attach to the assignment")
	_ = cmd.MarkFlagRequired("test-id")
	return cmd
}

func newABTestRecordCommand() *cobra.Command {
	var assignmentID, decision string
	var confidence float64
	cmd := &cobra.Command{
		Use:   "record-decision",
		Short: "Attach a decision outcome to an existing assignment",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, closeFn, err := newManager(cmd)
			if err != nil {
				return err
			}
			defer closeFn()
			a, err := mgr.RecordDecision(assignmentID, decision, confidence)
			if err != nil {
				return err
			}
			return printJSON(cmd, a)
		},
	}
	cmd.Flags().StringVar(&assignmentID, "assignment-id", "", "assignment id (required)")
	cmd.Flags().StringVar(&decision, "decision", "", "decision outcome (required)")
	cmd.Flags().Float64Var(&confidence, "confidence", 0, "decision confidence, 0-1")
	_ = cmd.MarkFlagRequired("assignment-id")
	_ = cmd.MarkFlagRequired("decision")
	return cmd
}

func newABTestResultsCommand() *cobra.Command {
	var testID string
	cmd := &cobra.Command{
		Use:   "results",
		Short: "Show per-variant assignment counts, decision tallies, and average confidence",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, closeFn, err := newManager(cmd)
			if err != nil {
				return err
			}
			defer closeFn()
			r, err := mgr.GetResults(testID)
			if err != nil {
				return err
			}
			return printJSON(cmd, r)
		},
	}
	cmd.Flags().StringVar(&testID, "test-id", "", "test id (required)")
	_ = cmd.MarkFlagRequired("test-id")
	return cmd
}
