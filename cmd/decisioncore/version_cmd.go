package main

import (
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/kestrelrules/decisioncore/version"
)

// buildVersionStore resolves the configured version store backend
// (memory|file|redis) into a *version.VersionManager.
func buildVersionStore(ac *appContext) (*version.VersionManager, func() error, error) {
	cfg := ac.cfg.Version
	switch cfg.Backend {
	case "file":
		store, err := version.NewFileStore(cfg.FileRoot, ac.logger)
		if err != nil {
			return nil, nil, fmt.Errorf("opening file version store at %q: %w", cfg.FileRoot, err)
		}
		return version.NewVersionManager(store), store.Close, nil
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		store := version.NewRedisStore(client, cfg.KeyPrefix)
		return version.NewVersionManager(store), client.Close, nil
	default:
		return version.NewVersionManager(version.NewMemoryStore()), func() error { return nil }, nil
	}
}

func newVersionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Manage rule versions (create, list, activate, rollback, delete)",
	}
	cmd.AddCommand(newVersionCreateCommand())
	cmd.AddCommand(newVersionListCommand())
	cmd.AddCommand(newVersionActivateCommand())
	cmd.AddCommand(newVersionDeleteCommand())
	cmd.AddCommand(newVersionHistoryCommand())
	return cmd
}

func newVersionCreateCommand() *cobra.Command {
	var ruleID, contentPath, createdBy, changelog string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new version for a rule, archiving any currently-active version",
		RunE: func(cmd *cobra.Command, args []string) error {
			ac := getAppContext(cmd)
			mgr, closeFn, err := buildVersionStore(ac)
			if err != nil {
				return err
			}
			defer closeFn()

			content, err := loadMapping(contentPath)
			if err != nil {
				return fmt.Errorf("loading content: %w", err)
			}
			v, err := mgr.CreateVersion(ruleID, content, createdBy, changelog)
			if err != nil {
				return err
			}
			ac.metrics.RecordVersionCreated(ruleID)
			return printJSON(cmd, v)
		},
	}
	cmd.Flags().StringVar(&ruleID, "rule-id", "", "rule id (required)")
	cmd.Flags().StringVar(&contentPath, "content", "", "path to a JSON file holding the version content (required)")
	cmd.Flags().StringVar(&createdBy, "created-by", "", "optional author")
	cmd.Flags().StringVar(&changelog, "changelog", "", "optional changelog (defaults to \"Version N\")")
	_ = cmd.MarkFlagRequired("rule-id")
	_ = cmd.MarkFlagRequired("content")
	return cmd
}

func newVersionListCommand() *cobra.Command {
	var ruleID string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List versions for a rule (descending by version number), or every version when --rule-id is empty",
		RunE: func(cmd *cobra.Command, args []string) error {
			ac := getAppContext(cmd)
			mgr, closeFn, err := buildVersionStore(ac)
			if err != nil {
				return err
			}
			defer closeFn()

			if ruleID == "" {
				versions, err := mgr.ListAllVersions(limit)
				if err != nil {
					return err
				}
				return printJSON(cmd, versions)
			}
			versions, err := mgr.ListVersions(ruleID, limit)
			if err != nil {
				return err
			}
			return printJSON(cmd, versions)
		},
	}
	cmd.Flags().StringVar(&ruleID, "rule-id", "", "rule id (omit to list every rule's versions)")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum versions to return (0 = unlimited)")
	return cmd
}

func newVersionActivateCommand() *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "activate",
		Short: "Activate a version by id, archiving every other version of the same rule (rollback is just activating an older id)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ac := getAppContext(cmd)
			mgr, closeFn, err := buildVersionStore(ac)
			if err != nil {
				return err
			}
			defer closeFn()
			v, err := mgr.ActivateVersion(id)
			if err != nil {
				return err
			}
			return printJSON(cmd, v)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "version id (required)")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func newVersionDeleteCommand() *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a version by id (fails if it is the active version)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ac := getAppContext(cmd)
			mgr, closeFn, err := buildVersionStore(ac)
			if err != nil {
				return err
			}
			defer closeFn()
			return mgr.DeleteVersion(id)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "version id (required)")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func newVersionHistoryCommand() *cobra.Command {
	var ruleID string
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show a rule's version history with per-key diffs against the previous version",
		RunE: func(cmd *cobra.Command, args []string) error {
			ac := getAppContext(cmd)
			mgr, closeFn, err := buildVersionStore(ac)
			if err != nil {
				return err
			}
			defer closeFn()
			h, err := mgr.GetHistory(ruleID, limit)
			if err != nil {
				return err
			}
			return printJSON(cmd, h)
		},
	}
	cmd.Flags().StringVar(&ruleID, "rule-id", "", "rule id (required)")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum versions to return (0 = unlimited)")
	_ = cmd.MarkFlagRequired("rule-id")
	return cmd
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
