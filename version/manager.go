package version

import (
	"fmt"

	"github.com/kestrelrules/decisioncore/internalerr"
)

// VersionManager wraps a Store with validation, default-changelog,
// diff, and history behavior layered on top of the bare persistence
// contract.
type VersionManager struct {
	store Store
}

func NewVersionManager(store Store) *VersionManager {
	return &VersionManager{store: store}
}

// CreateVersion validates content is non-empty and delegates to the
// underlying Store. When changelog is empty, the returned RuleVersion
// carries "Version N"; the record the Store persisted keeps the empty
// changelog.
func (m *VersionManager) CreateVersion(ruleID string, content map[string]any, createdBy, changelog string) (RuleVersion, error) {
	if len(content) == 0 {
		return RuleVersion{}, internalerr.New(internalerr.ValidationError, "version content must be a non-empty mapping")
	}
	v, err := m.store.CreateVersion(ruleID, content, createdBy, changelog)
	if err != nil {
		return RuleVersion{}, err
	}
	if changelog == "" {
		v.Changelog = fmt.Sprintf("Version %d", v.VersionNumber)
	}
	return v, nil
}

func (m *VersionManager) ListVersions(ruleID string, limit int) ([]RuleVersion, error) {
	return m.store.ListVersions(ruleID, limit)
}

func (m *VersionManager) ListAllVersions(limit int) ([]RuleVersion, error) {
	return m.store.ListAllVersions(limit)
}

func (m *VersionManager) GetVersion(id string) (RuleVersion, error) {
	return m.store.GetVersion(id)
}

func (m *VersionManager) GetVersionByNumber(ruleID string, number int) (RuleVersion, error) {
	return m.store.GetVersionByNumber(ruleID, number)
}

func (m *VersionManager) GetActiveVersion(ruleID string) (RuleVersion, error) {
	return m.store.GetActiveVersion(ruleID)
}

func (m *VersionManager) ActivateVersion(id string) (RuleVersion, error) {
	return m.store.ActivateVersion(id)
}

func (m *VersionManager) DeleteVersion(id string) error {
	return m.store.DeleteVersion(id)
}

// Compare returns a shallow per-key diff between two versions' content:
// keys only in after are "added", keys only in before are "removed",
// keys in both with differing values are "changed".
func (m *VersionManager) Compare(fromID, toID string) ([]DiffEntry, error) {
	from, err := m.store.GetVersion(fromID)
	if err != nil {
		return nil, err
	}
	to, err := m.store.GetVersion(toID)
	if err != nil {
		return nil, err
	}
	return diffContent(from.Content, to.Content), nil
}

func diffContent(before, after map[string]any) []DiffEntry {
	var entries []DiffEntry
	for k, av := range after {
		bv, existed := before[k]
		switch {
		case !existed:
			entries = append(entries, DiffEntry{Key: k, Kind: "added", After: av})
		case !valuesEqual(bv, av):
			entries = append(entries, DiffEntry{Key: k, Kind: "changed", Before: bv, After: av})
		}
	}
	for k, bv := range before {
		if _, ok := after[k]; !ok {
			entries = append(entries, DiffEntry{Key: k, Kind: "removed", Before: bv})
		}
	}
	return entries
}

func valuesEqual(a, b any) bool {
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

// GetHistory returns every version of a rule in descending order along
// with the diff from each version to its immediate predecessor.
type HistoryEntry struct {
	Version RuleVersion
	Diff    []DiffEntry // diff from the previous (lower-numbered) version; nil for the first
}

func (m *VersionManager) GetHistory(ruleID string, limit int) ([]HistoryEntry, error) {
	versions, err := m.store.ListVersions(ruleID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]HistoryEntry, len(versions))
	for i, v := range versions {
		entry := HistoryEntry{Version: v}
		if i+1 < len(versions) {
			entry.Diff = diffContent(versions[i+1].Content, v.Content)
		}
		out[i] = entry
	}
	return out, nil
}
