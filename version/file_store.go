package version

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kestrelrules/decisioncore/internalerr"
)

// FileStore persists versions as <root>/<rule_id>/<version_number>.json.
// File reads open the file and decode with encoding/json. A fsnotify
// watch on root drops active-version cache entries whose path an event
// names; the watch is not recursive, so edits to the version files
// inside <root>/<rule_id>/ raise no event. GetActiveVersion re-reads the
// cached file and falls back to a full scan when it is missing or no
// longer active.
type FileStore struct {
	root    string
	writers *writerPool
	logger  zerolog.Logger

	mu          sync.RWMutex
	activeCache map[string]string // rule_id -> active version's file path
	watcher     *fsnotify.Watcher
}

type fileRecord struct {
	ID            string         `json:"id"`
	RuleID        string         `json:"rule_id"`
	VersionNumber int            `json:"version_number"`
	Content       map[string]any `json:"content"`
	Status        Status         `json:"status"`
	CreatedAt     string         `json:"created_at"`
	CreatedBy     string         `json:"created_by,omitempty"`
	Changelog     string         `json:"changelog"`
}

// NewFileStore creates (if needed) root and returns a FileStore, with
// a background fsnotify watch on root itself (see FileStore).
func NewFileStore(root string, logger zerolog.Logger) (*FileStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("version: creating store root: %w", err)
	}
	s := &FileStore{
		root:        root,
		writers:     newWriterPool(),
		logger:      logger,
		activeCache: make(map[string]string),
	}
	watcher, err := fsnotify.NewWatcher()
	if err == nil {
		s.watcher = watcher
		if err := watcher.Add(root); err == nil {
			go s.watchLoop()
		}
	}
	return s, nil
}

func (s *FileStore) watchLoop() {
	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			s.mu.Lock()
			for ruleID, path := range s.activeCache {
				if path == event.Name {
					delete(s.activeCache, ruleID)
				}
			}
			s.mu.Unlock()
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn().Err(err).Msg("version file store watch error")
		}
	}
}

// Close stops the fsnotify watch, if one was established.
func (s *FileStore) Close() error {
	if s.watcher == nil {
		return nil
	}
	return s.watcher.Close()
}

func (s *FileStore) ruleDir(ruleID string) string {
	return filepath.Join(s.root, ruleID)
}

func (s *FileStore) versionPath(ruleID string, number int) string {
	return filepath.Join(s.ruleDir(ruleID), strconv.Itoa(number)+".json")
}

func (s *FileStore) readAll(ruleID string) ([]fileRecord, error) {
	dir := s.ruleDir(ruleID)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []fileRecord
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		rec, err := s.readFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *FileStore) readFile(path string) (fileRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return fileRecord{}, err
	}
	defer f.Close()
	var rec fileRecord
	if err := json.NewDecoder(f).Decode(&rec); err != nil {
		return fileRecord{}, fmt.Errorf("version: parsing %s: %w", path, err)
	}
	return rec, nil
}

func (s *FileStore) writeFile(rec fileRecord) error {
	if err := os.MkdirAll(s.ruleDir(rec.RuleID), 0o755); err != nil {
		return err
	}
	path := s.versionPath(rec.RuleID, rec.VersionNumber)
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func toRuleVersion(rec fileRecord) RuleVersion {
	createdAt, _ := time.Parse(time.RFC3339Nano, rec.CreatedAt)
	return RuleVersion{
		ID:            rec.ID,
		RuleID:        rec.RuleID,
		VersionNumber: rec.VersionNumber,
		Content:       rec.Content,
		Status:        rec.Status,
		CreatedAt:     createdAt,
		CreatedBy:     rec.CreatedBy,
		Changelog:     rec.Changelog,
	}
}

func (s *FileStore) CreateVersion(ruleID string, content map[string]any, createdBy, changelog string) (RuleVersion, error) {
	writer := s.writers.get(ruleID)
	return writer.do(func() (RuleVersion, error) {
		recs, err := s.readAll(ruleID)
		if err != nil {
			return RuleVersion{}, err
		}
		nextNumber := 1
		for _, r := range recs {
			if r.VersionNumber >= nextNumber {
				nextNumber = r.VersionNumber + 1
			}
		}
		for _, r := range recs {
			if r.Status == StatusActive {
				r.Status = StatusArchived
				if err := s.writeFile(r); err != nil {
					return RuleVersion{}, err
				}
			}
		}
		rec := fileRecord{
			ID:            uuid.NewString(),
			RuleID:        ruleID,
			VersionNumber: nextNumber,
			Content:       content,
			Status:        StatusActive,
			CreatedAt:     time.Now().UTC().Format(time.RFC3339Nano),
			CreatedBy:     createdBy,
			Changelog:     changelog,
		}
		if err := s.writeFile(rec); err != nil {
			return RuleVersion{}, err
		}
		s.mu.Lock()
		s.activeCache[ruleID] = s.versionPath(ruleID, nextNumber)
		s.mu.Unlock()
		return toRuleVersion(rec), nil
	})
}

func (s *FileStore) ListVersions(ruleID string, limit int) ([]RuleVersion, error) {
	recs, err := s.readAll(ruleID)
	if err != nil {
		return nil, err
	}
	out := make([]RuleVersion, len(recs))
	for i, r := range recs {
		out[i] = toRuleVersion(r)
	}
	sortVersionsDesc(out)
	return applyLimit(out, limit), nil
}

func (s *FileStore) ListAllVersions(limit int) ([]RuleVersion, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, err
	}
	var out []RuleVersion
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		versions, err := s.ListVersions(entry.Name(), 0)
		if err != nil {
			return nil, err
		}
		out = append(out, versions...)
	}
	sortVersionsDesc(out)
	return applyLimit(out, limit), nil
}

func (s *FileStore) findByID(id string) (fileRecord, string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return fileRecord{}, "", err
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		recs, err := s.readAll(entry.Name())
		if err != nil {
			return fileRecord{}, "", err
		}
		for _, r := range recs {
			if r.ID == id {
				return r, s.versionPath(r.RuleID, r.VersionNumber), nil
			}
		}
	}
	return fileRecord{}, "", internalerr.New(internalerr.NotFound, "version %q not found", id)
}

func (s *FileStore) GetVersion(id string) (RuleVersion, error) {
	rec, _, err := s.findByID(id)
	if err != nil {
		return RuleVersion{}, err
	}
	return toRuleVersion(rec), nil
}

func (s *FileStore) GetVersionByNumber(ruleID string, number int) (RuleVersion, error) {
	rec, err := s.readFile(s.versionPath(ruleID, number))
	if err != nil {
		return RuleVersion{}, internalerr.New(internalerr.NotFound, "rule %q has no version %d", ruleID, number)
	}
	return toRuleVersion(rec), nil
}

func (s *FileStore) GetActiveVersion(ruleID string) (RuleVersion, error) {
	s.mu.RLock()
	cached, ok := s.activeCache[ruleID]
	s.mu.RUnlock()
	if ok {
		if rec, err := s.readFile(cached); err == nil && rec.Status == StatusActive {
			return toRuleVersion(rec), nil
		}
		// stale or removed out-of-band; fall through to the full scan
		// and let it repopulate the cache below.
	}
	recs, err := s.readAll(ruleID)
	if err != nil {
		return RuleVersion{}, err
	}
	for _, r := range recs {
		if r.Status == StatusActive {
			s.mu.Lock()
			s.activeCache[ruleID] = s.versionPath(ruleID, r.VersionNumber)
			s.mu.Unlock()
			return toRuleVersion(r), nil
		}
	}
	return RuleVersion{}, internalerr.New(internalerr.NotFound, "rule %q has no active version", ruleID)
}

func (s *FileStore) ActivateVersion(id string) (RuleVersion, error) {
	rec, _, err := s.findByID(id)
	if err != nil {
		return RuleVersion{}, err
	}
	writer := s.writers.get(rec.RuleID)
	return writer.do(func() (RuleVersion, error) {
		recs, err := s.readAll(rec.RuleID)
		if err != nil {
			return RuleVersion{}, err
		}
		var target *fileRecord
		for i := range recs {
			if recs[i].ID == id {
				target = &recs[i]
			}
		}
		if target == nil {
			return RuleVersion{}, internalerr.New(internalerr.NotFound, "version %q not found", id)
		}
		for i := range recs {
			recs[i].Status = StatusArchived
			if err := s.writeFile(recs[i]); err != nil {
				return RuleVersion{}, err
			}
		}
		target.Status = StatusActive
		if err := s.writeFile(*target); err != nil {
			return RuleVersion{}, err
		}
		s.mu.Lock()
		s.activeCache[rec.RuleID] = s.versionPath(rec.RuleID, target.VersionNumber)
		s.mu.Unlock()
		return toRuleVersion(*target), nil
	})
}

func (s *FileStore) DeleteVersion(id string) error {
	rec, path, err := s.findByID(id)
	if err != nil {
		return err
	}
	writer := s.writers.get(rec.RuleID)
	_, err = writer.do(func() (RuleVersion, error) {
		if rec.Status == StatusActive {
			return RuleVersion{}, internalerr.New(internalerr.ValidationError, "cannot delete the active version of rule %q", rec.RuleID)
		}
		return RuleVersion{}, os.Remove(path)
	})
	return err
}
