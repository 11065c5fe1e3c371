package version

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelrules/decisioncore/internalerr"
)

func content(key string) map[string]any {
	return map[string]any{"threshold": key}
}

// storeUnderTest runs the shared Store contract suite against one
// adapter so MemoryStore and FileStore stay behaviorally identical.
func storeUnderTest(t *testing.T, name string, build func(t *testing.T) Store) {
	t.Run(name+"/create assigns monotone numbers and keeps one active", func(t *testing.T) {
		s := build(t)
		v1, err := s.CreateVersion("rule1", content("a"), "alice", "initial")
		require.NoError(t, err)
		v2, err := s.CreateVersion("rule1", content("b"), "alice", "tighten")
		require.NoError(t, err)
		v3, err := s.CreateVersion("rule1", content("c"), "bob", "loosen")
		require.NoError(t, err)

		assert.Equal(t, 1, v1.VersionNumber)
		assert.Equal(t, 2, v2.VersionNumber)
		assert.Equal(t, 3, v3.VersionNumber)

		active, err := s.GetActiveVersion("rule1")
		require.NoError(t, err)
		assert.Equal(t, v3.ID, active.ID)

		versions, err := s.ListVersions("rule1", 0)
		require.NoError(t, err)
		require.Len(t, versions, 3)
		assert.Equal(t, 3, versions[0].VersionNumber, "descending order")
		activeCount := 0
		for _, v := range versions {
			if v.Status == StatusActive {
				activeCount++
			}
		}
		assert.Equal(t, 1, activeCount)
	})

	t.Run(name+"/rollback via activate, delete rules", func(t *testing.T) {
		s := build(t)
		v1, err := s.CreateVersion("rule1", content("a"), "", "")
		require.NoError(t, err)
		v2, err := s.CreateVersion("rule1", content("b"), "", "")
		require.NoError(t, err)
		_, err = s.CreateVersion("rule1", content("c"), "", "")
		require.NoError(t, err)

		rolled, err := s.ActivateVersion(v1.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusActive, rolled.Status)

		active, err := s.GetActiveVersion("rule1")
		require.NoError(t, err)
		assert.Equal(t, v1.ID, active.ID)

		versions, err := s.ListVersions("rule1", 0)
		require.NoError(t, err)
		for _, v := range versions {
			if v.ID != v1.ID {
				assert.Equal(t, StatusArchived, v.Status)
			}
		}

		err = s.DeleteVersion(v1.ID)
		require.Error(t, err, "deleting the active version is forbidden")
		assert.True(t, internalerr.Is(err, internalerr.ValidationError))

		require.NoError(t, s.DeleteVersion(v2.ID))
		_, err = s.GetVersion(v2.ID)
		require.Error(t, err)
		assert.True(t, internalerr.Is(err, internalerr.NotFound))
	})

	t.Run(name+"/lookup by number and not-found errors", func(t *testing.T) {
		s := build(t)
		v1, err := s.CreateVersion("rule1", content("a"), "", "")
		require.NoError(t, err)

		byNum, err := s.GetVersionByNumber("rule1", 1)
		require.NoError(t, err)
		assert.Equal(t, v1.ID, byNum.ID)

		_, err = s.GetVersionByNumber("rule1", 99)
		require.Error(t, err)
		assert.True(t, internalerr.Is(err, internalerr.NotFound))

		_, err = s.GetVersion("missing")
		require.Error(t, err)
		assert.True(t, internalerr.Is(err, internalerr.NotFound))

		_, err = s.GetActiveVersion("other-rule")
		require.Error(t, err)
		assert.True(t, internalerr.Is(err, internalerr.NotFound))

		_, err = s.ActivateVersion("missing")
		require.Error(t, err)
		assert.True(t, internalerr.Is(err, internalerr.NotFound))
	})

	t.Run(name+"/rules are isolated from each other", func(t *testing.T) {
		s := build(t)
		_, err := s.CreateVersion("rule1", content("a"), "", "")
		require.NoError(t, err)
		_, err = s.CreateVersion("rule2", content("x"), "", "")
		require.NoError(t, err)

		a1, err := s.GetActiveVersion("rule1")
		require.NoError(t, err)
		a2, err := s.GetActiveVersion("rule2")
		require.NoError(t, err)
		assert.Equal(t, StatusActive, a1.Status)
		assert.Equal(t, StatusActive, a2.Status)

		all, err := s.ListAllVersions(0)
		require.NoError(t, err)
		assert.Len(t, all, 2)
	})

	t.Run(name+"/concurrent creates keep the invariant", func(t *testing.T) {
		s := build(t)
		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := s.CreateVersion("rule1", content(string(rune('a'+i))), "", "")
				assert.NoError(t, err)
			}(i)
		}
		wg.Wait()

		versions, err := s.ListVersions("rule1", 0)
		require.NoError(t, err)
		require.Len(t, versions, 10)
		activeCount := 0
		seen := map[int]bool{}
		for _, v := range versions {
			if v.Status == StatusActive {
				activeCount++
			}
			seen[v.VersionNumber] = true
		}
		assert.Equal(t, 1, activeCount)
		for n := 1; n <= 10; n++ {
			assert.True(t, seen[n], "version numbers form a prefix of the positive integers, missing %d", n)
		}
	})
}

func TestMemoryStore(t *testing.T) {
	storeUnderTest(t, "memory", func(t *testing.T) Store {
		return NewMemoryStore()
	})
}

func TestFileStore(t *testing.T) {
	storeUnderTest(t, "file", func(t *testing.T) Store {
		s, err := NewFileStore(t.TempDir(), zerolog.Nop())
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestFileStoreOnDiskLayout(t *testing.T) {
	root := t.TempDir()
	s, err := NewFileStore(root, zerolog.Nop())
	require.NoError(t, err)
	defer s.Close()

	_, err = s.CreateVersion("rule1", content("a"), "", "")
	require.NoError(t, err)
	_, err = s.CreateVersion("rule1", content("b"), "", "")
	require.NoError(t, err)

	for _, name := range []string{"1.json", "2.json"} {
		_, err := os.Stat(filepath.Join(root, "rule1", name))
		assert.NoError(t, err, "expected %s under <root>/<rule_id>/", name)
	}
}

func TestFileStoreReloadsAfterReopen(t *testing.T) {
	root := t.TempDir()
	s1, err := NewFileStore(root, zerolog.Nop())
	require.NoError(t, err)
	created, err := s1.CreateVersion("rule1", map[string]any{"limit": 5.0}, "alice", "initial")
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := NewFileStore(root, zerolog.Nop())
	require.NoError(t, err)
	defer s2.Close()

	loaded, err := s2.GetActiveVersion("rule1")
	require.NoError(t, err)
	assert.Equal(t, created.ID, loaded.ID)
	assert.Equal(t, created.VersionNumber, loaded.VersionNumber)
	assert.Equal(t, "alice", loaded.CreatedBy)
	assert.Equal(t, map[string]any{"limit": 5.0}, loaded.Content)
}

func TestVersionManagerRejectsEmptyContent(t *testing.T) {
	m := NewVersionManager(NewMemoryStore())
	_, err := m.CreateVersion("rule1", nil, "", "")
	require.Error(t, err)
	assert.True(t, internalerr.Is(err, internalerr.ValidationError))

	_, err = m.CreateVersion("rule1", map[string]any{}, "", "")
	require.Error(t, err)
}

func TestVersionManagerDefaultChangelog(t *testing.T) {
	m := NewVersionManager(NewMemoryStore())
	v, err := m.CreateVersion("rule1", content("a"), "", "")
	require.NoError(t, err)
	assert.Equal(t, "Version 1", v.Changelog)

	v2, err := m.CreateVersion("rule1", content("b"), "", "custom note")
	require.NoError(t, err)
	assert.Equal(t, "custom note", v2.Changelog)
}

func TestVersionManagerCompare(t *testing.T) {
	m := NewVersionManager(NewMemoryStore())
	v1, err := m.CreateVersion("rule1", map[string]any{"keep": 1, "change": "old", "drop": true}, "", "")
	require.NoError(t, err)
	v2, err := m.CreateVersion("rule1", map[string]any{"keep": 1, "change": "new", "add": "x"}, "", "")
	require.NoError(t, err)

	diff, err := m.Compare(v1.ID, v2.ID)
	require.NoError(t, err)

	kinds := map[string]string{}
	for _, d := range diff {
		kinds[d.Key] = d.Kind
	}
	assert.Equal(t, "changed", kinds["change"])
	assert.Equal(t, "added", kinds["add"])
	assert.Equal(t, "removed", kinds["drop"])
	_, touched := kinds["keep"]
	assert.False(t, touched)
}

func TestVersionManagerGetHistory(t *testing.T) {
	m := NewVersionManager(NewMemoryStore())
	_, err := m.CreateVersion("rule1", map[string]any{"limit": 1}, "", "")
	require.NoError(t, err)
	_, err = m.CreateVersion("rule1", map[string]any{"limit": 2}, "", "")
	require.NoError(t, err)

	history, err := m.GetHistory("rule1", 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, 2, history[0].Version.VersionNumber)
	require.Len(t, history[0].Diff, 1)
	assert.Equal(t, "changed", history[0].Diff[0].Kind)
	assert.Nil(t, history[1].Diff, "the first version has no predecessor to diff against")
}
