package aggregates

import (
	"testing"
	"time"

	"mindloom-backend/domain/config"
	"mindloom-backend/domain/core/entities"
	"mindloom-backend/domain/core/valueobjects"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testUserID = "user-1"

func testPageKey(t *testing.T) valueobjects.PageKey {
	t.Helper()
	key, err := valueobjects.NewPageKey("https://example.com/chat/abc")
	require.NoError(t, err)
	return key
}

// newFragment builds a fragment whose keywords come from the given title
func newFragment(t *testing.T, title string) *entities.Fragment {
	t.Helper()
	content, err := valueobjects.NewCaptureContent(title, "", "captured body text")
	require.NoError(t, err)
	fragment, err := entities.NewFragment(testUserID, content, "https://example.com/chat/abc")
	require.NoError(t, err)
	return fragment
}

func TestRebuildGroupIndex_GreedyFirstMatch(t *testing.T) {
	fragments := []*entities.Fragment{
		newFragment(t, "modelos entrenamiento"), // creates group "modelos"
		newFragment(t, "datos validación"),      // creates group "datos"
		newFragment(t, "precisión modelos"),     // no "precisión" group yet, joins "modelos"
	}

	index, err := RebuildGroupIndex(testUserID, testPageKey(t), fragments, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"modelos", "datos"}, index.Keys())

	modelos, ok := index.GetGroup("modelos")
	require.True(t, ok)
	assert.Equal(t, "Modelos", modelos.Title)
	require.Len(t, modelos.Items, 2)
	assert.True(t, modelos.Items[0].Equals(fragments[0].ID()))
	assert.True(t, modelos.Items[1].Equals(fragments[2].ID()))

	datos, ok := index.GetGroup("datos")
	require.True(t, ok)
	require.Len(t, datos.Items, 1)
	assert.True(t, datos.Items[0].Equals(fragments[1].ID()))

	assert.Equal(t, 3, index.FragmentCount())
}

func TestRebuildGroupIndex_FirstKeywordSeedsNewGroup(t *testing.T) {
	fragments := []*entities.Fragment{
		newFragment(t, "redes neuronas capas"),
	}

	index, err := RebuildGroupIndex(testUserID, testPageKey(t), fragments, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"redes"}, index.Keys())
	assert.False(t, index.HasGroup("neuronas"))
}

func TestRebuildGroupIndex_OverflowBucket(t *testing.T) {
	cfg := config.DefaultDomainConfig()

	fragments := []*entities.Fragment{
		// Titles of pure stopwords yield no keywords
		newFragment(t, "el la de"),
		newFragment(t, "and the of"),
	}

	index, err := RebuildGroupIndex(testUserID, testPageKey(t), fragments, cfg)
	require.NoError(t, err)

	assert.Equal(t, []string{cfg.OverflowGroupKey}, index.Keys())

	overflow, ok := index.GetGroup(cfg.OverflowGroupKey)
	require.True(t, ok)
	assert.Len(t, overflow.Items, 2)
}

func TestRebuildGroupIndex_Deterministic(t *testing.T) {
	fragments := []*entities.Fragment{
		newFragment(t, "modelos datos"),
		newFragment(t, "datos red"),
		newFragment(t, "red modelos"),
		newFragment(t, "evaluación"),
	}

	first, err := RebuildGroupIndex(testUserID, testPageKey(t), fragments, nil)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		again, err := RebuildGroupIndex(testUserID, testPageKey(t), fragments, nil)
		require.NoError(t, err)
		assert.Equal(t, first.Keys(), again.Keys())
		for _, key := range first.Keys() {
			a, _ := first.GetGroup(key)
			b, _ := again.GetGroup(key)
			assert.Equal(t, a.Items, b.Items, "group %q", key)
		}
	}
}

func TestRebuildGroupIndex_SkipsNilFragments(t *testing.T) {
	fragments := []*entities.Fragment{
		newFragment(t, "modelos"),
		nil,
	}

	index, err := RebuildGroupIndex(testUserID, testPageKey(t), fragments, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, index.FragmentCount())
}

func TestRebuildGroupIndex_EmitsRebuildEvent(t *testing.T) {
	index, err := RebuildGroupIndex(testUserID, testPageKey(t), []*entities.Fragment{newFragment(t, "modelos")}, nil)
	require.NoError(t, err)

	uncommitted := index.GetUncommittedEvents()
	require.Len(t, uncommitted, 1)
	assert.Equal(t, "groups.rebuilt", uncommitted[0].GetEventType())

	index.MarkEventsAsCommitted()
	assert.Empty(t, index.GetUncommittedEvents())
}

func TestRebuildGroupIndex_RequiresIdentity(t *testing.T) {
	_, err := RebuildGroupIndex("", testPageKey(t), nil, nil)
	assert.Error(t, err)

	_, err = RebuildGroupIndex(testUserID, valueobjects.PageKey{}, nil, nil)
	assert.Error(t, err)
}

func TestGroupIndex_Diff(t *testing.T) {
	pageKey := testPageKey(t)

	f1 := newFragment(t, "modelos")
	f2 := newFragment(t, "datos")
	f3 := newFragment(t, "modelos extra")

	previous, err := RebuildGroupIndex(testUserID, pageKey, []*entities.Fragment{f1, f2}, nil)
	require.NoError(t, err)

	// f2 removed, f3 joins "modelos"
	current, err := RebuildGroupIndex(testUserID, pageKey, []*entities.Fragment{f1, f3}, nil)
	require.NoError(t, err)

	upserts, removed := current.Diff(previous)

	require.Len(t, upserts, 1)
	assert.Equal(t, "modelos", upserts[0].Key)
	assert.Len(t, upserts[0].Items, 2)
	assert.Equal(t, []string{"datos"}, removed)
}

func TestGroupIndex_DiffAgainstNilUpsertsEverything(t *testing.T) {
	index, err := RebuildGroupIndex(testUserID, testPageKey(t), []*entities.Fragment{
		newFragment(t, "modelos"),
		newFragment(t, "datos"),
	}, nil)
	require.NoError(t, err)

	upserts, removed := index.Diff(nil)

	assert.Len(t, upserts, 2)
	assert.Empty(t, removed)
}

func TestReconstructGroupIndex(t *testing.T) {
	rebuiltAt := time.Now().Add(-time.Hour)
	id := valueobjects.NewFragmentID()

	index, err := ReconstructGroupIndex(testUserID, testPageKey(t), []Group{
		{Key: "modelos", Title: "Modelos", Items: []valueobjects.FragmentID{id}},
		{Key: "modelos", Title: "Duplicate", Items: []valueobjects.FragmentID{id}},
		{Key: "datos", Title: "Datos"},
	}, rebuiltAt)
	require.NoError(t, err)

	// Duplicate keys collapse to the first occurrence
	assert.Equal(t, []string{"modelos", "datos"}, index.Keys())
	assert.Equal(t, 1, index.FragmentCount())
	assert.Equal(t, rebuiltAt, index.RebuiltAt())
	assert.Empty(t, index.GetUncommittedEvents())
}
