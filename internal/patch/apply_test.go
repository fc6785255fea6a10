package patch

import (
	"encoding/json"
	"testing"

	"github.com/kilupskalvis/sitedoc/internal/fieldpath"
	"github.com/kilupskalvis/sitedoc/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseContent() map[string]any {
	return map[string]any{
		"hero": map[string]any{"title": "Original"},
		"nav":  []any{"home", "about"},
		"a":    map[string]any{"b": 0.0},
	}
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return string(data)
}

func TestApply_SetsFieldsAndLeavesOthers(t *testing.T) {
	in := baseContent()
	before := mustJSON(t, in)

	out, err := ApplyChanges(in, []models.Change{
		{Field: "hero.title", Value: "New"},
		{Field: "nav.1", Value: "contact"},
	})
	require.NoError(t, err)

	assert.Equal(t, "New", out["hero"].(map[string]any)["title"])
	assert.Equal(t, []any{"home", "contact"}, out["nav"])
	assert.Equal(t, map[string]any{"b": 0.0}, out["a"])

	assert.Equal(t, before, mustJSON(t, in), "input must not be modified")
}

func TestApply_AllOrNothing(t *testing.T) {
	changes := []models.Change{
		{Field: "a.b", Value: 1},
		{Field: "hero.title", Value: "New"},
		{Field: "nav.5", Value: "blog"},
	}

	// Every ordering of the batch fails and leaves the input untouched.
	perms := [][]int{{0, 1, 2}, {0, 2, 1}, {1, 0, 2}, {1, 2, 0}, {2, 0, 1}, {2, 1, 0}}
	for _, perm := range perms {
		in := baseContent()
		before := mustJSON(t, in)

		batch := make([]models.Change, len(perm))
		for i, idx := range perm {
			batch[i] = changes[idx]
		}

		out, err := ApplyChanges(in, batch)
		require.Error(t, err)
		assert.ErrorIs(t, err, fieldpath.ErrInvalidPath)
		assert.Nil(t, out)
		assert.Equal(t, before, mustJSON(t, in))
	}
}

func TestCompile_RejectsMalformedPathBeforeApplying(t *testing.T) {
	_, err := Compile([]models.Change{
		{Field: "a.b", Value: 1},
		{Field: "a..c", Value: 2},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, fieldpath.ErrInvalidPath)
	assert.Contains(t, err.Error(), "change 1")
}

func TestCompile_RejectsUnencodableValue(t *testing.T) {
	_, err := Compile([]models.Change{{Field: "a.b", Value: make(chan int)}})
	assert.ErrorIs(t, err, ErrInvalidValue)
}

func TestApply_NormalizesValues(t *testing.T) {
	type price struct {
		Amount int `json:"amount"`
	}

	out, err := ApplyChanges(baseContent(), []models.Change{
		{Field: "a.b", Value: 1},
		{Field: "a.price", Value: price{Amount: 5}},
	})
	require.NoError(t, err)

	assert.Equal(t, 1.0, out["a"].(map[string]any)["b"])
	assert.Equal(t, map[string]any{"amount": 5.0}, out["a"].(map[string]any)["price"])
}

func TestApply_LaterChangesSeeEarlierOnes(t *testing.T) {
	out, err := ApplyChanges(baseContent(), []models.Change{
		{Field: "gallery", Value: map[string]any{"images": []any{"x.png"}}},
		{Field: "gallery.images.0", Value: "y.png"},
	})
	require.NoError(t, err)

	assert.Equal(t, []any{"y.png"}, out["gallery"].(map[string]any)["images"])
}

func TestApply_DoesNotAliasValues(t *testing.T) {
	shared := map[string]any{"k": "v"}
	out, err := ApplyChanges(baseContent(), []models.Change{
		{Field: "x", Value: shared},
		{Field: "y", Value: shared},
		{Field: "x.k", Value: "changed"},
	})
	require.NoError(t, err)

	assert.Equal(t, "changed", out["x"].(map[string]any)["k"])
	assert.Equal(t, "v", out["y"].(map[string]any)["k"])
	assert.Equal(t, "v", shared["k"])
}
