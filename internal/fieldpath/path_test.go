package fieldpath

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDoc() map[string]any {
	return map[string]any{
		"hero": map[string]any{"title": "Original", "subtitle": "Welcome"},
		"services": map[string]any{
			"items": []any{
				map[string]any{"title": "Cut", "price": 20.0},
				map[string]any{"title": "Shave", "price": 15.0},
			},
		},
		"tagline": "hello",
	}
}

func TestParse_Tokens(t *testing.T) {
	p, err := Parse("services.items.0.title")
	require.NoError(t, err)

	tokens := p.Tokens()
	require.Len(t, tokens, 4)
	assert.Equal(t, Token{Kind: Property, Key: "services"}, tokens[0])
	assert.Equal(t, Token{Kind: Property, Key: "items"}, tokens[1])
	assert.Equal(t, Token{Kind: Index, Key: "0", Index: 0}, tokens[2])
	assert.Equal(t, Token{Kind: Property, Key: "title"}, tokens[3])
	assert.Equal(t, "services.items.0.title", p.String())
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name string
		path string
	}{
		{"empty", ""},
		{"double dot", "a..b"},
		{"leading dot", ".a"},
		{"trailing dot", "a."},
		{"huge index", "a.99999999999999999999999"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.path)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidPath)

			var ipe *InvalidPathError
			require.True(t, errors.As(err, &ipe))
			assert.Equal(t, tt.path, ipe.Path)
		})
	}
}

func TestSet_ExistingFields(t *testing.T) {
	doc := sampleDoc()

	require.NoError(t, MustParse("hero.title").Set(doc, "New"))
	require.NoError(t, MustParse("services.items.1.price").Set(doc, 18.0))
	require.NoError(t, MustParse("tagline").Set(doc, "bye"))

	assert.Equal(t, "New", doc["hero"].(map[string]any)["title"])
	assert.Equal(t, "Welcome", doc["hero"].(map[string]any)["subtitle"])
	items := doc["services"].(map[string]any)["items"].([]any)
	assert.Equal(t, 18.0, items[1].(map[string]any)["price"])
	assert.Equal(t, "bye", doc["tagline"])
}

func TestSet_ReplaceArrayElement(t *testing.T) {
	doc := sampleDoc()

	require.NoError(t, MustParse("services.items.0").Set(doc, map[string]any{"title": "Trim"}))

	items := doc["services"].(map[string]any)["items"].([]any)
	assert.Equal(t, map[string]any{"title": "Trim"}, items[0])
	assert.Len(t, items, 2)
}

func TestSet_CreatesIntermediateObjects(t *testing.T) {
	doc := sampleDoc()

	require.NoError(t, MustParse("footer.contact.email").Set(doc, "a@b.c"))

	v, err := MustParse("footer.contact.email").Get(doc)
	require.NoError(t, err)
	assert.Equal(t, "a@b.c", v)
}

func TestSet_Failures(t *testing.T) {
	tests := []struct {
		name string
		path string
	}{
		{"index past end", "services.items.2.title"},
		{"index at length", "services.items.2"},
		{"non-numeric index", "services.items.first"},
		{"through scalar", "tagline.length"},
		{"set on scalar", "hero.title.text"},
		{"missing array", "gallery.0"},
		{"missing nested array", "gallery.images.0.url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := sampleDoc()
			err := MustParse(tt.path).Set(doc, "x")
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidPath)
			assert.Contains(t, err.Error(), tt.path)
			assert.Equal(t, sampleDoc(), doc, "failed set must not modify the document")
		})
	}
}

func TestSet_IndexTokenOnObjectUsesKey(t *testing.T) {
	doc := map[string]any{"years": map[string]any{"2024": "old"}}

	require.NoError(t, MustParse("years.2024").Set(doc, "new"))
	require.NoError(t, MustParse("years.2025").Set(doc, "next"))

	assert.Equal(t, map[string]any{"2024": "new", "2025": "next"}, doc["years"])
}

func TestGet_Missing(t *testing.T) {
	_, err := MustParse("hero.missing").Get(sampleDoc())
	assert.ErrorIs(t, err, ErrInvalidPath)
}

func TestMustParse_Panics(t *testing.T) {
	assert.Panics(t, func() { MustParse("a..b") })
}
