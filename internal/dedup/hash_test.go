package dedup

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rootandstem/curriculum-cli/internal/model"
)

func TestContentHashDeterministic(t *testing.T) {
	a := ContentHash("Salsa Lab", "", "Chop the tomatoes. Mix well!", nil)
	b := ContentHash("Salsa Lab", "", "Chop the tomatoes. Mix well!", nil)
	assert.Equal(t, a, b)
	assert.False(t, IsMetadataDigest(a))
	assert.Len(t, a, 64)
}

func TestContentHashNormalizationInvariant(t *testing.T) {
	// Case and whitespace differences normalize to the same digest.
	a := ContentHash("", "", "Chop the Tomatoes.   Mix WELL", nil)
	b := ContentHash("", "", "chop the tomatoes mix well", nil)
	assert.Equal(t, a, b)
}

func TestContentHashMetadataFallback(t *testing.T) {
	meta := model.Metadata{model.FieldGradeLevels: {"5", "3", "4"}}
	digest := ContentHash("Pizza Workshop", "Hands-on pizza", "", meta)

	assert.True(t, IsMetadataDigest(digest))

	// Grade order must not matter: the fallback sorts before joining.
	reordered := model.Metadata{model.FieldGradeLevels: {"3", "4", "5"}}
	assert.Equal(t, digest, ContentHash("Pizza Workshop", "Hands-on pizza", "", reordered))

	// Different metadata yields a different digest.
	other := ContentHash("Pizza Workshop", "Hands-on pizza", "", model.Metadata{model.FieldGradeLevels: {"1"}})
	assert.NotEqual(t, digest, other)
}

func TestContentHashPunctuationOnlyContentFallsBack(t *testing.T) {
	digest := ContentHash("Title", "", "...", nil)
	assert.True(t, IsMetadataDigest(digest))
}
