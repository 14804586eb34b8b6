package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBlueprint(t *testing.T) {
	t.Parallel()

	bp, err := ParseBlueprint([]byte(`{
		"title": "Customer feedback",
		"description": "Tell us",
		"fields": [
			{"type": "text", "label": "Name", "required": true},
			{"type": "radio", "label": "Happy?", "options": ["Yes", "No"]},
			{"type": "rating", "validation": {"min": 0, "max": 10}},
			{"type": "file"}
		],
		"settings": {"is_quiz": true, "collect_email": true}
	}`))
	require.NoError(t, err)

	assert.Equal(t, "Customer feedback", bp.Title)
	require.Len(t, bp.Fields, 4)
	assert.Equal(t, FieldRadio, bp.Fields[1].Type)
	assert.Equal(t, []string{"Yes", "No"}, bp.Fields[1].Options)

	low, high := bp.Fields[2].RatingBounds()
	assert.Equal(t, 0, low)
	assert.Equal(t, 10, high)
	assert.Equal(t, "Question", bp.Fields[2].DisplayLabel())

	require.NotNil(t, bp.Settings)
	require.NotNil(t, bp.Settings.IsQuiz)
	assert.True(t, *bp.Settings.IsQuiz)
	assert.True(t, bp.Settings.CollectEmail)
}

func TestParseBlueprint_Rejections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		payload string
	}{
		{"not json", `{"title":`},
		{"missing title", `{"fields":[]}`},
		{"empty title", `{"title":"","fields":[]}`},
		{"field without type", `{"title":"x","fields":[{"label":"a"}]}`},
		{"fields not an array", `{"title":"x","fields":{}}`},
		{"choice without options", `{"title":"x","fields":[{"type":"dropdown","label":"Pick"}]}`},
		{"empty option", `{"title":"x","fields":[{"type":"checkbox","options":[""]}]}`},
		{"rating min not below max", `{"title":"x","fields":[{"type":"rating","validation":{"min":5,"max":5}}]}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseBlueprint([]byte(tc.payload))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestField_RatingBoundsDefaults(t *testing.T) {
	t.Parallel()

	low, high := Field{Type: FieldRating}.RatingBounds()
	assert.Equal(t, 1, low)
	assert.Equal(t, 5, high)
}

func TestFieldKind_IsChoice(t *testing.T) {
	t.Parallel()

	for _, k := range []FieldKind{FieldDropdown, FieldCheckbox, FieldRadio} {
		assert.True(t, k.IsChoice(), k)
	}
	for _, k := range []FieldKind{FieldText, FieldRating, FieldFile, "mystery"} {
		assert.False(t, k.IsChoice(), k)
	}
}
