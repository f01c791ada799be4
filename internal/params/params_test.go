package params

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryOmitsUnsetFields(t *testing.T) {
	q := Set{InferenceCommand: SmartXpert}.Query()

	assert.Equal(t, "smartxpert", q.Get("inference_command"))
	assert.Len(t, q, 1, "only inference_command should be present: %v", q)
}

func TestQueryDefaults(t *testing.T) {
	q := Default().Query()

	tests := map[string]string{
		"output_format":        "overlay",
		"language":             "fr",
		"inference_command":    "smarturgences",
		"output_selection":     "all",
		"recap_theme":          "dark",
		"static_report_format": "rgb",
	}
	for key, want := range tests {
		assert.Equal(t, want, q.Get(key), key)
	}
	assert.NotContains(t, q, "signed_url")
	assert.NotContains(t, q, "timezone")
	assert.NotContains(t, q, "structured_report_format")
}

func TestQuerySignedURLAndTimezone(t *testing.T) {
	signed := false
	q := Set{InferenceCommand: SmartUrgences, SignedURL: &signed, Timezone: "+2"}.Query()

	assert.Equal(t, "false", q.Get("signed_url"))
	assert.Equal(t, "+2", q.Get("timezone"))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		set     Set
		wantErr bool
	}{
		{"defaults", Default(), false},
		{"minimal", Set{InferenceCommand: SmartXpert}, false},
		{"no command", Set{Language: English}, true},
		{"unknown command", Set{InferenceCommand: "smartfoo"}, true},
		{"unknown language", Set{InferenceCommand: SmartXpert, Language: "xx"}, true},
		{"unknown static report", Set{InferenceCommand: SmartXpert, StaticReportFormat: "tiff"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.set.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestBuild(t *testing.T) {
	template := Set{Language: English, RecapTheme: ThemeLight}

	sets, err := Build(template, SmartUrgences, SmartXpert, SmartUrgences)
	require.NoError(t, err)
	require.Len(t, sets, 2)

	assert.Equal(t, SmartUrgences, sets[0].InferenceCommand)
	assert.Equal(t, SmartXpert, sets[1].InferenceCommand)
	for _, s := range sets {
		assert.Equal(t, English, s.Language)
		assert.Equal(t, ThemeLight, s.RecapTheme)
	}
}

func TestBuildWithoutCommands(t *testing.T) {
	_, err := Build(Default())
	assert.True(t, errors.Is(err, ErrNoInferenceCommand))
}
