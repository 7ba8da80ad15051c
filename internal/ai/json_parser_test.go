package ai

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name  string   `json:"name"`
	Items []string `json:"items"`
}

func TestParseStrategies(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"plain", `{"name": "a", "items": ["x"]}`},
		{"json fence", "```json\n{\"name\": \"a\", \"items\": [\"x\"]}\n```"},
		{"bare fence", "```{\"name\": \"a\", \"items\": [\"x\"]}```"},
		{"trailing commas", `{"name": "a", "items": ["x",],}`},
		{"comment lines", "{\n// the name\n\"name\": \"a\",\n\"items\": [\"x\"]\n}"},
		{"prose around", `Here is the analysis: {"name": "a", "items": ["x"]} Hope that helps!`},
		{"prose with braces in strings", `Sure. {"name": "a", "items": ["x"], "note": "} not the end"} done {`},
		{"fence after prose", "The result:\n```json\n{\"name\": \"a\", \"items\": [\"x\"]}\n```\nThanks"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Parse[sample](tt.input)
			require.True(t, result.Success, result.Error)
			assert.Equal(t, "a", result.Data.Name)
			assert.Equal(t, []string{"x"}, result.Data.Items)
			assert.Equal(t, tt.input, result.OriginalText)
		})
	}
}

func TestParseFailures(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		opts    ParseOptions
		wantErr string
	}{
		{"empty", "   ", ParseOptions{}, "empty input"},
		{"no json", "I cannot analyze this image.", ParseOptions{}, "all JSON parsing strategies failed"},
		{"unbalanced", `{"name": "a"`, ParseOptions{}, "all JSON parsing strategies failed"},
		{"too large", strings.Repeat("x", 64), ParseOptions{MaxInputSize: 32}, "exceeds size limit"},
		{"context prefix", "nope", ParseOptions{Context: "analysis"}, "analysis: "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Parse[sample](tt.input, tt.opts)
			assert.False(t, result.Success)
			assert.Contains(t, result.Error, tt.wantErr)
		})
	}
}

func TestExtractJSON(t *testing.T) {
	assert.Equal(t, `[{"a": 1}, {"b": 2}]`, extractJSON(`list: [{"a": 1}, {"b": 2}] end`))
	assert.Equal(t, `{"a": "\"}"}`, extractJSON(`x {"a": "\"}"} y`))
	assert.Equal(t, "", extractJSON("no json here"))
	assert.Equal(t, "", extractJSON("{ ]"))
}
