package api

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func describe(details []ValidationError) string {
	var b strings.Builder
	for _, d := range details {
		b.WriteString(d.Field + " " + d.Message + "\n")
	}
	return b.String()
}

func TestValidator_Valid(t *testing.T) {
	v, err := NewJobValidator()
	require.NoError(t, err)

	details := v.Validate([]byte(`{
		"label": "nightly",
		"event_delivery_url": "https://collector.test/events",
		"maximum_duration_in_seconds": 300,
		"manifest": ["tests/login.yml"],
		"sources": {"tests/login.yml": "open: /login", "fixtures/user.yml": "name: alice"}
	}`))
	assert.Empty(t, details, describe(details))
}

func TestValidator_Invalid(t *testing.T) {
	v, err := NewJobValidator()
	require.NoError(t, err)

	tests := []struct {
		name    string
		body    string
		code    string
		mention string
	}{
		{
			name:    "not json",
			body:    `{"label": `,
			code:    CodeInvalidJSON,
			mention: "body",
		},
		{
			name:    "missing label",
			body:    `{"event_delivery_url": "http://c.test", "maximum_duration_in_seconds": 10, "manifest": ["a.yml"], "sources": {"a.yml": ""}}`,
			code:    CodeSchema,
			mention: "label",
		},
		{
			name:    "non-positive duration",
			body:    `{"label": "x", "event_delivery_url": "http://c.test", "maximum_duration_in_seconds": 0, "manifest": ["a.yml"], "sources": {"a.yml": ""}}`,
			code:    CodeSchema,
			mention: "maximum_duration_in_seconds",
		},
		{
			name:    "fractional duration",
			body:    `{"label": "x", "event_delivery_url": "http://c.test", "maximum_duration_in_seconds": 1.5, "manifest": ["a.yml"], "sources": {"a.yml": ""}}`,
			code:    CodeSchema,
			mention: "maximum_duration_in_seconds",
		},
		{
			name:    "empty manifest",
			body:    `{"label": "x", "event_delivery_url": "http://c.test", "maximum_duration_in_seconds": 10, "manifest": [], "sources": {"a.yml": ""}}`,
			code:    CodeSchema,
			mention: "manifest",
		},
		{
			name:    "delivery url without scheme",
			body:    `{"label": "x", "event_delivery_url": "c.test/events", "maximum_duration_in_seconds": 10, "manifest": ["a.yml"], "sources": {"a.yml": ""}}`,
			code:    CodeSchema,
			mention: "event_delivery_url",
		},
		{
			name:    "non-string source content",
			body:    `{"label": "x", "event_delivery_url": "http://c.test", "maximum_duration_in_seconds": 10, "manifest": ["a.yml"], "sources": {"a.yml": 3}}`,
			code:    CodeSchema,
			mention: "a.yml",
		},
		{
			name:    "unknown field",
			body:    `{"label": "x", "event_delivery_url": "http://c.test", "maximum_duration_in_seconds": 10, "manifest": ["a.yml"], "sources": {"a.yml": ""}, "priority": 1}`,
			code:    CodeSchema,
			mention: "priority",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			details := v.Validate([]byte(tt.body))
			require.NotEmpty(t, details)
			assert.Equal(t, tt.code, details[0].Code)
			assert.Contains(t, describe(details), tt.mention)
		})
	}
}

func TestFieldOf(t *testing.T) {
	assert.Equal(t, "label", fieldOf([]string{"#Job", "label"}))
	assert.Equal(t, "sources.a.yml", fieldOf([]string{"sources", "a.yml"}))
	assert.Equal(t, "body", fieldOf(nil))
}
