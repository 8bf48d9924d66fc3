// internal/plan/plan_test.go
package plan

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePlan = `
url: https://example.com/apply
steps:
  - action: input
    label: Email address
    value: jo@example.com
  - action: select
    selector: select#country
    value: United Kingdom
    fallback_index: 2
  - action: radio
    label: Are you a UK resident?
    value: "Yes"
  - action: date
    selector: input#dob
    value: 29/02/2028
    timeout: 5s
  - action: month_year
    labels: [Card expiry, Expiry date]
    month: 7
    year: 2031
  - action: wait_idle
    optional: true
`

func TestParse(t *testing.T) {
	p, err := Parse([]byte(samplePlan))
	require.NoError(t, err)

	assert.Equal(t, "https://example.com/apply", p.URL)
	require.Len(t, p.Steps, 6)

	sel := p.Steps[1]
	assert.Equal(t, ActionSelect, sel.Action)
	require.NotNil(t, sel.FallbackIndex)
	assert.Equal(t, 2, *sel.FallbackIndex)
	assert.Equal(t, "css=select#country", sel.Target())

	assert.Equal(t, "Yes", p.Steps[2].Value, "quoted YAML booleans stay strings")
	assert.Equal(t, 5*time.Second, p.Steps[3].Timeout)
	assert.Equal(t, []string{"Card expiry", "Expiry date"}, p.Steps[4].Labels)
	assert.True(t, p.Steps[5].Optional)
	assert.Empty(t, p.Steps[5].Target())
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr string
	}{
		{"empty document", "", "plan is empty"},
		{"no steps", "url: https://example.com\n", "no steps"},
		{"unknown key", "steps:\n  - action: click\n    selecter: '#go'\n", "selecter"},
		{"unknown action", "steps:\n  - action: hover\n    selector: '#go'\n", `unknown action "hover"`},
		{"missing target", "steps:\n  - action: click\n", "selector, label or labels"},
		{"input without value", "steps:\n  - action: input\n    label: Name\n", "value is required"},
		{"radio without question", "steps:\n  - action: radio\n    selector: '#r'\n    value: 'No'\n", "question"},
		{"month year without year", "steps:\n  - action: month_year\n    selector: '#e'\n    month: 3\n", "month and year"},
		{"fallback on the wrong action", "steps:\n  - action: menu\n    selector: '#t'\n    value: Mr\n    fallback_index: 1\n", "fallback_index"},
		{"negative timeout", "steps:\n  - action: click\n    selector: '#go'\n    timeout: -1s\n", "negative"},
		{"malformed yaml", "steps: [", "decode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_ReportsStepNumber(t *testing.T) {
	p := &Plan{Steps: []Step{
		{Action: ActionClick, Selector: "#ok"},
		{Action: ActionInput, Label: "Name"},
	}}
	err := p.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "step 2 (input)")
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(samplePlan), 0o600))

	p, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, p.Steps, 6)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
