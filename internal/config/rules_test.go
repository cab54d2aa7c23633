package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestTaxonomyKeepsOrder(t *testing.T) {
	src := "job_title:\n  zeta: [z]\n  alpha: [a, aa]\n  mid: [m]\n"
	var r Rules
	require.NoError(t, yaml.Unmarshal([]byte(src), &r))

	require.Len(t, r.Titles, 3)
	assert.Equal(t, "zeta", r.Titles[0].Name)
	assert.Equal(t, "alpha", r.Titles[1].Name)
	assert.Equal(t, []string{"a", "aa"}, r.Titles[1].Aliases)
	assert.Equal(t, "mid", r.Titles[2].Name)

	b, err := yaml.Marshal(r)
	require.NoError(t, err)
	var back Rules
	require.NoError(t, yaml.Unmarshal(b, &back))
	assert.Equal(t, r.Titles, back.Titles)
}

func TestTaxonomyRejectsList(t *testing.T) {
	var r Rules
	err := yaml.Unmarshal([]byte("job_title:\n  - a\n"), &r)
	assert.Error(t, err)
}

func TestLoadShippedRules(t *testing.T) {
	r, err := LoadRules(filepath.Join("..", "..", "config", "rules.yml"))
	require.NoError(t, err)

	assert.Equal(t, "CH", r.DefaultCountry)
	require.Len(t, r.Countries, 3)
	assert.Equal(t, DefaultRules().Countries, r.Countries)
	require.NotEmpty(t, r.Titles)
	assert.Equal(t, "data scientist", r.Titles[0].Name)
}

func TestLoadRulesErrors(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadRules(filepath.Join(dir, "missing.yml"))
	assert.Error(t, err)

	p := writeFile(t, dir, "r.yml", "countries:\n  - any: [x]\n")
	_, err = LoadRules(p)
	assert.Error(t, err)

	p = writeFile(t, dir, "r2.yml", "countries: []\n")
	r, err := LoadRules(p)
	require.NoError(t, err)
	assert.Equal(t, "na", r.DefaultCountry)
}
