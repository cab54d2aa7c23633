package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Category is one taxonomy entry: a canonical job title and its aliases.
type Category struct {
	Name    string
	Aliases []string
}

// Taxonomy keeps categories in file order; the first match wins.
type Taxonomy []Category

// UnmarshalYAML reads a mapping of category -> aliases preserving key order.
func (t *Taxonomy) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: job_title must be a mapping", n.Line)
	}
	out := make(Taxonomy, 0, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		var c Category
		if err := n.Content[i].Decode(&c.Name); err != nil {
			return err
		}
		if err := n.Content[i+1].Decode(&c.Aliases); err != nil {
			return fmt.Errorf("job_title.%s: %w", c.Name, err)
		}
		out = append(out, c)
	}
	*t = out
	return nil
}

// MarshalYAML writes the taxonomy back as an ordered mapping.
func (t Taxonomy) MarshalYAML() (any, error) {
	n := &yaml.Node{Kind: yaml.MappingNode}
	for _, c := range t {
		var k, v yaml.Node
		if err := k.Encode(c.Name); err != nil {
			return nil, err
		}
		if err := v.Encode(c.Aliases); err != nil {
			return nil, err
		}
		n.Content = append(n.Content, &k, &v)
	}
	return n, nil
}

// CountryRule maps a place to Code when it contains any keyword.
type CountryRule struct {
	Code string   `yaml:"code"`
	Any  []string `yaml:"any"`
}

type Rules struct {
	Titles         Taxonomy      `yaml:"job_title"`
	Countries      []CountryRule `yaml:"countries"`
	DefaultCountry string        `yaml:"default_country"`
}

// DefaultRules are the country rules used when no rules file is given.
func DefaultRules() Rules {
	return Rules{
		Countries: []CountryRule{
			{Code: "NL", Any: []string{"netherlands"}},
			{Code: "IR", Any: []string{"ireland"}},
			{Code: "UK", Any: []string{"united kingdom"}},
		},
		DefaultCountry: "CH",
	}
}

// LoadRules reads a rules file. Rule content is taken as given; only the
// shape is checked.
func LoadRules(path string) (Rules, error) {
	var r Rules
	b, err := os.ReadFile(path)
	if err != nil {
		return r, err
	}
	if err := yaml.Unmarshal(b, &r); err != nil {
		return r, fmt.Errorf("parse %s: %w", path, err)
	}
	r.DefaultCountry = strings.TrimSpace(r.DefaultCountry)
	if r.DefaultCountry == "" {
		r.DefaultCountry = "na"
	}
	for i, c := range r.Countries {
		if strings.TrimSpace(c.Code) == "" {
			return r, fmt.Errorf("%s: countries[%d].code is required", path, i)
		}
	}
	return r, nil
}
