// Package taxonomy loads the grievance category list and the municipality
// gazetteer from a TOML file and keeps it current as the file changes.
package taxonomy

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/sahilm/fuzzy"

	"github.com/fyrsmithlabs/grievanced/internal/grievance"
)

//go:embed default.toml
var defaultTOML []byte

// Taxonomy errors.
var (
	// ErrInvalidTOML indicates a taxonomy file that does not parse.
	ErrInvalidTOML = errors.New("invalid taxonomy TOML")

	// ErrInvalidTaxonomy indicates a parsed taxonomy with bad content.
	ErrInvalidTaxonomy = errors.New("invalid taxonomy")
)

// Category is a grievance category with classifier keywords.
type Category struct {
	Name     string   `toml:"name"`
	Keywords []string `toml:"keywords"`
}

// Municipality is one gazetteer entry.
type Municipality struct {
	Name     string   `toml:"name"`
	District string   `toml:"district"`
	Aliases  []string `toml:"aliases"`
}

// Taxonomy is an immutable snapshot of the file.
type Taxonomy struct {
	Categories     []Category     `toml:"category"`
	Municipalities []Municipality `toml:"municipality"`

	// names is the fuzzy search corpus: every name and alias, with owner
	// pointing back into Municipalities.
	names []string
	owner []int
}

// Default returns the built-in taxonomy.
func Default() *Taxonomy {
	t, err := Parse(defaultTOML)
	if err != nil {
		panic(fmt.Sprintf("taxonomy: built-in file invalid: %v", err))
	}
	return t
}

// Load reads and parses a taxonomy file.
func Load(path string) (*Taxonomy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read taxonomy %s: %w", path, err)
	}
	t, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// Parse decodes and validates taxonomy TOML.
func Parse(data []byte) (*Taxonomy, error) {
	var t Taxonomy
	if _, err := toml.Decode(string(data), &t); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTOML, err)
	}
	if err := t.validate(); err != nil {
		return nil, err
	}
	t.index()
	return &t, nil
}

func (t *Taxonomy) validate() error {
	if len(t.Categories) == 0 {
		return fmt.Errorf("%w: no categories", ErrInvalidTaxonomy)
	}
	seen := make([]grievance.CategoryTag, 0, len(t.Categories))
	for i, c := range t.Categories {
		tag := grievance.CategoryTag(c.Name).Clean()
		if tag == "" {
			return fmt.Errorf("%w: category %d has no name", ErrInvalidTaxonomy, i)
		}
		if grievance.Contains(seen, tag) {
			return fmt.Errorf("%w: duplicate category %q", ErrInvalidTaxonomy, c.Name)
		}
		seen = append(seen, tag)
	}
	for i, m := range t.Municipalities {
		if strings.TrimSpace(m.Name) == "" {
			return fmt.Errorf("%w: municipality %d has no name", ErrInvalidTaxonomy, i)
		}
	}
	return nil
}

func (t *Taxonomy) index() {
	for i, m := range t.Municipalities {
		t.names = append(t.names, m.Name)
		t.owner = append(t.owner, i)
		for _, a := range m.Aliases {
			t.names = append(t.names, a)
			t.owner = append(t.owner, i)
		}
	}
}

// Tags returns the category names as tags, in file order.
func (t *Taxonomy) Tags() []grievance.CategoryTag {
	out := make([]grievance.CategoryTag, 0, len(t.Categories))
	for _, c := range t.Categories {
		out = append(out, grievance.CategoryTag(c.Name).Clean())
	}
	return out
}

// Canonical returns the taxonomy spelling of tag, or false if unknown.
func (t *Taxonomy) Canonical(tag grievance.CategoryTag) (grievance.CategoryTag, bool) {
	tags := t.Tags()
	if i := grievance.IndexOf(tags, tag); i >= 0 {
		return tags[i], true
	}
	return "", false
}

// MatchMunicipality returns up to limit gazetteer entries matching input,
// best first. An exact name or alias match is returned alone.
func (t *Taxonomy) MatchMunicipality(input string, limit int) []Municipality {
	input = strings.Join(strings.Fields(input), " ")
	if input == "" || limit <= 0 {
		return nil
	}
	for i, n := range t.names {
		if strings.EqualFold(n, input) {
			return []Municipality{t.Municipalities[t.owner[i]]}
		}
	}

	var out []Municipality
	picked := make(map[int]bool)
	for _, m := range fuzzy.Find(input, t.names) {
		idx := t.owner[m.Index]
		if picked[idx] {
			continue
		}
		picked[idx] = true
		out = append(out, t.Municipalities[idx])
		if len(out) == limit {
			break
		}
	}
	return out
}
