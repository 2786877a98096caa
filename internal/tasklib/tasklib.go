// Package tasklib holds the catalog of pre-authored task procedures and the
// strategies that match a command against it.
package tasklib

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/klytics/sheetsense/internal/action"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Procedure is a named, pre-vetted way to accomplish a common task.
type Procedure struct {
	Name     string                   `yaml:"name" json:"name"`
	Category string                   `yaml:"category" json:"category"`
	Example  string                   `yaml:"example" json:"example"`
	Actions  []map[string]interface{} `yaml:"actions" json:"actions"`
}

// TemplateJSON renders the template actions for inclusion in a prompt.
func (p *Procedure) TemplateJSON() (string, error) {
	data, err := json.MarshalIndent(p.Actions, "", "  ")
	if err != nil {
		return "", fmt.Errorf("could not encode procedure %q: %w", p.Name, err)
	}
	return string(data), nil
}

// Templates decodes the template actions into typed actions.
func (p *Procedure) Templates() ([]action.Action, error) {
	out := make([]action.Action, 0, len(p.Actions))
	for i, a := range p.Actions {
		raw, err := json.Marshal(a)
		if err != nil {
			return nil, fmt.Errorf("procedure %q action %d: %w", p.Name, i, err)
		}
		out = append(out, action.Decode(raw))
	}
	return out, nil
}

// Catalog is an ordered list of procedures.
type Catalog struct {
	Procedures []Procedure `yaml:"procedures" json:"procedures"`
}

// Default returns the built-in catalog.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// Parse reads a YAML catalog.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("invalid task catalog: %w", err)
	}
	for i, p := range c.Procedures {
		if strings.TrimSpace(p.Name) == "" {
			return nil, fmt.Errorf("invalid task catalog: procedure %d has no name", i)
		}
	}
	return &c, nil
}

// Load returns the built-in catalog extended by the YAML file at path. User
// procedures come first and replace built-ins of the same name. An empty path
// or a missing file yields the built-in catalog.
func Load(path string) (*Catalog, error) {
	base, err := Default()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return base, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return base, nil
		}
		return nil, fmt.Errorf("could not read task catalog at %s: %w", path, err)
	}
	user, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return user.Merge(base), nil
}

// Merge returns c followed by every procedure of other whose name c does not
// already use.
func (c *Catalog) Merge(other *Catalog) *Catalog {
	out := &Catalog{Procedures: append([]Procedure(nil), c.Procedures...)}
	for _, p := range other.Procedures {
		if c.Find(p.Name) == nil {
			out.Procedures = append(out.Procedures, p)
		}
	}
	return out
}

// Find returns the procedure with the given name, ignoring case.
func (c *Catalog) Find(name string) *Procedure {
	for i := range c.Procedures {
		if strings.EqualFold(c.Procedures[i].Name, strings.TrimSpace(name)) {
			return &c.Procedures[i]
		}
	}
	return nil
}

// Matcher picks the procedure, if any, that a command asks for.
type Matcher interface {
	Match(text string, c *Catalog) (*Procedure, bool)
}

// SubstringMatcher matches when the command contains a procedure's name, or
// its example phrase with the word "this" removed. The command is tried both
// as given and with "this" removed too, so "clean up this data" matches the
// example "clean up this data". Matching ignores case and runs of whitespace.
// The first match in catalog order wins.
type SubstringMatcher struct{}

var (
	thisWord = regexp.MustCompile(`(?i)\bthis\b`)
	spaces   = regexp.MustCompile(`\s+`)
)

func normalize(s string) string {
	return strings.TrimSpace(spaces.ReplaceAllString(strings.ToLower(s), " "))
}

// Match implements Matcher.
func (SubstringMatcher) Match(text string, c *Catalog) (*Procedure, bool) {
	if c == nil {
		return nil, false
	}
	cmd := normalize(text)
	if cmd == "" {
		return nil, false
	}
	bare := normalize(thisWord.ReplaceAllString(text, ""))
	for i := range c.Procedures {
		p := &c.Procedures[i]
		if name := normalize(p.Name); name != "" && strings.Contains(cmd, name) {
			return p, true
		}
		if ex := normalize(thisWord.ReplaceAllString(p.Example, "")); ex != "" && (strings.Contains(cmd, ex) || strings.Contains(bare, ex)) {
			return p, true
		}
	}
	return nil, false
}
