package agents

import (
	"embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const personasPathEnv = "AGENT_PERSONAS_PATH"

//go:embed personas.yaml
var personasFS embed.FS

type Persona struct {
	Name     string   `yaml:"name"`
	Role     string   `yaml:"role"`
	Keywords []string `yaml:"keywords"`
	Prompt   string   `yaml:"prompt"`
}

type PersonaTable struct {
	Version  int       `yaml:"version"`
	Default  string    `yaml:"default"`
	Personas []Persona `yaml:"personas"`
}

// LoadPersonas reads path when set, otherwise the embedded table.
func LoadPersonas(path string) (*PersonaTable, error) {
	var (
		data []byte
		err  error
	)
	if path = strings.TrimSpace(path); path != "" {
		data, err = os.ReadFile(path)
	} else {
		data, err = personasFS.ReadFile("personas.yaml")
	}
	if err != nil {
		return nil, fmt.Errorf("read personas: %w", err)
	}
	return ParsePersonas(data)
}

func ParsePersonas(data []byte) (*PersonaTable, error) {
	var t PersonaTable
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse personas: %w", err)
	}
	if err := t.validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

func (t *PersonaTable) validate() error {
	if len(t.Personas) == 0 {
		return fmt.Errorf("personas: empty table")
	}
	seen := map[string]bool{}
	for i := range t.Personas {
		p := &t.Personas[i]
		p.Name = strings.ToLower(strings.TrimSpace(p.Name))
		p.Prompt = strings.TrimSpace(p.Prompt)
		if p.Name == "" {
			return fmt.Errorf("personas: entry %d has no name", i)
		}
		if p.Prompt == "" {
			return fmt.Errorf("personas: %s has no prompt", p.Name)
		}
		if seen[p.Name] {
			return fmt.Errorf("personas: duplicate %s", p.Name)
		}
		seen[p.Name] = true
		for j, kw := range p.Keywords {
			p.Keywords[j] = strings.ToLower(strings.TrimSpace(kw))
		}
	}
	t.Default = strings.ToLower(strings.TrimSpace(t.Default))
	if t.Default == "" {
		t.Default = t.Personas[len(t.Personas)-1].Name
	}
	if !seen[t.Default] {
		return fmt.Errorf("personas: default %s not defined", t.Default)
	}
	return nil
}

func (t *PersonaTable) Get(name string) (Persona, bool) {
	for _, p := range t.Personas {
		if p.Name == name {
			return p, true
		}
	}
	return Persona{}, false
}

// Match returns the first persona whose keywords occur in input, or the
// default persona.
func (t *PersonaTable) Match(input string) Persona {
	lower := strings.ToLower(input)
	for _, p := range t.Personas {
		for _, kw := range p.Keywords {
			if kw != "" && strings.Contains(lower, kw) {
				return p
			}
		}
	}
	p, _ := t.Get(t.Default)
	return p
}
