package tutor

import (
	_ "embed"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/tolerancia/pkg/model"
	"gopkg.in/yaml.v3"
)

//go:embed persona/default.yaml
var defaultPersonasRaw []byte

// Persona is the instruction set the tutor follows on one track
type Persona struct {
	Track       model.Track `yaml:"track"`
	Name        string      `yaml:"name"`
	Instruction string      `yaml:"instruction"`
}

// Personas maps each track to its persona
type Personas map[model.Track]*Persona

type personaFile struct {
	Tracks []*Persona `yaml:"tracks"`
}

// ParsePersonas decodes a persona YAML document. Every track must be defined exactly once.
func ParsePersonas(data []byte) (Personas, error) {
	var file personaFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, goerr.Wrap(err, "failed to parse persona file")
	}

	personas := make(Personas)
	for _, p := range file.Tracks {
		if err := p.Track.Validate(); err != nil {
			return nil, goerr.Wrap(err, "invalid persona track")
		}
		if p.Instruction == "" {
			return nil, goerr.New("persona instruction is empty", goerr.V("track", p.Track))
		}
		if _, ok := personas[p.Track]; ok {
			return nil, goerr.New("duplicated persona track", goerr.V("track", p.Track))
		}
		personas[p.Track] = p
	}

	for _, t := range model.Tracks() {
		if _, ok := personas[t]; !ok {
			return nil, goerr.New("persona is missing for track", goerr.V("track", t))
		}
	}

	return personas, nil
}

// LoadPersonas reads personas from path, or the embedded defaults when path is empty
func LoadPersonas(path string) (Personas, error) {
	if path == "" {
		return DefaultPersonas(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read persona file", goerr.V("path", path))
	}

	personas, err := ParsePersonas(data)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load personas", goerr.V("path", path))
	}
	return personas, nil
}

// DefaultPersonas returns the embedded persona set
func DefaultPersonas() Personas {
	personas, err := ParsePersonas(defaultPersonasRaw)
	if err != nil {
		panic("embedded persona file is invalid: " + err.Error())
	}
	return personas
}
