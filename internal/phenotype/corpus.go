package phenotype

import (
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// CorpusEntry is one entity of a corpus file. Image is an optional path to a
// reference image (relative to the corpus file) used to compute the entity's
// vector when none is given inline.
type CorpusEntry struct {
	ReferenceEntity `yaml:",inline"`
	Image           string `yaml:"image,omitempty"`
}

type corpusFile struct {
	Entities []CorpusEntry `yaml:"entities"`
}

// LoadCorpus parses a YAML corpus file:
//
//	entities:
//	  - id: nordid
//	    name: Nordid
//	    regions: [Scandinavia]
//	    image: images/nordid.jpg
//
// The entries are validated the same way NewIndex validates them.
func LoadCorpus(r io.Reader) ([]CorpusEntry, error) {
	var file corpusFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("corpus file is empty")
		}
		return nil, fmt.Errorf("failed to parse corpus: %w", err)
	}
	if len(file.Entities) == 0 {
		return nil, errors.New("corpus has no entities")
	}

	entities := make([]ReferenceEntity, len(file.Entities))
	for i, entry := range file.Entities {
		if entry.Image == "" && len(entry.Vector) == 0 {
			return nil, fmt.Errorf("entity %q: either image or vector is required", entry.ID)
		}
		entities[i] = entry.ReferenceEntity
	}
	if _, err := NewIndex(entities); err != nil {
		return nil, fmt.Errorf("invalid corpus: %w", err)
	}
	return file.Entities, nil
}
