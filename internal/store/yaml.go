package store

import (
	"context"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// seedFile is the YAML layout accepted by LoadYAML:
//
//	commands:
//	  - name: greet
//	    script: return 'hi ' + user.name
//	  - name: rules
//	    template: "{user} please read #rules"
type seedFile struct {
	Commands []Record `yaml:"commands"`
}

// LoadYAML decodes command records from r.
func LoadYAML(r io.Reader) ([]Record, error) {
	var f seedFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	for i, rec := range f.Commands {
		if rec.Name == "" {
			return nil, fmt.Errorf("commands[%d]: %w", i, ErrNameRequired)
		}
	}
	return f.Commands, nil
}

// Import upserts every record into s, stopping at the first failure.
func Import(ctx context.Context, s Store, recs []Record) (int, error) {
	for i, rec := range recs {
		if err := s.Upsert(ctx, rec); err != nil {
			return i, fmt.Errorf("upsert %q: %w", rec.Name, err)
		}
	}
	return len(recs), nil
}
