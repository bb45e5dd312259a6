package source

import (
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// YAML translates documents of the form
//
//	structures:
//	  - name: Stock
//	    fields:
//	      - name: name
//	        type: SizedString
//	        maxlen: 10
//
// Scalars are kept as written; "10" and 10 both yield the text "10".
type YAML struct{}

type yamlDocument struct {
	Structures []yamlStructure `yaml:"structures"`
}

type yamlStructure struct {
	Name   string      `yaml:"name"`
	Fields []yaml.Node `yaml:"fields"`
}

// Format returns "yaml".
func (YAML) Format() string { return "yaml" }

// Extensions returns ".yaml" and ".yml".
func (YAML) Extensions() []string { return []string{".yaml", ".yml"} }

// Translate decodes a YAML document. An empty document has no structures.
func (YAML) Translate(r io.Reader) ([]Structure, error) {
	var doc yamlDocument
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("parsing yaml: %w", err)
	}

	out := make([]Structure, 0, len(doc.Structures))
	for _, ys := range doc.Structures {
		s := Structure{Name: ys.Name}
		for i := range ys.Fields {
			fd, err := yamlField(&ys.Fields[i])
			if err != nil {
				return nil, fmt.Errorf("%s field #%d: %w", ys.Name, i+1, err)
			}
			s.Fields = append(s.Fields, fd)
		}
		if err := checkStructure(s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func yamlField(node *yaml.Node) (FieldDecl, error) {
	if node.Kind != yaml.MappingNode {
		return FieldDecl{}, fmt.Errorf("line %d: field must be a mapping", node.Line)
	}

	var fd FieldDecl
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i], node.Content[i+1]
		if val.Kind != yaml.ScalarNode {
			return FieldDecl{}, fmt.Errorf("%w: line %d: %q must be a scalar", ErrInvalidValue, val.Line, key.Value)
		}
		switch key.Value {
		case "name":
			fd.Name = val.Value
		case KeyType:
			fd.Kind = val.Value
		default:
			if fd.Config == nil {
				fd.Config = make(map[string]string)
			}
			fd.Config[key.Value] = val.Value
		}
	}
	return fd, nil
}
