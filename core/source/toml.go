package source

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// TOML translates documents of the form
//
//	[[structure]]
//	name = "Stock"
//
//	  [[structure.field]]
//	  name = "name"
//	  type = "SizedString"
//	  maxlen = 10
//
// Non-string values are rendered back to their literal text.
type TOML struct{}

type tomlDocument struct {
	Structures []tomlStructure `toml:"structure"`
}

type tomlStructure struct {
	Name   string           `toml:"name"`
	Fields []map[string]any `toml:"field"`
}

// Format returns "toml".
func (TOML) Format() string { return "toml" }

// Extensions returns ".toml".
func (TOML) Extensions() []string { return []string{".toml"} }

// Translate decodes a TOML document.
func (TOML) Translate(r io.Reader) ([]Structure, error) {
	var doc tomlDocument
	if _, err := toml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("parsing toml: %w", err)
	}

	out := make([]Structure, 0, len(doc.Structures))
	for _, ts := range doc.Structures {
		s := Structure{Name: ts.Name}
		for i, raw := range ts.Fields {
			fd, err := tomlField(raw)
			if err != nil {
				return nil, fmt.Errorf("%s field #%d: %w", ts.Name, i+1, err)
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

func tomlField(raw map[string]any) (FieldDecl, error) {
	var fd FieldDecl
	for key, v := range raw {
		text, err := tomlText(v)
		if err != nil {
			return FieldDecl{}, fmt.Errorf("%w: %q: %v", ErrInvalidValue, key, err)
		}
		switch key {
		case "name":
			fd.Name = text
		case KeyType:
			fd.Kind = text
		default:
			if fd.Config == nil {
				fd.Config = make(map[string]string)
			}
			fd.Config[key] = text
		}
	}
	return fd, nil
}

func tomlText(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64), nil
	case bool:
		return strconv.FormatBool(x), nil
	case time.Time:
		return x.Format(time.RFC3339Nano), nil
	default:
		return "", fmt.Errorf("unsupported value of type %T", v)
	}
}
