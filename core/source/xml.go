package source

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html/charset"
)

// XML translates documents of the form
//
//	<structures>
//	  <structure name="Stock">
//	    <field type="SizedString" maxlen="10">name</field>
//	  </structure>
//	</structures>
//
// The root element name is not significant. Only structure elements that
// are direct children of the root and field elements that are direct
// children of a structure are read.
type XML struct{}

type xmlDocument struct {
	Structures []xmlStructure `xml:"structure"`
}

type xmlStructure struct {
	Name   string     `xml:"name,attr"`
	Fields []xmlField `xml:"field"`
}

type xmlField struct {
	Text  string     `xml:",chardata"`
	Attrs []xml.Attr `xml:",any,attr"`
}

// Format returns "xml".
func (XML) Format() string { return "xml" }

// Extensions returns ".xml".
func (XML) Extensions() []string { return []string{".xml"} }

// Translate decodes an XML document. Encodings other than UTF-8 named in
// the XML declaration are converted on the fly.
func (XML) Translate(r io.Reader) ([]Structure, error) {
	dec := xml.NewDecoder(r)
	dec.CharsetReader = charset.NewReaderLabel

	var doc xmlDocument
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parsing xml: %w", err)
	}

	out := make([]Structure, 0, len(doc.Structures))
	for _, xs := range doc.Structures {
		s := Structure{Name: strings.TrimSpace(xs.Name)}
		for _, xf := range xs.Fields {
			fd := FieldDecl{Name: strings.TrimSpace(xf.Text)}
			for _, a := range xf.Attrs {
				if a.Name.Local == KeyType {
					fd.Kind = a.Value
					continue
				}
				if fd.Config == nil {
					fd.Config = make(map[string]string)
				}
				fd.Config[a.Name.Local] = a.Value
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
