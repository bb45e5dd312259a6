package source

import (
	"fmt"
	"io"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// HCL translates documents of the form
//
//	structure "Stock" {
//	  field "name" {
//	    type   = "SizedString"
//	    maxlen = 10
//	  }
//	}
//
// Attribute expressions are evaluated without variables and converted to
// strings.
type HCL struct{}

var hclFileSchema = &hcl.BodySchema{
	Blocks: []hcl.BlockHeaderSchema{
		{Type: "structure", LabelNames: []string{"name"}},
	},
}

var hclStructureSchema = &hcl.BodySchema{
	Blocks: []hcl.BlockHeaderSchema{
		{Type: "field", LabelNames: []string{"name"}},
	},
}

// Format returns "hcl".
func (HCL) Format() string { return "hcl" }

// Extensions returns ".hcl".
func (HCL) Extensions() []string { return []string{".hcl"} }

// Translate parses an HCL document.
func (HCL) Translate(r io.Reader) ([]Structure, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading hcl: %w", err)
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, "source.hcl")
	if diags.HasErrors() {
		return nil, fmt.Errorf("parsing hcl: %w", diags)
	}

	content, diags := file.Body.Content(hclFileSchema)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parsing hcl: %w", diags)
	}

	out := make([]Structure, 0, len(content.Blocks))
	for _, block := range content.Blocks {
		s, err := hclStructure(block)
		if err != nil {
			return nil, err
		}
		if err := checkStructure(s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func hclStructure(block *hcl.Block) (Structure, error) {
	s := Structure{Name: block.Labels[0]}

	body, diags := block.Body.Content(hclStructureSchema)
	if diags.HasErrors() {
		return Structure{}, fmt.Errorf("structure %q: %w", s.Name, diags)
	}

	for _, fb := range body.Blocks {
		fd, err := hclField(fb)
		if err != nil {
			return Structure{}, fmt.Errorf("%s.%s: %w", s.Name, fb.Labels[0], err)
		}
		s.Fields = append(s.Fields, fd)
	}
	return s, nil
}

func hclField(block *hcl.Block) (FieldDecl, error) {
	fd := FieldDecl{Name: block.Labels[0]}

	attrs, diags := block.Body.JustAttributes()
	if diags.HasErrors() {
		return FieldDecl{}, diags
	}

	for name, attr := range attrs {
		text, err := hclText(attr)
		if err != nil {
			return FieldDecl{}, err
		}
		if name == KeyType {
			fd.Kind = text
			continue
		}
		if fd.Config == nil {
			fd.Config = make(map[string]string)
		}
		fd.Config[name] = text
	}
	return fd, nil
}

func hclText(attr *hcl.Attribute) (string, error) {
	val, diags := attr.Expr.Value(nil)
	if diags.HasErrors() {
		return "", fmt.Errorf("%w: %q: %s", ErrInvalidValue, attr.Name, diags.Error())
	}
	if val.IsNull() || !val.IsKnown() {
		return "", fmt.Errorf("%w: %q has no value", ErrInvalidValue, attr.Name)
	}

	str, err := convert.Convert(val, cty.String)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrInvalidValue, attr.Name, err)
	}
	return str.AsString(), nil
}
