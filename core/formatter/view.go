package formatter

import (
	"time"

	"github.com/artpar/recordkit/core/importer"
	"github.com/artpar/recordkit/core/record"
)

// ModuleView is the serializable shape of an imported module.
type ModuleView struct {
	ID       string      `json:"id" yaml:"id"`
	Name     string      `json:"name" yaml:"name"`
	Origin   string      `json:"origin" yaml:"origin"`
	Format   string      `json:"format" yaml:"format"`
	State    string      `json:"state" yaml:"state"`
	LoadedAt time.Time   `json:"loaded_at" yaml:"loaded_at"`
	Classes  []ClassView `json:"classes,omitempty" yaml:"classes,omitempty"`
}

// ClassView describes a record class.
type ClassView struct {
	Name   string      `json:"name" yaml:"name"`
	Params []string    `json:"params" yaml:"params"`
	Fields []FieldView `json:"fields" yaml:"fields"`
}

// FieldView describes one field descriptor.
type FieldView struct {
	Name  string   `json:"name" yaml:"name"`
	Kind  string   `json:"kind" yaml:"kind"`
	Rules []string `json:"rules" yaml:"rules"`
}

// InstanceView is the serializable shape of a constructed record. Unset
// fields are omitted from Values.
type InstanceView struct {
	Class  string         `json:"class" yaml:"class"`
	Values map[string]any `json:"values" yaml:"values"`
}

// SummarizeModule returns the module metadata without class details.
func SummarizeModule(m *importer.Module) ModuleView {
	return ModuleView{
		ID:       m.ID,
		Name:     m.Name,
		Origin:   m.Origin,
		Format:   m.Format,
		State:    m.State().String(),
		LoadedAt: m.LoadedAt,
	}
}

// DescribeModule returns the module metadata with every class.
func DescribeModule(m *importer.Module) ModuleView {
	v := SummarizeModule(m)
	for _, c := range m.Classes() {
		v.Classes = append(v.Classes, DescribeClass(c))
	}
	return v
}

// DescribeClass returns the class signature and field descriptors.
func DescribeClass(c *record.Class) ClassView {
	v := ClassView{Name: c.Name(), Params: c.Params()}
	if v.Params == nil {
		v.Params = []string{}
	}
	for _, d := range c.Fields() {
		fv := FieldView{Name: d.Name(), Kind: d.Kind(), Rules: []string{}}
		for _, r := range d.Rules() {
			fv.Rules = append(fv.Rules, r.Name())
		}
		v.Fields = append(v.Fields, fv)
	}
	if v.Fields == nil {
		v.Fields = []FieldView{}
	}
	return v
}

// DescribeInstance returns the class name and the set field values.
func DescribeInstance(inst *record.Instance) InstanceView {
	return InstanceView{Class: inst.Class().Name(), Values: inst.Values()}
}
