package formatter

import (
	"io"

	"gopkg.in/yaml.v3"

	"github.com/artpar/recordkit/core/importer"
	"github.com/artpar/recordkit/core/record"
)

// YAMLFormatter formats output as YAML.
type YAMLFormatter struct{}

// NewYAMLFormatter creates a new YAML formatter.
func NewYAMLFormatter() *YAMLFormatter {
	return &YAMLFormatter{}
}

// Name returns the formatter name.
func (f *YAMLFormatter) Name() string {
	return "yaml"
}

// Description returns the formatter description.
func (f *YAMLFormatter) Description() string {
	return "YAML output format"
}

// FormatModules formats module summaries as YAML.
func (f *YAMLFormatter) FormatModules(w io.Writer, mods []*importer.Module, opts FormatOptions) error {
	views := make([]ModuleView, len(mods))
	for i, m := range mods {
		views[i] = SummarizeModule(m)
	}
	return f.encode(w, map[string]any{
		"count":   len(views),
		"modules": views,
	})
}

// FormatModule formats one module with its classes as YAML.
func (f *YAMLFormatter) FormatModule(w io.Writer, mod *importer.Module, opts FormatOptions) error {
	return f.encode(w, DescribeModule(mod))
}

// FormatInstance formats a record as YAML.
func (f *YAMLFormatter) FormatInstance(w io.Writer, inst *record.Instance, opts FormatOptions) error {
	if inst == nil {
		return f.encode(w, map[string]any{"data": nil})
	}
	return f.encode(w, DescribeInstance(inst))
}

// FormatError formats an error as YAML.
func (f *YAMLFormatter) FormatError(w io.Writer, err error) error {
	return f.encode(w, map[string]any{"error": err.Error()})
}

func (f *YAMLFormatter) encode(w io.Writer, data any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(data); err != nil {
		return err
	}
	return enc.Close()
}

func init() {
	Register(NewYAMLFormatter(), "yml")
}
