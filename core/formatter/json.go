package formatter

import (
	"encoding/json"
	"io"

	"github.com/artpar/recordkit/core/importer"
	"github.com/artpar/recordkit/core/record"
)

// JSONFormatter formats output as JSON.
type JSONFormatter struct{}

// NewJSONFormatter creates a new JSON formatter.
func NewJSONFormatter() *JSONFormatter {
	return &JSONFormatter{}
}

// Name returns the formatter name.
func (f *JSONFormatter) Name() string {
	return "json"
}

// Description returns the formatter description.
func (f *JSONFormatter) Description() string {
	return "JSON output format"
}

// FormatModules formats module summaries as JSON.
func (f *JSONFormatter) FormatModules(w io.Writer, mods []*importer.Module, opts FormatOptions) error {
	views := make([]ModuleView, len(mods))
	for i, m := range mods {
		views[i] = SummarizeModule(m)
	}
	output := map[string]any{
		"count":   len(views),
		"modules": views,
	}
	return f.encode(w, output, opts.Compact)
}

// FormatModule formats one module with its classes as JSON.
func (f *JSONFormatter) FormatModule(w io.Writer, mod *importer.Module, opts FormatOptions) error {
	return f.encode(w, DescribeModule(mod), opts.Compact)
}

// FormatInstance formats a record as JSON.
func (f *JSONFormatter) FormatInstance(w io.Writer, inst *record.Instance, opts FormatOptions) error {
	if inst == nil {
		return f.encode(w, map[string]any{"data": nil}, opts.Compact)
	}
	return f.encode(w, DescribeInstance(inst), opts.Compact)
}

// FormatError formats an error as JSON.
func (f *JSONFormatter) FormatError(w io.Writer, err error) error {
	return f.encode(w, map[string]any{"error": err.Error()}, false)
}

func (f *JSONFormatter) encode(w io.Writer, data any, compact bool) error {
	encoder := json.NewEncoder(w)
	if !compact {
		encoder.SetIndent("", "  ")
	}
	return encoder.Encode(data)
}

func init() {
	Register(NewJSONFormatter())
}
