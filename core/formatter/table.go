package formatter

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/artpar/recordkit/core/importer"
	"github.com/artpar/recordkit/core/record"
)

// TableFormatter formats output as aligned text tables.
type TableFormatter struct{}

// NewTableFormatter creates a new table formatter.
func NewTableFormatter() *TableFormatter {
	return &TableFormatter{}
}

// Name returns the formatter name.
func (f *TableFormatter) Name() string {
	return "table"
}

// Description returns the formatter description.
func (f *TableFormatter) Description() string {
	return "Aligned text table output"
}

// FormatModules formats one row per module.
func (f *TableFormatter) FormatModules(w io.Writer, mods []*importer.Module, opts FormatOptions) error {
	if len(mods) == 0 {
		fmt.Fprintln(w, "No modules loaded.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if !opts.NoHeader {
		fmt.Fprintln(tw, "NAME\tFORMAT\tCLASSES\tSTATE\tORIGIN")
	}
	for _, m := range mods {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			m.Name,
			m.Format,
			f.formatValue(strings.Join(m.ClassNames(), ","), opts.MaxWidth),
			m.State(),
			f.formatValue(m.Origin, opts.MaxWidth),
		)
	}
	return tw.Flush()
}

// FormatModule formats the module header followed by a field table per class.
func (f *TableFormatter) FormatModule(w io.Writer, mod *importer.Module, opts FormatOptions) error {
	fmt.Fprintf(w, "Module: %s\n", mod.Name)
	fmt.Fprintf(w, "Origin: %s\n", mod.Origin)

	classes := mod.Classes()
	if len(classes) == 0 {
		fmt.Fprintln(w, "No classes defined.")
		return nil
	}

	for _, c := range classes {
		fmt.Fprintln(w)
		fmt.Fprintln(w, c.String())

		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		if !opts.NoHeader {
			fmt.Fprintln(tw, "  FIELD\tKIND\tRULES")
		}
		for _, fv := range DescribeClass(c).Fields {
			fmt.Fprintf(tw, "  %s\t%s\t%s\n", fv.Name, fv.Kind, f.formatValue(strings.Join(fv.Rules, ","), opts.MaxWidth))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	return nil
}

// FormatInstance formats a record as key-value pairs in declaration order.
func (f *TableFormatter) FormatInstance(w io.Writer, inst *record.Instance, opts FormatOptions) error {
	if inst == nil {
		fmt.Fprintln(w, "Record not found.")
		return nil
	}

	fmt.Fprintln(w, inst.Class().Name())
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, fv := range inst.Fields() {
		val := "-"
		if fv.Set {
			val = f.formatValue(fv.Value, 0)
		}
		fmt.Fprintf(tw, "  %s:\t%s\n", fv.Name, val)
	}
	return tw.Flush()
}

// FormatError formats an error message.
func (f *TableFormatter) FormatError(w io.Writer, err error) error {
	fmt.Fprintf(w, "Error: %s\n", err.Error())
	return nil
}

// formatValue formats a value for display.
func (f *TableFormatter) formatValue(val any, maxWidth int) string {
	if val == nil {
		return "-"
	}

	var str string
	switch v := val.(type) {
	case string:
		str = v
		if str == "" {
			str = "-"
		}
	case bool:
		if v {
			str = "yes"
		} else {
			str = "no"
		}
	case int:
		str = strconv.Itoa(v)
	case int64:
		str = strconv.FormatInt(v, 10)
	case float64:
		str = strconv.FormatFloat(v, 'g', -1, 64)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			str = fmt.Sprintf("%v", v)
		} else {
			str = string(b)
		}
	}

	if maxWidth > 3 && len(str) > maxWidth {
		str = str[:maxWidth-3] + "..."
	}
	return str
}

func init() {
	Register(NewTableFormatter())
}
