package main

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/artpar/recordkit/core/formatter"
	"github.com/artpar/recordkit/core/record"
)

func newNewCmd(opts *rootOptions) *cobra.Command {
	var (
		output string
		raw    bool
	)

	cmd := &cobra.Command{
		Use:   "new <module>.<Class> [value...] [field=value...]",
		Short: "Construct a validated record",
		Long: `Construct an instance of a class, passing positional values and
field=value keyword arguments to its constructor.

Values that parse as integers become integers, then floats, otherwise
text. --raw passes every value as text.

Examples:
  recordkit new stock.Stock GOOG 100 490.1
  recordkit new stock.Stock name=GOOG price=490.1 shares=100
  recordkit new stock.Stock -- GOOG -100 490.1   # fails: shares must be >= 0`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := formatter.Lookup(output)
			if err != nil {
				return err
			}

			moduleName, className, err := splitTarget(args[0])
			if err != nil {
				return err
			}
			pos, kw, err := parseArguments(args[1:], !raw)
			if err != nil {
				return err
			}

			app, err := opts.newApp()
			if err != nil {
				return err
			}
			defer app.Shutdown()

			mod, err := app.Registry.Import(cmd.Context(), moduleName)
			if err != nil {
				return err
			}
			class, ok := mod.Class(className)
			if !ok {
				return fmt.Errorf("module %s has no class %s (defined: %s)", mod.Name, className, strings.Join(mod.ClassNames(), ", "))
			}

			inst, err := class.Call(pos, kw)
			if err != nil {
				return err
			}
			return f.FormatInstance(cmd.OutOrStdout(), inst, formatter.FormatOptions{})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "table", "output format: table, json, yaml (yml)")
	cmd.Flags().BoolVar(&raw, "raw", false, "pass values as text without coercion")
	return cmd
}

// splitTarget splits "pkg.mod.Class" into module "pkg.mod" and class "Class".
func splitTarget(target string) (string, string, error) {
	i := strings.LastIndex(target, ".")
	if i <= 0 || i == len(target)-1 {
		return "", "", fmt.Errorf("target %q must be <module>.<Class>", target)
	}
	return target[:i], target[i+1:], nil
}

// parseArguments separates positional values from field=value pairs.
// Keywords must follow every positional value.
func parseArguments(raw []string, coerce bool) ([]any, map[string]any, error) {
	var (
		args   []any
		kwargs map[string]any
	)
	for _, s := range raw {
		if name, value, ok := strings.Cut(s, "="); ok && record.IsIdentifier(name) {
			if kwargs == nil {
				kwargs = make(map[string]any)
			}
			if _, dup := kwargs[name]; dup {
				return nil, nil, fmt.Errorf("%w: keyword argument repeated: %s", record.ErrArguments, name)
			}
			kwargs[name] = convert(value, coerce)
			continue
		}
		if kwargs != nil {
			return nil, nil, fmt.Errorf("%w: positional argument %q follows keyword argument", record.ErrArguments, s)
		}
		args = append(args, convert(s, coerce))
	}
	return args, kwargs, nil
}

// convert turns command-line text into an int64, a finite float64 or the
// text itself.
func convert(s string, coerce bool) any {
	if !coerce {
		return s
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
		return f
	}
	return s
}
