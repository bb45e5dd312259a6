package record

import (
	"fmt"
	"sort"
	"strings"
)

// bindArguments maps positional and keyword arguments onto params.
// Every parameter is required and may be passed either way.
func bindArguments(class string, params []string, args []any, kwargs map[string]any) ([]any, error) {
	if len(args) > len(params) {
		return nil, fmt.Errorf("%w: %s() takes %d positional %s but %d were given",
			ErrArguments, class, len(params), plural(len(params), "argument"), len(args))
	}

	values := make([]any, len(params))
	filled := make([]bool, len(params))
	for i, a := range args {
		values[i] = a
		filled[i] = true
	}

	keys := make([]string, 0, len(kwargs))
	for k := range kwargs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		i := indexOf(params, k)
		if i < 0 {
			return nil, fmt.Errorf("%w: %s() got an unexpected keyword argument '%s'", ErrArguments, class, k)
		}
		if filled[i] {
			return nil, fmt.Errorf("%w: %s() got multiple values for argument '%s'", ErrArguments, class, k)
		}
		values[i] = kwargs[k]
		filled[i] = true
	}

	var missing []string
	for i, ok := range filled {
		if !ok {
			missing = append(missing, "'"+params[i]+"'")
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s() missing %d required %s: %s",
			ErrArguments, class, len(missing), plural(len(missing), "argument"), strings.Join(missing, ", "))
	}

	return values, nil
}

func indexOf(names []string, name string) int {
	for i, n := range names {
		if n == name {
			return i
		}
	}
	return -1
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
