package workflow

import (
	"fmt"
	"sort"
	"strings"

	internaljson "github.com/richinex/parallax/internal/json"
)

// TransformFunc is a pure function applied by a transform node to the
// concatenated output of its predecessors.
type TransformFunc func(input string) (string, error)

// transformCatalog maps catalog names to handlers. Resolved at graph
// construction so an unknown name fails before any work starts.
var transformCatalog = map[string]TransformFunc{
	"concat": func(input string) (string, error) {
		return input, nil
	},
	"uppercase": func(input string) (string, error) {
		return strings.ToUpper(input), nil
	},
	"lowercase": func(input string) (string, error) {
		return strings.ToLower(input), nil
	},
	"trim": func(input string) (string, error) {
		return strings.TrimSpace(input), nil
	},
	"extract_json": func(input string) (string, error) {
		extracted, err := internaljson.ExtractJSON(input)
		if err != nil {
			return "", fmt.Errorf("extract_json: %w", err)
		}
		return extracted, nil
	},
}

// LookupTransform resolves a catalog name to its handler.
func LookupTransform(name string) (TransformFunc, error) {
	if name == "" {
		return nil, fmt.Errorf("transform nodes require a transform name (supported: %s)", strings.Join(TransformNames(), ", "))
	}
	fn, ok := transformCatalog[name]
	if !ok {
		return nil, fmt.Errorf("unknown transform %q (supported: %s)", name, strings.Join(TransformNames(), ", "))
	}
	return fn, nil
}

// TransformNames returns the catalog names, sorted.
func TransformNames() []string {
	names := make([]string, 0, len(transformCatalog))
	for name := range transformCatalog {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
