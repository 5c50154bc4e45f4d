package diff

import (
	"fmt"
	"strings"
)

// SetPath writes value at the dotted path inside m, creating intermediate
// objects as needed ("parameters.auth.type" creates "parameters" and "auth"
// when absent). It fails when a path segment traverses a non-object value.
// It never deletes; callers express removal with explicit nulls.
func SetPath(m map[string]any, path string, value any) error {
	if path == "" {
		return fmt.Errorf("%w: empty update path", ErrInvalidOperation)
	}

	segments := strings.Split(path, ".")

	current := m

	for _, segment := range segments[:len(segments)-1] {
		if segment == "" {
			return fmt.Errorf("%w: update path %q has an empty segment", ErrInvalidOperation, path)
		}

		next, exists := current[segment]
		if !exists || next == nil {
			child := map[string]any{}
			current[segment] = child
			current = child

			continue
		}

		child, ok := next.(map[string]any)
		if !ok {
			return fmt.Errorf("%w: update path %q traverses non-object value at %q", ErrInvalidOperation, path, segment)
		}

		current = child
	}

	last := segments[len(segments)-1]
	if last == "" {
		return fmt.Errorf("%w: update path %q has an empty segment", ErrInvalidOperation, path)
	}

	current[last] = value

	return nil
}
