// Package enums holds the string enums shared by the API, the database
// schema and the event payloads. Values match the Postgres enum labels.
package enums

import (
	"fmt"
	"slices"
)

func oneOf[T ~string](v T, allowed []T) bool {
	return slices.Contains(allowed, v)
}

func parse[T ~string](kind, value string, allowed []T) (T, error) {
	if v := T(value); oneOf(v, allowed) {
		return v, nil
	}
	var zero T
	return zero, fmt.Errorf("invalid %s %q", kind, value)
}
