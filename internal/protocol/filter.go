// ABOUTME: Structured filter predicate evaluated against event payloads.
// ABOUTME: Flat key/value equality; a nil or empty filter matches everything.

package protocol

import "reflect"

// MatchFilter reports whether payload satisfies filter. The filter language
// is a flat object: every filter key must be present at the top level of the
// payload with an equal value. Values are compared after JSON decoding, so
// all numbers are float64 and nested values compare structurally.
func MatchFilter(payload map[string]any, filter map[string]any) bool {
	if len(filter) == 0 {
		return true
	}
	for key, want := range filter {
		got, ok := payload[key]
		if !ok || !reflect.DeepEqual(got, want) {
			return false
		}
	}
	return true
}
