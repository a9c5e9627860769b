// Package extract finds slot records inside search responses whose schema
// is not fixed.
//
// Extraction runs in two phases. A shallow probe looks at a handful of
// well-known result containers. Only when that finds nothing does a deep,
// cycle-safe walk of the whole document run, collecting any mapping that has
// both a start-like key and an inventory-id-like key.
package extract

import (
	"reflect"
	"sort"
	"strings"

	"github.com/example/court-autobook/internal/domain/reservation"
)

// probeFields are top-level result containers, tried after the document
// itself, in this order.
var probeFields = []string{
	"slots",
	"availableSlots",
	"available_slots",
	"results",
	"data",
	"inventoryItems",
	"items",
	"timeSlots",
	"available",
}

// Slots returns the normalized candidate slots found in doc, in discovery
// order. Records lacking an inventory id or a start are dropped. It never
// fails: malformed parts of the document are ignored.
func Slots(doc reservation.RawDocument) []reservation.CandidateSlot {
	raw := Records(doc)
	out := make([]reservation.CandidateSlot, 0, len(raw))
	for _, m := range raw {
		id := InventoryID(m)
		start := Start(m)
		if id == "" || start == "" {
			continue
		}
		out = append(out, reservation.CandidateSlot{
			InventoryID:     id,
			Start:           start,
			DurationMinutes: durationMinutes(m, start),
			Available:       availability(m),
			Raw:             m,
		})
	}
	return out
}

// Records returns the raw slot-like mappings in discovery order, before
// normalization.
func Records(doc reservation.RawDocument) []map[string]any {
	if found := probe(doc); len(found) > 0 {
		return found
	}
	return deepSearch(doc)
}

func probe(doc any) []map[string]any {
	v := newVisited()
	var out []map[string]any

	scan := func(seq []any) {
		for _, el := range seq {
			m, ok := el.(map[string]any)
			if !ok || firstOf(m, probeIDAccessors) == "" {
				continue
			}
			if v.mark(m) {
				out = append(out, m)
			}
		}
	}

	paths := []any{doc}
	if root, ok := doc.(map[string]any); ok {
		for _, f := range probeFields {
			paths = append(paths, root[f])
		}
	}
	for _, p := range paths {
		switch x := p.(type) {
		case []any:
			scan(x)
		case map[string]any:
			for _, k := range sortedKeys(x) {
				if seq, ok := x[k].([]any); ok {
					scan(seq)
				}
			}
		}
	}
	return out
}

// deepSearch walks the document depth-first with an explicit stack. Each
// composite node is expanded at most once, so shared and cyclic references
// terminate. A node that looks like a slot is collected and not descended
// into.
func deepSearch(doc any) []map[string]any {
	v := newVisited()
	var out []map[string]any

	stack := []any{doc}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		switch x := n.(type) {
		case []any:
			if !v.mark(x) {
				continue
			}
			for i := len(x) - 1; i >= 0; i-- {
				stack = append(stack, x[i])
			}
		case map[string]any:
			if !v.mark(x) {
				continue
			}
			keys := sortedKeys(x)
			if looksLikeSlot(keys) {
				out = append(out, x)
				continue
			}
			for i := len(keys) - 1; i >= 0; i-- {
				stack = append(stack, x[keys[i]])
			}
		}
	}
	return out
}

func looksLikeSlot(keys []string) bool {
	var hasStart, hasInventory bool
	for _, k := range keys {
		lk := strings.ToLower(k)
		if k == "start" || strings.Contains(lk, "start") {
			hasStart = true
		}
		if k == "inventoryItemId" || (strings.Contains(lk, "inventory") && strings.Contains(lk, "id")) {
			hasInventory = true
		}
	}
	return hasStart && hasInventory
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// nodeKey identifies a composite node by reference: maps by their header,
// slices by backing array and length.
type nodeKey struct {
	ptr uintptr
	n   int
}

type visited map[nodeKey]struct{}

func newVisited() visited { return visited{} }

// mark records n and reports whether it was seen for the first time.
// Values without identity (nil maps, empty slices) are always "new".
func (v visited) mark(n any) bool {
	var k nodeKey
	switch x := n.(type) {
	case map[string]any:
		if x == nil {
			return true
		}
		k = nodeKey{ptr: reflect.ValueOf(x).Pointer(), n: -1}
	case []any:
		if len(x) == 0 {
			return true
		}
		k = nodeKey{ptr: reflect.ValueOf(x).Pointer(), n: len(x)}
	default:
		return true
	}
	if _, ok := v[k]; ok {
		return false
	}
	v[k] = struct{}{}
	return true
}
