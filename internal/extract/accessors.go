package extract

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/example/court-autobook/internal/domain/reservation"
)

// accessor pulls one scalar out of a record. An empty string means "absent".
type accessor func(m map[string]any) string

// field reads a top-level key.
func field(key string) accessor {
	return func(m map[string]any) string { return scalarText(m[key]) }
}

// nested reads key inside the mapping stored under parent.
func nested(parent, key string) accessor {
	return func(m map[string]any) string {
		inner, ok := m[parent].(map[string]any)
		if !ok {
			return ""
		}
		return scalarText(inner[key])
	}
}

// firstOf tries accessors in priority order; first non-empty wins.
func firstOf(m map[string]any, list []accessor) string {
	for _, get := range list {
		if v := get(m); v != "" {
			return v
		}
	}
	return ""
}

var inventoryIDAccessors = []accessor{
	field("inventoryItemId"),
	field("inventory_item_id"),
	nested("inventoryItem", "id"),
	nested("inventoryItem", "inventoryItemId"),
}

// probeIDAccessors decide whether a shallow-probe entry is a slot.
var probeIDAccessors = inventoryIDAccessors[:3]

var startAccessors = []accessor{
	field("start"),
	field("startDateTime"),
	field("time"),
	field("slotStart"),
	field("start_time"),
	field("from"),
	field("startTime"),
}

var durationAccessors = []accessor{
	field("duration"),
	field("minutes"),
}

var availabilityKeys = []string{"isAvailable", "available", "is_available"}

// InventoryID resolves the inventory identifier of a record.
func InventoryID(m map[string]any) string { return firstOf(m, inventoryIDAccessors) }

// Start resolves the start timestamp text of a record.
func Start(m map[string]any) string { return firstOf(m, startAccessors) }

// durationMinutes reads an explicit duration, else derives it from
// endDateTime, else falls back to the default.
func durationMinutes(m map[string]any, start string) int {
	if v := firstOf(m, durationAccessors); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			return int(math.Round(f))
		}
	}
	if end := scalarText(m["endDateTime"]); end != "" && start != "" {
		st, err1 := reservation.ParseLocal(start)
		et, err2 := reservation.ParseLocal(end)
		if err1 == nil && err2 == nil && et.After(st) {
			return int(math.Round(et.Sub(st).Minutes()))
		}
	}
	return reservation.DefaultDurationMinutes
}

func availability(m map[string]any) *bool {
	for _, k := range availabilityKeys {
		if b, ok := m[k].(bool); ok {
			return &b
		}
	}
	return nil
}

// scalarText renders a scalar leaf as text. Composite values, booleans, nil
// and empty strings resolve to "".
func scalarText(v any) string {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x)
	case json.Number:
		if s := x.String(); s != "0" {
			return s
		}
		return ""
	case float64:
		if x == 0 {
			return ""
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		if x == 0 {
			return ""
		}
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int:
		if x == 0 {
			return ""
		}
		return strconv.Itoa(x)
	case int64:
		if x == 0 {
			return ""
		}
		return strconv.FormatInt(x, 10)
	case int32:
		if x == 0 {
			return ""
		}
		return strconv.FormatInt(int64(x), 10)
	default:
		return ""
	}
}

// Lookup resolves the first dotted path that yields a non-empty scalar.
// Numeric segments index into sequences, e.g. "reservations.0.guid".
func Lookup(doc any, paths ...string) string {
	for _, p := range paths {
		if v := scalarText(walk(doc, strings.Split(p, "."))); v != "" {
			return v
		}
	}
	return ""
}

func walk(v any, segs []string) any {
	for _, s := range segs {
		switch x := v.(type) {
		case map[string]any:
			v = x[s]
		case []any:
			i, err := strconv.Atoi(s)
			if err != nil || i < 0 || i >= len(x) {
				return nil
			}
			v = x[i]
		default:
			return nil
		}
	}
	return v
}
