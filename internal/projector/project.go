package projector

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"sitegrade/internal/phase"
	"sitegrade/internal/services"
	"sitegrade/internal/snapshot"
)

const maxDepth = 8

// Project returns the minimal subset of snap needed by p. Keys are rewritten to
// their compact form and numeric leaves are rounded to two decimals. Phases
// without an allowlist, and snapshots that are not objects, yield an empty
// object.
func Project(p phase.Phase, snap snapshot.Value) snapshot.Value {
	out := map[string]snapshot.Value{}
	if snap.Kind() != snapshot.KindObject {
		return snapshot.Object(out)
	}
	for _, path := range allowlists[p] {
		value, ok := snap.Lookup(path)
		if !ok {
			continue
		}
		insert(out, strings.Split(path, "."), compact(value))
	}
	return snapshot.Object(out)
}

// insert places value at the compacted segments path, merging with any
// subtree already present.
func insert(dst map[string]snapshot.Value, segments []string, value snapshot.Value) {
	key := CompactKey(segments[0])
	if len(segments) == 1 {
		if existing, ok := dst[key]; ok && existing.Kind() == snapshot.KindObject && value.Kind() == snapshot.KindObject {
			dst[key] = merge(existing, value)
			return
		}
		dst[key] = value
		return
	}
	child := map[string]snapshot.Value{}
	if existing, ok := dst[key]; ok && existing.Kind() == snapshot.KindObject {
		for k, v := range existing.Fields() {
			child[k] = v
		}
	}
	insert(child, segments[1:], value)
	dst[key] = snapshot.Object(child)
}

func merge(a, b snapshot.Value) snapshot.Value {
	out := make(map[string]snapshot.Value, a.Len()+b.Len())
	for k, v := range a.Fields() {
		out[k] = v
	}
	for k, v := range b.Fields() {
		if existing, ok := out[k]; ok && existing.Kind() == snapshot.KindObject && v.Kind() == snapshot.KindObject {
			out[k] = merge(existing, v)
			continue
		}
		out[k] = v
	}
	return snapshot.Object(out)
}

func compact(v snapshot.Value) snapshot.Value {
	switch v.Kind() {
	case snapshot.KindNumber:
		f, _ := v.Float()
		return snapshot.Number(Round2(f))
	case snapshot.KindArray:
		items := v.Items()
		out := make([]snapshot.Value, len(items))
		for i, item := range items {
			out[i] = compact(item)
		}
		return snapshot.Array(out...)
	case snapshot.KindObject:
		out := make(map[string]snapshot.Value, v.Len())
		// Sorted iteration keeps collisions between keys that canonicalise to
		// the same compact form deterministic.
		for _, k := range v.Keys() {
			child, _ := v.Get(k)
			out[CompactKey(k)] = compact(child)
		}
		return snapshot.Object(out)
	default:
		return v
	}
}

// Round2 rounds half away from zero to two decimal places. Non-finite values
// and magnitudes too large to scale are returned unchanged.
func Round2(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return f
	}
	scaled := f * 100
	if math.IsInf(scaled, 0) {
		return f
	}
	return math.Round(scaled) / 100
}

// Validate checks that a projected subset is well formed before it is sent to
// a collaborator.
func Validate(subset snapshot.Value) error {
	if subset.Kind() != snapshot.KindObject {
		return services.Wrap(services.ErrValidation, "projector", "validate", fmt.Sprintf("subset must be an object, got %s", subset.Kind()), nil)
	}
	return validateNode(subset, "", 0)
}

func validateNode(v snapshot.Value, path string, depth int) error {
	if depth > maxDepth {
		return services.Wrap(services.ErrValidation, "projector", "validate", fmt.Sprintf("%s exceeds maximum depth %d", path, maxDepth), nil)
	}
	switch v.Kind() {
	case snapshot.KindNumber:
		f, _ := v.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return services.Wrap(services.ErrValidation, "projector", "validate", fmt.Sprintf("%s is not a finite number", path), nil)
		}
	case snapshot.KindArray:
		for i, item := range v.Items() {
			if err := validateNode(item, fmt.Sprintf("%s[%d]", path, i), depth+1); err != nil {
				return err
			}
		}
	case snapshot.KindObject:
		for _, k := range v.Keys() {
			child, _ := v.Get(k)
			childPath := k
			if path != "" {
				childPath = path + "." + k
			}
			if err := validateNode(child, childPath, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

// Size returns the encoded size of subset in bytes, or -1 if it cannot be
// encoded.
func Size(subset snapshot.Value) int {
	data, err := json.Marshal(subset)
	if err != nil {
		return -1
	}
	return len(data)
}
