// Package snapshot models the raw metrics captured from a website as a
// recursive tagged value (null, number, string, bool, array, object) with
// deterministic JSON encoding.
package snapshot
