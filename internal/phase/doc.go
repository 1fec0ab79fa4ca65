// Package phase defines the fixed, ordered set of evaluation phases and the
// transitions between them.
package phase
