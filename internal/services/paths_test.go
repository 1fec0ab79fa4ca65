package services_test

import (
	"testing"

	"sitegrade/internal/services"
)

func TestPathSegment(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"alice", "alice"},
		{"user-42_x", "user-42_x"},
		{"../../etc", "______etc"},
		{"a/b", "a_b"},
		{"", "_"},
		{"   ", "_"},
		{" bob ", "bob"},
	}
	for _, tt := range tests {
		if got := services.PathSegment(tt.in); got != tt.want {
			t.Fatalf("PathSegment(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
