package domain

import "testing"

func TestFilterDataEqual(t *testing.T) {
	tests := []struct {
		name string
		a    FilterData
		b    FilterData
		want bool
	}{
		{
			name: "nil equals nil",
			a:    nil,
			b:    nil,
			want: true,
		},
		{
			name: "nil equals empty map",
			a:    nil,
			b:    FilterData{},
			want: true,
		},
		{
			name: "same keys and values",
			a:    FilterData{"state": "DE", "chamber": "senate"},
			b:    FilterData{"chamber": "senate", "state": "DE"},
			want: true,
		},
		{
			name: "differing value",
			a:    FilterData{"state": "DE"},
			b:    FilterData{"state": "CA"},
			want: false,
		},
		{
			name: "missing key",
			a:    FilterData{"state": "DE", "chamber": "senate"},
			b:    FilterData{"state": "DE"},
			want: false,
		},
		{
			name: "empty value is a present key",
			a:    FilterData{"state": ""},
			b:    FilterData{},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Equal(tt.b); got != tt.want {
				t.Fatalf("expected Equal=%v, got %v", tt.want, got)
			}
			// Equality is symmetric.
			if got := tt.b.Equal(tt.a); got != tt.want {
				t.Fatalf("expected reversed Equal=%v, got %v", tt.want, got)
			}
		})
	}
}

func TestFilterDataCanonical(t *testing.T) {
	tests := []struct {
		name   string
		filter FilterData
		want   string
	}{
		{
			name:   "nil renders as empty object",
			filter: nil,
			want:   "{}",
		},
		{
			name:   "empty map renders as empty object",
			filter: FilterData{},
			want:   "{}",
		},
		{
			name:   "single key",
			filter: FilterData{"state": "DE"},
			want:   `{"state":"DE"}`,
		},
		{
			name:   "keys sorted regardless of insertion order",
			filter: FilterData{"state": "DE", "chamber": "senate"},
			want:   `{"chamber":"senate","state":"DE"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Canonical(); got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestFilterDataCanonicalAgreesWithEqual(t *testing.T) {
	a := FilterData{"state": "DE", "session": "2024"}
	b := FilterData{"session": "2024", "state": "DE"}

	if !a.Equal(b) {
		t.Fatal("expected filters with same keys and values to be equal")
	}
	if a.Canonical() != b.Canonical() {
		t.Fatalf("equal filters must share a canonical form: %q vs %q", a.Canonical(), b.Canonical())
	}
}
