package otp

import "testing"

func TestWellFormed(t *testing.T) {
	cases := []struct {
		code   string
		digits int
		want   bool
	}{
		{"123456", 6, true},
		{"000000", 6, true},
		{"12345", 6, false},
		{"1234567", 6, false},
		{"12a456", 6, false},
		{"12 456", 6, false},
		{"", 6, false},
		{"123456", 0, false},
		{"١٢٣٤٥٦", 6, false}, // non-ASCII digits are rejected
	}
	for _, tc := range cases {
		if got := WellFormed(tc.code, tc.digits); got != tc.want {
			t.Errorf("WellFormed(%q, %d) = %v, want %v", tc.code, tc.digits, got, tc.want)
		}
	}
}
