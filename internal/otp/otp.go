// Package otp validates the shape of one-time codes before they are shipped
// to the backend. Shape checks only; whether a code is correct is always the
// backend's call.
package otp

// WellFormed reports whether code is exactly digits decimal digits.
func WellFormed(code string, digits int) bool {
	if digits <= 0 || len(code) != digits {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
