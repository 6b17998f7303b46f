// Package security grades master keys and generated site passwords and
// scores a saved-site audit.
package security

// PasswordStrength represents the strength level of a password.
type PasswordStrength int

const (
	// PasswordWeak indicates an insecure password.
	PasswordWeak PasswordStrength = iota
	// PasswordFair indicates a minimally acceptable password.
	PasswordFair
	// PasswordGood indicates a good password.
	PasswordGood
	// PasswordStrong indicates a strong password.
	PasswordStrong
)

// String returns a human-readable representation of the password strength.
func (s PasswordStrength) String() string {
	switch s {
	case PasswordWeak:
		return "Weak"
	case PasswordFair:
		return "Fair"
	case PasswordGood:
		return "Good"
	case PasswordStrong:
		return "Strong"
	default:
		return "Unknown"
	}
}

// Points returns the score points for this strength level.
// Used in the strength component: Weak=0, Fair=8, Good=17, Strong=25.
func (s PasswordStrength) Points() int {
	switch s {
	case PasswordWeak:
		return 0
	case PasswordFair:
		return 8
	case PasswordGood:
		return 17
	case PasswordStrong:
		return 25
	default:
		return 0
	}
}

// MasterKeyStrength evaluates a human-chosen master key.
// Length is the primary factor per NIST SP 800-63B: no composition rules,
// minimum 8 characters, and avoiding compromised values is checked
// separately.
func MasterKeyStrength(key string) PasswordStrength {
	length := len([]rune(key))

	switch {
	case length >= 20:
		return PasswordStrong
	case length >= 14:
		return PasswordGood
	case length >= 8:
		return PasswordFair
	default:
		return PasswordWeak
	}
}

// GeneratedStrength evaluates a derived site password from its length and
// the alphabet it draws from. For random strings entropy is length times
// log2 of the alphabet size:
// - 80+ bits: Strong
// - 64+ bits: Good
// - 48+ bits: Fair
func GeneratedStrength(password string) PasswordStrength {
	bits := float64(len(password)) * alphabetBits(password)

	switch {
	case bits >= 80:
		return PasswordStrong
	case bits >= 64:
		return PasswordGood
	case bits >= 48:
		return PasswordFair
	default:
		return PasswordWeak
	}
}

// alphabetBits approximates log2 of the alphabet a password was drawn from.
func alphabetBits(s string) float64 {
	var lower, upper, digit, other bool
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z':
			lower = true
		case c >= 'A' && c <= 'Z':
			upper = true
		case c >= '0' && c <= '9':
			digit = true
		default:
			other = true
		}
	}
	switch {
	case other:
		return 6.3 // 62 alphanumerics plus punctuation
	case lower && upper && digit:
		return 5.95 // 62
	case lower && upper:
		return 5.7 // 52
	case digit && !lower && !upper:
		return 3.3 // 10
	default:
		return 5.1 // 36
	}
}
