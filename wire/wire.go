// Package wire holds the small set of byte-classification helpers that
// command serialisation needs to decide how an argument must be framed
// on the wire (bare atom, quoted string, or literal). The line- and
// literal-framing itself lives in the engine package; this package does
// not duplicate it.
package wire

// isAtomChar returns true if the byte is a valid atom character.
// Atom characters are any CHAR except atom-specials.
func isAtomChar(b byte) bool {
	if b < 0x20 || b > 0x7e {
		return false
	}
	switch b {
	case '(', ')', '{', ' ', '%', '*', '"', '\\', ']':
		return false
	}
	return true
}

// IsAtomSpecial returns true if the byte is an atom-special character.
func IsAtomSpecial(b byte) bool {
	return !isAtomChar(b)
}

// IsQuotedSpecial returns true if the byte needs escaping in a quoted string.
func IsQuotedSpecial(b byte) bool {
	return b == '"' || b == '\\'
}

// NeedsQuoting returns true if the string cannot safely travel as a
// bare atom. Only short, purely alphanumeric arguments are worth
// sending unquoted; anything else goes out as a quoted string (or a
// literal, when NeedsLiteral says so).
func NeedsQuoting(s string) bool {
	if s == "" || len(s) > 100 {
		return true
	}
	for i := 0; i < len(s); i++ {
		b := s[i]
		alnum := (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
		if !alnum {
			return true
		}
	}
	return false
}

// NeedsLiteral returns true if the string must be sent as a literal.
func NeedsLiteral(s string) bool {
	for i := 0; i < len(s); i++ {
		b := s[i]
		if b == '\r' || b == '\n' || b == 0 {
			return true
		}
		if b > 0x7e {
			return true
		}
	}
	return false
}
