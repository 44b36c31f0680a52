package irc

// Fold returns the RFC1459 lowercase form of s. ASCII letters are lowered and
// the characters []\^ map to {}|~. Nicknames and channel names that fold to the
// same string are the same name.
func Fold(s string) string {
	var buf []byte
	for i := 0; i < len(s); i++ {
		c := foldByte(s[i])
		if c == s[i] {
			if buf != nil {
				buf[i] = c
			}
			continue
		}
		if buf == nil {
			buf = []byte(s)
		}
		buf[i] = c
	}
	if buf == nil {
		return s
	}
	return string(buf)
}

// EqualFold reports whether a and b are the same name under Fold.
func EqualFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		if foldByte(a[i]) != foldByte(b[i]) {
			return false
		}
	}
	return true
}

func foldByte(c byte) byte {
	switch {
	case c >= 'A' && c <= 'Z':
		return c + ('a' - 'A')
	case c == '[':
		return '{'
	case c == ']':
		return '}'
	case c == '\\':
		return '|'
	case c == '^':
		return '~'
	}
	return c
}
