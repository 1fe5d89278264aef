// Package hashtype infers the digest algorithm of a literal hash string.
package hashtype

// Type names a supported digest algorithm.
type Type string

const (
	None   Type = ""
	MD5    Type = "md5"
	SHA1   Type = "sha1"
	SHA256 Type = "sha256"
)

// Classify returns the algorithm whose hex digest length matches s.
// Anything that is not 32, 40 or 64 hexadecimal characters yields None.
func Classify(s string) Type {
	var t Type
	switch len(s) {
	case 32:
		t = MD5
	case 40:
		t = SHA1
	case 64:
		t = SHA256
	default:
		return None
	}
	if !isHex(s) {
		return None
	}
	return t
}

// Column returns the files table column holding digests of this type.
func (t Type) Column() (string, bool) {
	switch t {
	case MD5, SHA1, SHA256:
		return string(t), true
	default:
		return "", false
	}
}

// Valid reports whether t is a supported algorithm.
func (t Type) Valid() bool {
	_, ok := t.Column()
	return ok
}

func isHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
