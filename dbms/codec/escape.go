package codec

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
)

const hexDigits = "0123456789ABCDEF"

func needsEscape(r rune) bool {
	switch r {
	case '|', ',', '%', '"', '[':
		return true
	}
	return unicode.IsSpace(r) || r == utf8.RuneError
}

func escape(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if needsEscape(r) {
			for j := i; j < i+size; j++ {
				c := s[j]
				b.WriteByte('%')
				b.WriteByte(hexDigits[c>>4])
				b.WriteByte(hexDigits[c&0x0f])
			}
		} else {
			b.WriteString(s[i : i+size])
		}
		i += size
	}
	return b.String()
}

func unescape(token string) (string, error) {
	if strings.IndexByte(token, '%') < 0 {
		return token, nil
	}
	var b strings.Builder
	b.Grow(len(token))
	for i := 0; i < len(token); i++ {
		c := token[i]
		if c != '%' {
			b.WriteByte(c)
			continue
		}
		if i+2 >= len(token) {
			return "", errors.Newf("codec: truncated escape in %q", token)
		}
		hi, ok1 := fromHex(token[i+1])
		lo, ok2 := fromHex(token[i+2])
		if !ok1 || !ok2 {
			return "", errors.Newf("codec: bad escape %q in %q", token[i:i+3], token)
		}
		b.WriteByte(hi<<4 | lo)
		i += 2
	}
	return b.String(), nil
}

func fromHex(c byte) (byte, bool) {
	switch {
	case '0' <= c && c <= '9':
		return c - '0', true
	case 'A' <= c && c <= 'F':
		return c - 'A' + 10, true
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10, true
	}
	return 0, false
}
