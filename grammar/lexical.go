package grammar

import "strings"

// tspecials may not appear in a bare token. The period is included.
const tspecials = `()<>@,;:\"/[]?.=`

func isTSpecial(c byte) bool {
	return strings.IndexByte(tspecials, c) >= 0
}

// isTokenChar rejects controls, space, DEL and tspecials. Bytes of multi-byte
// UTF-8 sequences are accepted.
func isTokenChar(c byte) bool {
	return c > 0x20 && c != 0x7f && !isTSpecial(c)
}

// isSemiTokenChar accepts anything an unquoted attribute value may hold.
func isSemiTokenChar(c byte) bool {
	return c != '"' && c != ';' && c != '\r' && c != '\n'
}

func isHorizontalSpace(c byte) bool {
	return c == ' ' || c == '\t'
}

func isBoundaryTrailer(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n'
}

// token reads a TokenString: one or more token chars.
func (s *scanner) token() (string, error) {
	t := s.takeWhile(isTokenChar)
	if t == "" {
		return "", s.fail("token")
	}
	return t, nil
}

// semiToken reads a SemiTokenString. An empty result means nothing was consumed.
func (s *scanner) semiToken() string {
	return s.takeWhile(isSemiTokenChar)
}

// quoted reads a quoted string and returns its content with \" decoded.
func (s *scanner) quoted() (string, error) {
	if !s.present(`"`) {
		return "", s.fail(`'"'`)
	}

	var sb strings.Builder
	for {
		if s.atEnd() {
			return "", s.fail(`closing '"'`)
		}
		if s.present(`\"`) {
			sb.WriteByte('"')
			continue
		}
		c := s.peek()
		s.at++
		if c == '"' {
			return sb.String(), nil
		}
		sb.WriteByte(c)
	}
}

// tokenOrQuoted tries the unquoted form first and falls back to a quoted
// string only when the unquoted form consumed nothing.
func (s *scanner) tokenOrQuoted() (string, error) {
	start := s.at
	v := s.semiToken()
	if s.at > start {
		// blanks before the next ';' are not part of an unquoted value
		return strings.TrimRight(v, " \t"), nil
	}
	return s.quoted()
}

// ParseToken parses s as a single TokenString spanning the whole input.
func ParseToken(s string) (string, error) {
	sc := newScanner(s)
	t, err := sc.token()
	if err != nil {
		return "", err
	}
	if err := sc.requireEnd(); err != nil {
		return "", err
	}
	return t, nil
}

// ParseQuoted parses s as a single quoted string spanning the whole input.
func ParseQuoted(s string) (string, error) {
	sc := newScanner(s)
	q, err := sc.quoted()
	if err != nil {
		return "", err
	}
	if err := sc.requireEnd(); err != nil {
		return "", err
	}
	return q, nil
}
