package serialization

import (
	"encoding/binary"
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
)

const hexDigits = "0123456789ABCDEF"

// utf16LE is the code unit encoding CLIXML escapes are defined over.
var utf16LE = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// decodeCLIXMLString decodes PowerShell's _xHHHH_ escape sequences in a CLIXML
// string value. The text is converted to UTF-16 code units, every
// "_x" + 4 hex digits + "_" run is replaced by the code unit it names, and
// the result is decoded as UTF-16 so that escaped surrogate halves recombine.
//
// Examples:
//
//	"_x000D_"          → "\r"
//	"_x0000_"          → "\x00"
//	"_xD834__xDD1E_"   → "𝄞" (U+1D11E, surrogate pair)
//	"_x005F_x000D_"    → "_x000D_" (escaped underscore, literal text)
//
// The marker is a lowercase x; hex digits may be either case. Lone
// surrogates decode to U+FFFD.
func decodeCLIXMLString(s string) string {
	// Fast path: if there's no _x pattern, nothing to decode.
	if !strings.Contains(s, "_x") {
		return s
	}

	raw, err := utf16LE.NewEncoder().String(s)
	if err != nil {
		return s
	}
	src := []byte(raw)
	units := len(src) / 2
	unit := func(i int) uint16 { return binary.LittleEndian.Uint16(src[2*i:]) }

	out := make([]byte, 0, len(src))
	for i := 0; i < units; {
		if i+7 <= units && unit(i) == '_' && unit(i+1) == 'x' && unit(i+6) == '_' {
			if v, ok := parseHexUnits(unit(i+2), unit(i+3), unit(i+4), unit(i+5)); ok {
				out = binary.LittleEndian.AppendUint16(out, v)
				i += 7
				continue
			}
		}
		out = append(out, src[2*i], src[2*i+1])
		i++
	}

	decoded, err := utf16LE.NewDecoder().Bytes(out)
	if err != nil {
		return s
	}
	return string(decoded)
}

// encodeCLIXMLString encodes a Go string into PowerShell's CLIXML string format.
// Control characters (U+0000–U+001F, U+007F–U+009F) are encoded as _xHHHH_.
// Characters above U+FFFF are encoded as UTF-16 surrogate pairs (_xHHHH__xHHHH_).
// Underscores followed by 'x' or 'X' are escaped as _x005F_ to prevent ambiguity.
//
// This encoding is applied BEFORE XML escaping. The resulting string will only
// contain printable characters (plus standard XML-special chars like <, >, &).
func encodeCLIXMLString(s string) string {
	if !needsCLIXMLEncoding(s) {
		return s
	}

	var b strings.Builder
	b.Grow(len(s) + len(s)/4)

	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])

		if r == '_' && i+size < len(s) && (s[i+size] == 'x' || s[i+size] == 'X') {
			b.WriteString("_x005F_")
			i += size
			continue
		}

		if needsCLIXMLCharEscape(r) {
			if r > 0xFFFF {
				high, low := utf16.EncodeRune(r)
				writeHex4(&b, uint16(high)) // #nosec G115 -- surrogate halves fit in 16 bits
				writeHex4(&b, uint16(low))  // #nosec G115
			} else {
				writeHex4(&b, uint16(r)) // #nosec G115 -- r <= 0xFFFF
			}
		} else {
			b.WriteRune(r)
		}
		i += size
	}

	return b.String()
}

// needsCLIXMLEncoding reports whether the string contains any characters that
// require CLIXML _xHHHH_ encoding: control characters, supplementary plane
// characters, or underscore-x patterns that need escape-escaping.
func needsCLIXMLEncoding(s string) bool {
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if needsCLIXMLCharEscape(r) {
			return true
		}
		if r == '_' && i+size < len(s) && (s[i+size] == 'x' || s[i+size] == 'X') {
			return true
		}
		i += size
	}
	return false
}

// needsCLIXMLCharEscape reports whether a rune requires _xHHHH_ encoding.
func needsCLIXMLCharEscape(r rune) bool {
	return r <= 0x1F || // C0 control characters (null, tab, CR, LF, etc.)
		(r >= 0x7F && r <= 0x9F) || // DEL + C1 control characters
		r > 0xFFFF // Supplementary plane (emoji, musical symbols, etc.)
}

// parseHexUnits parses four UTF-16 code units as hex digits.
func parseHexUnits(digits ...uint16) (uint16, bool) {
	var val uint16
	for _, c := range digits {
		val <<= 4
		switch {
		case c >= '0' && c <= '9':
			val |= c - '0'
		case c >= 'a' && c <= 'f':
			val |= c - 'a' + 10
		case c >= 'A' && c <= 'F':
			val |= c - 'A' + 10
		default:
			return 0, false
		}
	}
	return val, true
}

// writeHex4 writes a _xHHHH_ escape sequence for a 16-bit code unit directly
// to the builder without any heap allocations (unlike fmt.Fprintf).
func writeHex4(b *strings.Builder, v uint16) {
	var buf [7]byte
	buf[0] = '_'
	buf[1] = 'x'
	buf[2] = hexDigits[v>>12&0xF]
	buf[3] = hexDigits[v>>8&0xF]
	buf[4] = hexDigits[v>>4&0xF]
	buf[5] = hexDigits[v&0xF]
	buf[6] = '_'
	b.Write(buf[:])
}
