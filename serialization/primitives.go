package serialization

import (
	"encoding/base64"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/smnsjas/go-psrpcore/objects"
)

// primitive describes one CLIXML primitive tag.
type primitive struct {
	tag string
	// typeName is the .NET type the tag carries.
	typeName  string
	valueType bool
	decode    func(text string) (interface{}, error)
}

// typeNames returns the .NET type chain of the primitive.
func (p *primitive) typeNames() []string {
	if p.valueType {
		return []string{p.typeName, "System.ValueType", "System.Object"}
	}
	return []string{p.typeName, "System.Object"}
}

// primitives is keyed by tag. SS is decoded by the Deserializer since it
// needs the session cipher.
var primitives = map[string]*primitive{}

func init() {
	for _, p := range []*primitive{
		{"S", "System.String", false, func(s string) (interface{}, error) { return decodeCLIXMLString(s), nil }},
		{"C", "System.Char", true, decodeChar},
		{"B", "System.Boolean", true, decodeBool},
		{"DT", "System.DateTime", true, func(s string) (interface{}, error) { return ParseDateTime(s) }},
		{"TS", "System.TimeSpan", true, func(s string) (interface{}, error) { return ParseDuration(s) }},
		{"By", "System.Byte", true, unsigned(8, func(n uint64) interface{} { return uint8(n) })},
		{"SB", "System.SByte", true, signed(8, func(n int64) interface{} { return int8(n) })},
		{"U16", "System.UInt16", true, unsigned(16, func(n uint64) interface{} { return uint16(n) })},
		{"I16", "System.Int16", true, signed(16, func(n int64) interface{} { return int16(n) })},
		{"U32", "System.UInt32", true, unsigned(32, func(n uint64) interface{} { return uint32(n) })},
		{"I32", "System.Int32", true, signed(32, func(n int64) interface{} { return int32(n) })},
		{"U64", "System.UInt64", true, unsigned(64, func(n uint64) interface{} { return n })},
		{"I64", "System.Int64", true, signed(64, func(n int64) interface{} { return n })},
		{"Sg", "System.Single", true, decodeSingle},
		{"Db", "System.Double", true, decodeDouble},
		{"D", "System.Decimal", true, decodeDecimal},
		{"BA", "System.Byte[]", false, decodeBytes},
		{"G", "System.Guid", true, decodeGUID},
		{"URI", "System.Uri", false, decodeURI},
		{"Version", "System.Version", false, decodeVersion},
		{"XD", "System.Xml.XmlDocument", false, func(s string) (interface{}, error) { return objects.XMLDocument(decodeCLIXMLString(s)), nil }},
		{"SBK", "System.Management.Automation.ScriptBlock", false, func(s string) (interface{}, error) { return objects.ScriptBlock{Text: decodeCLIXMLString(s)}, nil }},
		{"SS", "System.Security.SecureString", false, nil},
	} {
		primitives[p.tag] = p
	}
}

// encodePrimitive maps a primitive Go value to its tag and text. ok is false
// for values that are not primitives. SecureString is handled by the caller.
func encodePrimitive(v interface{}) (tag, text string, ok bool) {
	switch val := v.(type) {
	case string:
		return "S", encodeCLIXMLString(val), true
	case objects.Char:
		return "C", strconv.FormatUint(uint64(val), 10), true
	case bool:
		return "B", strconv.FormatBool(val), true
	case time.Time:
		return "DT", FormatDateTime(val), true
	case time.Duration:
		return "TS", FormatDuration(val), true
	case uint8:
		return "By", strconv.FormatUint(uint64(val), 10), true
	case int8:
		return "SB", strconv.FormatInt(int64(val), 10), true
	case uint16:
		return "U16", strconv.FormatUint(uint64(val), 10), true
	case int16:
		return "I16", strconv.FormatInt(int64(val), 10), true
	case uint32:
		return "U32", strconv.FormatUint(uint64(val), 10), true
	case int32:
		return "I32", strconv.FormatInt(int64(val), 10), true
	case int:
		if val >= math.MinInt32 && val <= math.MaxInt32 {
			return "I32", strconv.Itoa(val), true
		}
		return "I64", strconv.Itoa(val), true
	case uint:
		if val <= math.MaxUint32 {
			return "U32", strconv.FormatUint(uint64(val), 10), true
		}
		return "U64", strconv.FormatUint(uint64(val), 10), true
	case uint64:
		return "U64", strconv.FormatUint(val, 10), true
	case int64:
		return "I64", strconv.FormatInt(val, 10), true
	case float32:
		return "Sg", formatFloat(float64(val), 32), true
	case float64:
		return "Db", formatFloat(val, 64), true
	case decimal.Decimal:
		return "D", val.String(), true
	case []byte:
		return "BA", base64.StdEncoding.EncodeToString(val), true
	case uuid.UUID:
		return "G", val.String(), true
	case *url.URL:
		if val == nil {
			return "", "", false
		}
		return "URI", encodeCLIXMLString(val.String()), true
	case objects.Version:
		return "Version", val.String(), true
	case *objects.Version:
		if val == nil {
			return "", "", false
		}
		return "Version", val.String(), true
	case objects.XMLDocument:
		return "XD", encodeCLIXMLString(string(val)), true
	case objects.ScriptBlock:
		return "SBK", encodeCLIXMLString(val.Text), true
	case *objects.ScriptBlock:
		if val == nil {
			return "", "", false
		}
		return "SBK", encodeCLIXMLString(val.Text), true
	}
	return "", "", false
}

// isPrimitive reports whether v encodes as a primitive leaf.
func isPrimitive(v interface{}) bool {
	if _, ok := v.(*objects.SecureString); ok {
		return true
	}
	_, _, ok := encodePrimitive(v)
	return ok
}

// formatFloat renders f the way .NET round-trip formatting does: shortest
// representation, exponent form outside [1e-4, 1e15), and INF/-INF/NaN for
// the special values.
func formatFloat(f float64, bitSize int) string {
	switch {
	case math.IsInf(f, 1):
		return "INF"
	case math.IsInf(f, -1):
		return "-INF"
	case math.IsNaN(f):
		return "NaN"
	}
	abs := math.Abs(f)
	if f == 0 || (abs >= 1e-4 && abs < 1e15) {
		return strconv.FormatFloat(f, 'f', -1, bitSize)
	}
	return strconv.FormatFloat(f, 'E', -1, bitSize)
}

func parseFloat(s string, bitSize int) (float64, error) {
	switch strings.TrimSpace(s) {
	case "INF", "Infinity":
		return math.Inf(1), nil
	case "-INF", "-Infinity":
		return math.Inf(-1), nil
	case "NaN":
		return math.NaN(), nil
	}
	return strconv.ParseFloat(strings.TrimSpace(s), bitSize)
}

func signed(bits int, conv func(int64) interface{}) func(string) (interface{}, error) {
	return func(s string) (interface{}, error) {
		n, err := strconv.ParseInt(strings.TrimSpace(s), 10, bits)
		if err != nil {
			return nil, err
		}
		return conv(n), nil
	}
}

func unsigned(bits int, conv func(uint64) interface{}) func(string) (interface{}, error) {
	return func(s string) (interface{}, error) {
		n, err := strconv.ParseUint(strings.TrimSpace(s), 10, bits)
		if err != nil {
			return nil, err
		}
		return conv(n), nil
	}
}

func decodeChar(s string) (interface{}, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 16)
	if err != nil {
		return nil, err
	}
	return objects.Char(n), nil
}

func decodeBool(s string) (interface{}, error) {
	switch {
	case strings.EqualFold(s, "true"):
		return true, nil
	case strings.EqualFold(s, "false"):
		return false, nil
	}
	return nil, fmt.Errorf("not a boolean")
}

func decodeSingle(s string) (interface{}, error) {
	f, err := parseFloat(s, 32)
	if err != nil {
		return nil, err
	}
	return float32(f), nil
}

func decodeDouble(s string) (interface{}, error) {
	return parseFloat(s, 64)
}

func decodeDecimal(s string) (interface{}, error) {
	return decimal.NewFromString(strings.TrimSpace(s))
}

func decodeBytes(s string) (interface{}, error) {
	return base64.StdEncoding.DecodeString(strings.TrimSpace(s))
}

func decodeGUID(s string) (interface{}, error) {
	return uuid.Parse(strings.TrimSpace(s))
}

func decodeURI(s string) (interface{}, error) {
	return url.Parse(decodeCLIXMLString(s))
}

func decodeVersion(s string) (interface{}, error) {
	return objects.ParseVersion(s)
}
