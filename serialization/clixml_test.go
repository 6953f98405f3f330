package serialization

import (
	"bytes"
	"errors"
	"iter"
	"log/slog"
	"math"
	"net/url"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/smnsjas/go-psrpcore/objects"
)

const objsPrefix = `<Objs Version="1.1.0.1" xmlns="http://schemas.microsoft.com/powershell/2004/04">`

func serializeRaw(t *testing.T, v interface{}, opts ...Option) string {
	t.Helper()
	s := NewSerializer(opts...)
	defer s.Close()
	data, err := s.SerializeRaw(v)
	if err != nil {
		t.Fatalf("SerializeRaw(%T) failed: %v", v, err)
	}
	return string(data)
}

func roundTrip(t *testing.T, v interface{}, opts ...Option) interface{} {
	t.Helper()
	s := NewSerializer(opts...)
	defer s.Close()
	data, err := s.Serialize(v)
	if err != nil {
		t.Fatalf("Serialize(%T) failed: %v", v, err)
	}

	d := NewDeserializer(opts...)
	defer d.Close()
	results, err := d.Deserialize(data)
	if err != nil {
		t.Fatalf("Deserialize failed: %v\n%s", err, data)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	return results[0]
}

func deserializeOne(t *testing.T, clixml string, opts ...Option) interface{} {
	t.Helper()
	d := NewDeserializer(opts...)
	defer d.Close()
	results, err := d.Deserialize([]byte(clixml))
	if err != nil {
		t.Fatalf("Deserialize failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	return results[0]
}

func TestSerializePrimitives(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		input    interface{}
		expected string
	}{
		{"string", "hello", "<S>hello</S>"},
		{"int32", int32(42), "<I32>42</I32>"},
		{"int fits int32", 42, "<I32>42</I32>"},
		{"int wide", 1 << 40, "<I64>1099511627776</I64>"},
		{"int64", int64(-7), "<I64>-7</I64>"},
		{"bool true", true, "<B>true</B>"},
		{"bool false", false, "<B>false</B>"},
		{"nil", nil, "<Nil/>"},
		{"nil object pointer", (*objects.PSObject)(nil), "<Nil/>"},
		{"nil enum pointer", (*objects.Enum)(nil), "<Nil/>"},
		{"nil secure string", (*objects.SecureString)(nil), "<Nil/>"},
		{"nil map", map[string]interface{}(nil), "<Nil/>"},
		{"byte", uint8(255), "<By>255</By>"},
		{"sbyte", int8(-5), "<SB>-5</SB>"},
		{"uint16", uint16(7), "<U16>7</U16>"},
		{"int16", int16(-7), "<I16>-7</I16>"},
		{"uint32", uint32(7), "<U32>7</U32>"},
		{"uint64", uint64(math.MaxUint64), "<U64>18446744073709551615</U64>"},
		{"double", 1.5, "<Db>1.5</Db>"},
		{"double large", 1e20, "<Db>1E+20</Db>"},
		{"double small", 1e-5, "<Db>1E-05</Db>"},
		{"double inf", math.Inf(1), "<Db>INF</Db>"},
		{"double neg inf", math.Inf(-1), "<Db>-INF</Db>"},
		{"double nan", math.NaN(), "<Db>NaN</Db>"},
		{"single", float32(0.25), "<Sg>0.25</Sg>"},
		{"decimal", decimal.RequireFromString("12.5"), "<D>12.5</D>"},
		{"bytes", []byte{1, 2, 3}, "<BA>AQID</BA>"},
		{"guid", uuid.MustParse("e38f7f5a-12b5-4c1e-9a06-2f6b0c3c0d4e"), "<G>e38f7f5a-12b5-4c1e-9a06-2f6b0c3c0d4e</G>"},
		{"zero duration", time.Duration(0), "<TS>PT0S</TS>"},
		{"one day", 24 * time.Hour, "<TS>P1D</TS>"},
		{"char", objects.Char('A'), "<C>65</C>"},
		{"version", objects.NewVersion(1, 2, 3), "<Version>1.2.3</Version>"},
		{"xml document", objects.XMLDocument("<a/>"), "<XD>&lt;a/&gt;</XD>"},
		{"script block", objects.ScriptBlock{Text: "Get-Date"}, "<SBK>Get-Date</SBK>"},
		{"uri", mustURL(t, "https://example.com/x?a=1"), "<URI>https://example.com/x?a=1</URI>"},
		{
			"datetime",
			time.Date(2008, 4, 11, 10, 42, 32, 273199300, time.FixedZone("", -7*3600)),
			"<DT>2008-04-11T10:42:32.2731993-07:00</DT>",
		},
		{"datetime utc", time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), "<DT>2024-01-02T03:04:05Z</DT>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := serializeRaw(t, tt.input); got != tt.expected {
				t.Errorf("SerializeRaw() = %s, want %s", got, tt.expected)
			}
		})
	}
}

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	return u
}

func TestSerializeWrapsInObjs(t *testing.T) {
	s := NewSerializer()
	defer s.Close()

	data, err := s.Serialize("x")
	if err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}
	want := objsPrefix + "<S>x</S></Objs>"
	if string(data) != want {
		t.Errorf("Serialize() = %s, want %s", data, want)
	}
}

func TestPrimitiveRoundTrip(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		input interface{}
	}{
		{"string", "hello world"},
		{"empty string", ""},
		{"control chars", "a\r\nb\tc\x00"},
		{"int32", int32(math.MinInt32)},
		{"int64", int64(math.MaxInt64)},
		{"bool", true},
		{"byte", uint8(200)},
		{"sbyte", int8(-128)},
		{"uint16", uint16(65535)},
		{"int16", int16(-32768)},
		{"uint32", uint32(math.MaxUint32)},
		{"uint64", uint64(math.MaxUint64)},
		{"single", float32(3.25)},
		{"double", 3.14159},
		{"double exponent", 6.02214076e23},
		{"double inf", math.Inf(-1)},
		{"bytes", []byte("binary\x00data")},
		{"guid", uuid.MustParse("00112233-4455-6677-8899-aabbccddeeff")},
		{"duration", 36*time.Hour + 5*time.Minute + 1500*time.Millisecond},
		{"negative duration", -90 * time.Second},
		{"duration ticks", 12345 * 100 * time.Nanosecond},
		{"char", objects.Char(0x263A)},
		{"version", objects.NewVersion(10, 0, 19041, 1)},
		{"version two parts", objects.NewVersion(2, 0)},
		{"xml document", objects.XMLDocument("<root a=\"1\">text</root>")},
		{"script block", objects.ScriptBlock{Text: "param($x)\r\n$x * 2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := roundTrip(t, tt.input)
			if !reflect.DeepEqual(got, tt.input) {
				t.Errorf("round trip = %#v (%T), want %#v (%T)", got, got, tt.input, tt.input)
			}
		})
	}
}

func TestTemporalAndDecimalRoundTrip(t *testing.T) {
	dt := time.Date(2008, 4, 11, 10, 42, 32, 273199300, time.FixedZone("", -7*3600))
	got, ok := roundTrip(t, dt).(time.Time)
	if !ok {
		t.Fatalf("expected time.Time")
	}
	if !got.Equal(dt) {
		t.Errorf("datetime = %v, want %v", got, dt)
	}
	if got.Nanosecond()/1000 != 273199 || got.Nanosecond()%1000 != 300 {
		t.Errorf("fraction = %d ns, want 273199300", got.Nanosecond())
	}
	if FormatDateTime(got) != "2008-04-11T10:42:32.2731993-07:00" {
		t.Errorf("re-encoded = %s", FormatDateTime(got))
	}

	d := decimal.RequireFromString("-79228162514264337593543950335")
	gotD, ok := roundTrip(t, d).(decimal.Decimal)
	if !ok {
		t.Fatalf("expected decimal.Decimal")
	}
	if !gotD.Equal(d) {
		t.Errorf("decimal = %s, want %s", gotD, d)
	}

	u := mustURL(t, "http://host:5985/wsman?PSVersion=7.4")
	gotU, ok := roundTrip(t, u).(*url.URL)
	if !ok {
		t.Fatalf("expected *url.URL")
	}
	if gotU.String() != u.String() {
		t.Errorf("uri = %s, want %s", gotU, u)
	}

	nan, ok := roundTrip(t, math.NaN()).(float64)
	if !ok || !math.IsNaN(nan) {
		t.Errorf("NaN round trip = %v", nan)
	}
}

func TestSerializeList(t *testing.T) {
	list := []interface{}{int32(1), "two", nil}
	want := `<Obj RefId="0"><TN RefId="0"><T>System.Object[]</T><T>System.Array</T><T>System.Object</T></TN>` +
		`<LST><I32>1</I32><S>two</S><Nil/></LST></Obj>`
	if got := serializeRaw(t, list); got != want {
		t.Errorf("SerializeRaw() =\n%s\nwant\n%s", got, want)
	}

	got := roundTrip(t, list)
	if !reflect.DeepEqual(got, list) {
		t.Errorf("round trip = %#v, want %#v", got, list)
	}
}

func TestSerializeTypedSlice(t *testing.T) {
	got := roundTrip(t, []string{"a", "b"})
	want := []interface{}{"a", "b"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("round trip = %#v, want %#v", got, want)
	}
}

func TestHashtableRoundTrip(t *testing.T) {
	input := map[string]interface{}{"b": int32(2), "a": "x"}
	out := serializeRaw(t, input)
	if !strings.Contains(out, `<DCT><En><S N="Key">a</S><S N="Value">x</S></En><En><S N="Key">b</S><I32 N="Value">2</I32></En></DCT>`) {
		t.Errorf("unexpected dictionary encoding: %s", out)
	}

	got, ok := roundTrip(t, input).(*objects.Dictionary)
	if !ok {
		t.Fatalf("expected *objects.Dictionary")
	}
	if got.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", got.Len())
	}
	if !reflect.DeepEqual(got.Keys(), []interface{}{"a", "b"}) {
		t.Errorf("Keys() = %v", got.Keys())
	}
	if v, _ := got.Get("b"); v != int32(2) {
		t.Errorf("Get(b) = %v", v)
	}
}

func TestStackRoundTrip(t *testing.T) {
	stack := objects.NewStack(int32(1), int32(2), int32(3))
	got, ok := roundTrip(t, stack).(*objects.Stack)
	if !ok {
		t.Fatalf("expected *objects.Stack")
	}
	if !reflect.DeepEqual(got.Items(), stack.Items()) {
		t.Errorf("Items() = %v, want %v", got.Items(), stack.Items())
	}
	if top, _ := got.Peek(); top != int32(3) {
		t.Errorf("Peek() = %v, want 3", top)
	}
}

func TestQueueDrainedBySerialize(t *testing.T) {
	queue := objects.NewQueue(int32(1), int32(2), int32(3))
	got, ok := roundTrip(t, queue).(*objects.Queue)
	if !ok {
		t.Fatalf("expected *objects.Queue")
	}
	if queue.Len() != 0 {
		t.Errorf("source queue Len() = %d, want 0", queue.Len())
	}
	if got.Len() != 3 {
		t.Fatalf("decoded queue Len() = %d, want 3", got.Len())
	}
	if first, _ := got.TryDequeue(); first != int32(1) {
		t.Errorf("first item = %v, want 1", first)
	}
}

func TestQueueKeptOnSerializeError(t *testing.T) {
	queue := objects.NewQueue(int32(1), make(chan int), int32(3))
	s := NewSerializer()
	defer s.Close()
	if _, err := s.Serialize(queue); !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("expected ErrUnsupportedType, got %v", err)
	}
	if queue.Len() != 3 {
		t.Fatalf("queue Len() = %d after failed serialize, want 3", queue.Len())
	}
	if first, _ := queue.TryDequeue(); first != int32(1) {
		t.Errorf("head = %v, want 1", first)
	}
}

func TestNilObjectMember(t *testing.T) {
	var child *objects.PSObject
	obj := objects.NewPSObject()
	obj.AddNoteProperty("Child", child)

	if got := serializeRaw(t, obj); !strings.Contains(got, `<MS><Nil N="Child"/></MS>`) {
		t.Errorf("expected nil member, got %s", got)
	}
	got, ok := roundTrip(t, obj).(*objects.PSObject)
	if !ok {
		t.Fatalf("expected *objects.PSObject")
	}
	if v, err := got.Get("Child"); err != nil || v != nil {
		t.Errorf("Child = %v, %v; want nil", v, err)
	}
}

func TestQueueDrainLogged(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	serializeRaw(t, objects.NewQueue("a", "b"), WithLogger(logger))
	if !strings.Contains(buf.String(), `"msg":"drained queue"`) || !strings.Contains(buf.String(), `"count":2`) {
		t.Errorf("expected drain log record, got %s", buf.String())
	}
}

func TestReferenceTracking(t *testing.T) {
	shared := objects.NewPSObject("Test.Shared", "System.Object")
	shared.AddNoteProperty("Name", "x")
	outer := objects.NewPSObject()
	outer.AddNoteProperty("A", shared)
	outer.AddNoteProperty("B", shared)

	out := serializeRaw(t, outer)
	if n := strings.Count(out, "<Obj "); n != 2 {
		t.Errorf("expected 2 <Obj> bodies, got %d: %s", n, out)
	}
	if !strings.Contains(out, `<Ref N="B" RefId="1"/>`) {
		t.Errorf("expected Ref for second occurrence: %s", out)
	}

	got, ok := roundTrip(t, outer).(*objects.PSObject)
	if !ok {
		t.Fatalf("expected *objects.PSObject")
	}
	a, _ := got.Value("A").(*objects.PSObject)
	b, _ := got.Value("B").(*objects.PSObject)
	if a == nil || a != b {
		t.Errorf("A and B should be the same instance: %p %p", a, b)
	}
	if a.Value("Name") != "x" {
		t.Errorf("Name = %v", a.Value("Name"))
	}
}

func TestSelfReference(t *testing.T) {
	obj := objects.NewPSObject("Test.Node", "System.Object")
	obj.AddNoteProperty("Self", obj)

	out := serializeRaw(t, obj)
	if !strings.Contains(out, `<Ref N="Self" RefId="0"/>`) {
		t.Errorf("expected self Ref: %s", out)
	}

	got, ok := roundTrip(t, obj).(*objects.PSObject)
	if !ok {
		t.Fatalf("expected *objects.PSObject")
	}
	if got.Value("Self") != got {
		t.Errorf("Self does not point back at the object")
	}
}

func TestSharedSliceDeduplicated(t *testing.T) {
	items := []interface{}{"a"}
	outer := objects.NewPSObject()
	outer.AddNoteProperty("First", items)
	outer.AddNoteProperty("Second", items)

	out := serializeRaw(t, outer)
	if !strings.Contains(out, `<Ref N="Second" RefId="1"/>`) {
		t.Errorf("expected Ref for shared slice: %s", out)
	}
}

func TestTypeNameReuse(t *testing.T) {
	first := objects.NewPSObject("My.Type", "System.Object")
	first.AddNoteProperty("N", int32(1))
	second := objects.NewPSObject("My.Type", "System.Object")
	second.AddNoteProperty("N", int32(2))

	out := serializeRaw(t, []interface{}{first, second})
	if n := strings.Count(out, "<TN "); n != 2 {
		t.Errorf("expected 2 TN blocks (list + My.Type), got %d: %s", n, out)
	}
	if !strings.Contains(out, `<TNRef RefId="1"/>`) {
		t.Errorf("expected TNRef for second object: %s", out)
	}

	got, ok := roundTrip(t, []interface{}{first, second}).([]interface{})
	if !ok || len(got) != 2 {
		t.Fatalf("expected list of 2, got %#v", got)
	}
	want := []string{"Deserialized.My.Type", "Deserialized.System.Object"}
	for i, item := range got {
		obj := item.(*objects.PSObject)
		if !reflect.DeepEqual(obj.TypeNames, want) {
			t.Errorf("item %d TypeNames = %v, want %v", i, obj.TypeNames, want)
		}
	}
}

func TestSerializeMultipleRawSharesTables(t *testing.T) {
	obj := objects.NewPSObject("My.Type", "System.Object")

	s := NewSerializer()
	defer s.Close()
	data, err := s.SerializeMultipleRaw(obj, obj)
	if err != nil {
		t.Fatalf("SerializeMultipleRaw failed: %v", err)
	}
	want := `<Obj RefId="0"><TN RefId="0"><T>My.Type</T><T>System.Object</T></TN></Obj><Ref RefId="0"/>`
	if string(data) != want {
		t.Errorf("SerializeMultipleRaw() = %s, want %s", data, want)
	}

	d := NewDeserializer()
	defer d.Close()
	results, err := d.Deserialize([]byte(objsPrefix + string(data) + "</Objs>"))
	if err != nil {
		t.Fatalf("Deserialize failed: %v", err)
	}
	if len(results) != 2 || results[0] != results[1] {
		t.Errorf("expected the same instance twice, got %#v", results)
	}
}

func TestTablesResetPerCall(t *testing.T) {
	obj := objects.NewPSObject("My.Type", "System.Object")
	s := NewSerializer()
	defer s.Close()

	first, err := s.SerializeRaw(obj)
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.SerializeRaw(obj)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(first, second) {
		t.Errorf("second call reused tables:\n%s\n%s", first, second)
	}
}

func TestUnknownTypeRehydration(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	clixml := `<Obj RefId="0"><TN RefId="0"><T>Foo.Bar</T><T>System.Object</T></TN>` +
		`<ToString>display</ToString><Props><S N="Name">x</S></Props></Obj>`
	got, ok := deserializeOne(t, clixml, WithLogger(logger)).(*objects.PSObject)
	if !ok {
		t.Fatalf("expected *objects.PSObject")
	}
	want := []string{"Deserialized.Foo.Bar", "Deserialized.System.Object"}
	if !reflect.DeepEqual(got.TypeNames, want) {
		t.Errorf("TypeNames = %v, want %v", got.TypeNames, want)
	}
	if got.Value("Name") != "x" {
		t.Errorf("Name = %v", got.Value("Name"))
	}
	if len(got.Adapted()) != 1 {
		t.Errorf("expected 1 adapted property, got %d", len(got.Adapted()))
	}
	if got.String() != "display" {
		t.Errorf("String() = %q", got.String())
	}
	if !strings.Contains(buf.String(), "rehydrated unregistered type") {
		t.Errorf("expected debug record, got %s", buf.String())
	}
}

func TestShadowedProperties(t *testing.T) {
	obj := objects.NewPSObject("Test.Shadow", "System.Object")
	if err := obj.AddAdaptedProperty(objects.NewNoteProperty("Name", "adapted"), false); err != nil {
		t.Fatal(err)
	}
	if err := obj.AddMember(objects.NewNoteProperty("Name", "extended"), true); err != nil {
		t.Fatal(err)
	}

	out := serializeRaw(t, obj)
	if !strings.Contains(out, `<Props><S N="Name">adapted</S></Props><MS><S N="Name">extended</S></MS>`) {
		t.Errorf("unexpected encoding: %s", out)
	}

	got, ok := roundTrip(t, obj).(*objects.PSObject)
	if !ok {
		t.Fatalf("expected *objects.PSObject")
	}
	if got.Value("Name") != "extended" {
		t.Errorf("Name = %v, want extended", got.Value("Name"))
	}
}

func TestPropertyNameEscaping(t *testing.T) {
	obj := objects.NewPSObject()
	obj.AddNoteProperty("Line\nBreak", "v")

	out := serializeRaw(t, obj)
	if !strings.Contains(out, `N="Line_x000A_Break"`) {
		t.Errorf("expected escaped name: %s", out)
	}
	got := roundTrip(t, obj).(*objects.PSObject)
	if got.Value("Line\nBreak") != "v" {
		t.Errorf("property not restored under its decoded name")
	}
}

func TestEnumRoundTrip(t *testing.T) {
	value := objects.ApartmentState.Of(1)
	want := `<Obj RefId="0"><TN RefId="0"><T>System.Threading.ApartmentState</T><T>System.Enum</T>` +
		`<T>System.ValueType</T><T>System.Object</T></TN><ToString>MTA</ToString><I32>1</I32></Obj>`
	if got := serializeRaw(t, value); got != want {
		t.Errorf("SerializeRaw() =\n%s\nwant\n%s", got, want)
	}

	got, ok := roundTrip(t, value).(objects.Enum)
	if !ok {
		t.Fatalf("expected objects.Enum")
	}
	if got.Type != objects.ApartmentState || got.Value != 1 {
		t.Errorf("enum = %v", got)
	}
}

func TestFlagEnumToString(t *testing.T) {
	out := serializeRaw(t, objects.PipelineResultTypes.Of(3))
	if !strings.Contains(out, "<ToString>Output, Error</ToString>") {
		t.Errorf("unexpected flag rendering: %s", out)
	}
}

func TestUnregisteredEnumKeepsNumericValue(t *testing.T) {
	clixml := `<Obj RefId="0"><TN RefId="0"><T>Vendor.Color</T><T>System.Enum</T><T>System.ValueType</T><T>System.Object</T></TN>` +
		`<ToString>Red</ToString><I32>2</I32></Obj>`
	got, ok := deserializeOne(t, clixml).(*objects.PSObject)
	if !ok {
		t.Fatalf("expected *objects.PSObject")
	}
	if got.BaseObject != int32(2) || got.String() != "Red" || !got.IsEnum() {
		t.Errorf("unexpected enum object: %#v", got)
	}
}

func TestExtendedPrimitive(t *testing.T) {
	obj := &objects.PSObject{BaseObject: "hello"}
	obj.AddNoteProperty("Extra", int32(1))

	want := `<Obj RefId="0"><S>hello</S><MS><I32 N="Extra">1</I32></MS></Obj>`
	if got := serializeRaw(t, obj); got != want {
		t.Errorf("SerializeRaw() = %s, want %s", got, want)
	}

	got, ok := roundTrip(t, obj).(*objects.PSObject)
	if !ok {
		t.Fatalf("expected *objects.PSObject")
	}
	if got.BaseObject != "hello" {
		t.Errorf("BaseObject = %v", got.BaseObject)
	}
	if !reflect.DeepEqual(got.TypeNames, []string{"System.String", "System.Object"}) {
		t.Errorf("TypeNames = %v", got.TypeNames)
	}
	if got.Value("Extra") != int32(1) {
		t.Errorf("Extra = %v", got.Value("Extra"))
	}
}

func TestGenericTypeDegrades(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	desc, err := objects.ListType.Instantiate("System.String")
	if err != nil {
		t.Fatal(err)
	}
	obj := desc.Blank()
	obj.BaseObject = []interface{}{"a", "b"}

	out := serializeRaw(t, obj)
	if !strings.Contains(out, "<T>System.Collections.Generic.List`1[[System.String]]</T>") {
		t.Errorf("expected closed generic name: %s", out)
	}

	got := roundTrip(t, obj, WithLogger(logger))
	if !reflect.DeepEqual(got, []interface{}{"a", "b"}) {
		t.Errorf("round trip = %#v", got)
	}
	if !strings.Contains(buf.String(), "degraded generic type") {
		t.Errorf("expected degradation log, got %s", buf.String())
	}
}

var testRecord = &objects.TypeDescriptor{
	TypeNames: []string{"Test.Record", "System.Object"},
	Adapted: []*objects.Property{
		objects.NewNoteProperty("Id", nil, objects.Mandatory(), objects.WithCoercion(objects.CoerceInt32)),
		objects.NewNoteProperty("Comment", nil, objects.Optional()),
	},
}

func TestMandatoryAndOptionalProperties(t *testing.T) {
	registry := objects.NewRegistry()
	registry.Register(testRecord)

	if _, err := testRecord.New(map[string]interface{}{}); !errors.Is(err, objects.ErrMandatoryProperty) {
		t.Fatalf("expected ErrMandatoryProperty, got %v", err)
	}

	obj, err := testRecord.New(map[string]interface{}{"Id": "7"})
	if err != nil {
		t.Fatal(err)
	}
	out := serializeRaw(t, obj)
	if strings.Contains(out, `N="Comment"`) {
		t.Errorf("optional nil property should be omitted: %s", out)
	}
	if !strings.Contains(out, `<Props><I32 N="Id">7</I32></Props>`) {
		t.Errorf("expected coerced Id: %s", out)
	}

	got, ok := roundTrip(t, obj, WithRegistry(registry)).(*objects.PSObject)
	if !ok {
		t.Fatalf("expected *objects.PSObject")
	}
	if got.Descriptor() != testRecord {
		t.Errorf("object not rehydrated from its descriptor")
	}
	if got.Value("Id") != int32(7) {
		t.Errorf("Id = %v", got.Value("Id"))
	}
	if got.Value("Comment") != nil {
		t.Errorf("Comment = %v, want nil", got.Value("Comment"))
	}
}

type point struct {
	X, Y int32
}

func (p point) PSMembers() iter.Seq2[string, interface{}] {
	return func(yield func(string, interface{}) bool) {
		if !yield("X", p.X) {
			return
		}
		yield("Y", p.Y)
	}
}

func TestMemberProvider(t *testing.T) {
	out := serializeRaw(t, point{X: 1, Y: 2})
	if !strings.Contains(out, `<MS><I32 N="X">1</I32><I32 N="Y">2</I32></MS>`) {
		t.Errorf("unexpected encoding: %s", out)
	}
	if !strings.Contains(out, "<T>System.Management.Automation.PSCustomObject</T>") {
		t.Errorf("expected PSCustomObject type name: %s", out)
	}

	got := roundTrip(t, point{X: 1, Y: 2}).(*objects.PSObject)
	if got.Value("X") != int32(1) || got.Value("Y") != int32(2) {
		t.Errorf("members = %v, %v", got.Value("X"), got.Value("Y"))
	}
}

func TestToRemotingPreservesOverrides(t *testing.T) {
	registry := objects.NewRegistry()
	desc := registry.Register(&objects.TypeDescriptor{
		TypeNames: []string{"Test.Wrapped", "System.Object"},
		ToRemoting: func(o *objects.PSObject) (*objects.PSObject, error) {
			out := objects.NewPSObject(o.TypeNames...)
			out.AddNoteProperty("Payload", o.Value("Raw"))
			return out, nil
		},
		FromRemoting: func(o *objects.PSObject) (interface{}, error) {
			return o.Value("Payload"), nil
		},
	})

	obj := desc.Blank()
	obj.AddNoteProperty("Raw", "data")
	obj.ToString = "custom"

	out := serializeRaw(t, obj)
	if !strings.Contains(out, "<ToString>custom</ToString>") {
		t.Errorf("ToString override lost: %s", out)
	}
	if !strings.Contains(out, `<S N="Payload">data</S>`) {
		t.Errorf("ToRemoting not applied: %s", out)
	}
	if got := roundTrip(t, obj, WithRegistry(registry)); got != "data" {
		t.Errorf("FromRemoting result = %v", got)
	}
}

func TestSerializeUnsupportedType(t *testing.T) {
	tests := []struct {
		name  string
		input interface{}
	}{
		{"struct", struct{ A int }{1}},
		{"channel", make(chan int)},
		{"function", func() {}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSerializer()
			defer s.Close()
			if _, err := s.Serialize(tt.input); !errors.Is(err, ErrUnsupportedType) {
				t.Errorf("expected ErrUnsupportedType, got %v", err)
			}
		})
	}
}

func TestDeserializeErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		clixml string
		want   error
	}{
		{"unknown tag", `<Foo/>`, ErrUnknownElement},
		{"bare list", `<LST><S>a</S></LST>`, ErrUnknownElement},
		{"unknown ref", `<Ref RefId="3"/>`, ErrUnresolvedReference},
		{"unknown tnref", `<Obj RefId="0"><TNRef RefId="5"/></Obj>`, ErrUnresolvedReference},
		{"bad refid", `<Ref RefId="x"/>`, ErrInvalidCLIXML},
		{"bad duration", `<TS>invalid</TS>`, ErrInvalidDuration},
		{"bad datetime", `<DT>yesterday</DT>`, ErrInvalidDateTime},
		{"truncated", `<S>unterminated`, ErrInvalidCLIXML},
		{"empty", ``, ErrInvalidCLIXML},
		{"secure string without cipher", `<SS>AAAA</SS>`, ErrMissingCipher},
		{"member without name", `<Obj RefId="0"><MS><S>x</S></MS></Obj>`, ErrInvalidCLIXML},
		{
			"uncomparable key",
			`<Obj RefId="0"><TN RefId="0"><T>System.Collections.Hashtable</T><T>System.Object</T></TN><DCT><En>` +
				`<Obj N="Key" RefId="1"><TN RefId="1"><T>System.Object[]</T><T>System.Array</T><T>System.Object</T></TN><LST/></Obj>` +
				`<S N="Value">v</S></En></DCT></Obj>`,
			ErrInvalidCLIXML,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDeserializer()
			defer d.Close()
			_, err := d.Deserialize([]byte(tt.clixml))
			if !errors.Is(err, tt.want) {
				t.Errorf("Deserialize() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestDeserializeValueError(t *testing.T) {
	d := NewDeserializer()
	defer d.Close()

	_, err := d.Deserialize([]byte(`<I32>abc</I32>`))
	var ve *ValueError
	if !errors.As(err, &ve) {
		t.Fatalf("expected *ValueError, got %v", err)
	}
	if ve.Type != "I32" || ve.Text != "abc" {
		t.Errorf("ValueError = %+v", ve)
	}

	_, err = d.Deserialize([]byte(`<I32>2147483648</I32>`))
	if !errors.As(err, &ve) {
		t.Errorf("expected out of range I32 to fail, got %v", err)
	}
}

func nestedObjects(depth int) string {
	var b strings.Builder
	for i := 0; i < depth; i++ {
		b.WriteString(`<Obj RefId="`)
		b.WriteString(strings.Repeat("1", i+1))
		b.WriteString(`"><LST>`)
	}
	b.WriteString("<S>leaf</S>")
	for i := 0; i < depth; i++ {
		b.WriteString("</LST></Obj>")
	}
	return b.String()
}

func TestMaxRecursionDepth(t *testing.T) {
	d := NewDeserializerWithMaxDepth(3)
	defer d.Close()

	if _, err := d.Deserialize([]byte(nestedObjects(5))); !errors.Is(err, ErrMaxRecursionDepth) {
		t.Errorf("expected ErrMaxRecursionDepth, got %v", err)
	}
	// The leaf sits one level below the innermost object.
	if _, err := d.Deserialize([]byte(nestedObjects(2))); err != nil {
		t.Errorf("two nested objects should decode, got %v", err)
	}
}

func TestDeserializeStripsBOM(t *testing.T) {
	data := append([]byte{0xef, 0xbb, 0xbf}, []byte(objsPrefix+"<I32>5</I32><S>a</S></Objs>")...)
	d := NewDeserializer()
	defer d.Close()
	results, err := d.Deserialize(data)
	if err != nil {
		t.Fatalf("Deserialize failed: %v", err)
	}
	if !reflect.DeepEqual(results, []interface{}{int32(5), "a"}) {
		t.Errorf("results = %#v", results)
	}
}

func TestElementRoundTrip(t *testing.T) {
	s := NewSerializer()
	defer s.Close()
	el, err := s.SerializeElement(map[string]interface{}{"k": "v"})
	if err != nil {
		t.Fatal(err)
	}
	if el.Tag != "Obj" || el.Child("DCT") == nil {
		t.Fatalf("unexpected element: %s", el)
	}

	d := NewDeserializer()
	defer d.Close()
	v, err := d.DeserializeElement(el)
	if err != nil {
		t.Fatal(err)
	}
	dict, ok := v.(*objects.Dictionary)
	if !ok {
		t.Fatalf("expected *objects.Dictionary, got %T", v)
	}
	if got, _ := dict.Get("k"); got != "v" {
		t.Errorf("Get(k) = %v", got)
	}
}

func TestParseElementIgnoresWhitespace(t *testing.T) {
	el, err := ParseElement([]byte("<Obj RefId=\"0\">\n  <MS>\n    <S N=\"A\"> padded </S>\n  </MS>\n</Obj>"))
	if err != nil {
		t.Fatal(err)
	}
	if el.Text != "" {
		t.Errorf("parent text = %q, want empty", el.Text)
	}
	ms := el.Child("MS")
	if ms == nil || len(ms.Children) != 1 || ms.Children[0].Text != " padded " {
		t.Errorf("unexpected tree: %s", el)
	}
}
