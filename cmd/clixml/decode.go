package main

import (
	"encoding/base64"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/smnsjas/go-psrpcore/messages"
	"github.com/smnsjas/go-psrpcore/objects"
	"github.com/smnsjas/go-psrpcore/serialization"
)

func runDecode(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	var common commonFlags
	var format string
	var maxDepth int

	fs := pflag.NewFlagSet("clixml decode", pflag.ContinueOnError)
	common.register(fs)
	fs.StringVarP(&format, "format", "f", "yaml", "output format: yaml or tree")
	fs.IntVar(&maxDepth, "max-depth", serialization.DefaultMaxRecursionDepth, "maximum nesting depth accepted")

	path, help, err := parseFlags(fs, args, stdout)
	if err != nil || help {
		return err
	}
	if format != "yaml" && format != "tree" {
		return usageError("--format: unknown format %q", format)
	}
	data, err := readInput(path, stdin)
	if err != nil {
		return err
	}

	if format == "tree" {
		root, err := serialization.ParseElement(data)
		if err != nil {
			return err
		}
		return writeTree(stdout, root, 0)
	}

	opts, err := common.options(stderr)
	if err != nil {
		return err
	}
	opts = append(opts, serialization.WithMaxDepth(maxDepth))

	var values []interface{}
	t, isMessage, err := common.messageType()
	if err != nil {
		return err
	}
	if isMessage {
		v, err := messages.Unmarshal(t, data, opts...)
		if err != nil {
			return err
		}
		values = []interface{}{v}
	} else {
		deser := serialization.NewDeserializer(opts...)
		defer deser.Close()
		if values, err = deser.Deserialize(data); err != nil {
			return err
		}
	}

	doc := &yaml.Node{Kind: yaml.SequenceNode}
	r := newRenderer()
	for _, v := range values {
		doc.Content = append(doc.Content, r.node(v))
	}
	enc := yaml.NewEncoder(stdout)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("write yaml: %w", err)
	}
	return enc.Close()
}

// writeTree prints one element per line, indented by depth.
func writeTree(w io.Writer, el *serialization.Element, depth int) error {
	var b strings.Builder
	b.WriteString(strings.Repeat("  ", depth))
	b.WriteString(el.Tag)
	for _, a := range el.Attr {
		fmt.Fprintf(&b, " %s=%q", a.Name.Local, a.Value)
	}
	if el.Text != "" {
		fmt.Fprintf(&b, ": %s", strconv.Quote(el.Text))
	}
	b.WriteByte('\n')
	if _, err := io.WriteString(w, b.String()); err != nil {
		return err
	}
	for _, c := range el.Children {
		if err := writeTree(w, c, depth+1); err != nil {
			return err
		}
	}
	return nil
}

// renderer turns decoded values into YAML nodes. Objects seen more than
// once are written as an anchor and aliases, which also covers cycles.
type renderer struct {
	seen map[interface{}]*yaml.Node
	next int
}

func newRenderer() *renderer {
	return &renderer{seen: make(map[interface{}]*yaml.Node)}
}

func scalar(tag, value string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: value}
}

func str(s string) *yaml.Node { return scalar("!!str", s) }

func (r *renderer) alias(key interface{}) (*yaml.Node, bool) {
	target, ok := r.seen[key]
	if !ok {
		return nil, false
	}
	if target.Anchor == "" {
		target.Anchor = "ref" + strconv.Itoa(r.next)
		r.next++
	}
	return &yaml.Node{Kind: yaml.AliasNode, Alias: target}, true
}

func (r *renderer) node(v interface{}) *yaml.Node {
	switch val := v.(type) {
	case nil:
		return scalar("!!null", "null")
	case *objects.PSObject:
		if n, ok := r.alias(val); ok {
			return n
		}
		n := &yaml.Node{Kind: yaml.MappingNode}
		r.seen[val] = n
		r.object(n, val)
		return n
	case *objects.Dictionary:
		if n, ok := r.alias(val); ok {
			return n
		}
		n := &yaml.Node{Kind: yaml.MappingNode}
		r.seen[val] = n
		for k, item := range val.All() {
			n.Content = append(n.Content, r.node(k), r.node(item))
		}
		return n
	case *objects.Stack:
		return r.sequence(val, val.Items())
	case *objects.Queue:
		var items []interface{}
		for item, ok := val.TryDequeue(); ok; item, ok = val.TryDequeue() {
			items = append(items, item)
		}
		return r.sequence(val, items)
	case []interface{}:
		if len(val) == 0 {
			return &yaml.Node{Kind: yaml.SequenceNode, Style: yaml.FlowStyle}
		}
		return r.sequence(&val[0], val)
	case string:
		return str(val)
	case bool:
		return scalar("!!bool", strconv.FormatBool(val))
	case int8, int16, int32, int64, uint8, uint16, uint32, uint64:
		return scalar("!!int", fmt.Sprint(val))
	case float32:
		return floatNode(float64(val), 32)
	case float64:
		return floatNode(val, 64)
	case time.Time:
		return scalar("!!timestamp", val.Format(time.RFC3339Nano))
	case time.Duration:
		return str(val.String())
	case []byte:
		return scalar("!!binary", base64.StdEncoding.EncodeToString(val))
	case *objects.SecureString:
		return str("********")
	case objects.Enum:
		return str(val.String())
	case fmt.Stringer:
		return str(val.String())
	}
	return str(fmt.Sprint(v))
}

func floatNode(f float64, bits int) *yaml.Node {
	switch {
	case math.IsNaN(f):
		return scalar("!!float", ".nan")
	case math.IsInf(f, 1):
		return scalar("!!float", ".inf")
	case math.IsInf(f, -1):
		return scalar("!!float", "-.inf")
	}
	return scalar("!!float", strconv.FormatFloat(f, 'g', -1, bits))
}

func (r *renderer) sequence(key interface{}, items []interface{}) *yaml.Node {
	if n, ok := r.alias(key); ok {
		return n
	}
	n := &yaml.Node{Kind: yaml.SequenceNode}
	r.seen[key] = n
	for _, item := range items {
		n.Content = append(n.Content, r.node(item))
	}
	return n
}

// object writes type, display string, payload and members of o.
func (r *renderer) object(n *yaml.Node, o *objects.PSObject) {
	if len(o.TypeNames) > 0 {
		n.Content = append(n.Content, str("type"), str(o.TypeNames[0]))
	}
	if o.ToString != "" {
		n.Content = append(n.Content, str("toString"), str(o.ToString))
	}
	if o.BaseObject != nil {
		n.Content = append(n.Content, str("value"), r.node(o.BaseObject))
	}
	for _, block := range []struct {
		name  string
		props []*objects.Property
	}{
		{"properties", o.Adapted()},
		{"members", o.Extended()},
	} {
		if len(block.props) == 0 {
			continue
		}
		m := &yaml.Node{Kind: yaml.MappingNode}
		for _, p := range block.props {
			v, err := p.Get(o)
			if err != nil {
				m.Content = append(m.Content, str(p.Name()), str("<error: "+err.Error()+">"))
				continue
			}
			m.Content = append(m.Content, str(p.Name()), r.node(v))
		}
		n.Content = append(n.Content, str(block.name), m)
	}
}
