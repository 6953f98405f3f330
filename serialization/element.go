package serialization

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// CLIXML namespace and version.
const (
	CLIXMLNamespace = "http://schemas.microsoft.com/powershell/2004/04"
	CLIXMLVersion   = "1.1.0.1"
)

// Element is one node of a CLIXML tree. Text holds the raw (XML-unescaped)
// character data of a leaf; CLIXML string escapes are not applied here.
type Element struct {
	Tag      string
	Attr     []xml.Attr
	Text     string
	Children []*Element
}

// NewElement creates a leaf element.
func NewElement(tag, text string) *Element {
	return &Element{Tag: tag, Text: text}
}

// SetAttr sets or replaces an attribute, keeping insertion order.
func (e *Element) SetAttr(name, value string) *Element {
	for i := range e.Attr {
		if e.Attr[i].Name.Local == name {
			e.Attr[i].Value = value
			return e
		}
	}
	e.Attr = append(e.Attr, xml.Attr{Name: xml.Name{Local: name}, Value: value})
	return e
}

// AttrValue returns the named attribute.
func (e *Element) AttrValue(name string) (string, bool) {
	for _, a := range e.Attr {
		if a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}

// Append adds children and returns e.
func (e *Element) Append(children ...*Element) *Element {
	e.Children = append(e.Children, children...)
	return e
}

// Child returns the first child with the given tag.
func (e *Element) Child(tag string) *Element {
	for _, c := range e.Children {
		if c.Tag == tag {
			return c
		}
	}
	return nil
}

// refID parses the RefId attribute.
func (e *Element) refID() (int, bool, error) {
	v, ok := e.AttrValue("RefId")
	if !ok {
		return 0, false, nil
	}
	id, err := strconv.Atoi(v)
	if err != nil {
		return 0, false, fmt.Errorf("%w: <%s> RefId %q", ErrInvalidCLIXML, e.Tag, v)
	}
	return id, true, nil
}

// MarshalText renders the element as XML without indentation.
func (e *Element) MarshalText() ([]byte, error) {
	var buf bytes.Buffer
	if err := e.writeTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// String renders the element as XML.
func (e *Element) String() string {
	b, err := e.MarshalText()
	if err != nil {
		return "<!-- " + err.Error() + " -->"
	}
	return string(b)
}

// writeTo appends the XML form of e to buf. Elements with neither text nor
// children are self-closed.
// NOTE: no indentation - PowerShell's OutOfProcess parser rejects XML with
// whitespace-only text nodes.
func (e *Element) writeTo(buf *bytes.Buffer) error {
	buf.WriteByte('<')
	buf.WriteString(e.Tag)
	for _, a := range e.Attr {
		buf.WriteByte(' ')
		buf.WriteString(a.Name.Local)
		buf.WriteString(`="`)
		if err := xml.EscapeText(buf, []byte(a.Value)); err != nil {
			return fmt.Errorf("escape attribute %s: %w", a.Name.Local, err)
		}
		buf.WriteByte('"')
	}
	if e.Text == "" && len(e.Children) == 0 {
		buf.WriteString("/>")
		return nil
	}
	buf.WriteByte('>')
	if err := xml.EscapeText(buf, []byte(e.Text)); err != nil {
		return fmt.Errorf("escape %s text: %w", e.Tag, err)
	}
	for _, c := range e.Children {
		if err := c.writeTo(buf); err != nil {
			return err
		}
	}
	buf.WriteString("</")
	buf.WriteString(e.Tag)
	buf.WriteByte('>')
	return nil
}

// ParseElement reads the first element of data and its subtree. Namespaces
// are dropped from tag and attribute names.
func ParseElement(data []byte) (*Element, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))

	var stack []*Element
	var root *Element
	for {
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) && root == nil {
				return nil, fmt.Errorf("%w: no root element", ErrInvalidCLIXML)
			}
			return nil, fmt.Errorf("%w: %v", ErrInvalidCLIXML, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			el := &Element{Tag: t.Name.Local}
			for _, a := range t.Attr {
				if a.Name.Space == "xmlns" || a.Name.Local == "xmlns" {
					continue
				}
				el.SetAttr(a.Name.Local, a.Value)
			}
			if len(stack) > 0 {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, el)
			} else {
				root = el
			}
			stack = append(stack, el)

		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].Text += string(t)
			}

		case xml.EndElement:
			el := stack[len(stack)-1]
			if len(el.Children) > 0 {
				// Whitespace between child elements is not content.
				el.Text = ""
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return root, nil
			}
		}
	}
}

// newDocument wraps children in the <Objs> root element.
func newDocument(children ...*Element) *Element {
	doc := &Element{Tag: "Objs"}
	doc.SetAttr("Version", CLIXMLVersion)
	doc.SetAttr("xmlns", CLIXMLNamespace)
	return doc.Append(children...)
}
