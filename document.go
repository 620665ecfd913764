package kmlsummary

import (
	"errors"
	"io"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/beevik/etree"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// KMLNamespace is the only namespace whose elements are recognised.
const KMLNamespace = "http://www.opengis.net/kml/2.2"

// xmlDeclaration matches an <?xml ...?> prolog at the start of any line.
var xmlDeclaration = regexp.MustCompile(`(?im)^\s*<\?xml[^>]*\?>`)

// Document is a parsed KML document.
type Document struct {
	Root Element
	// Stripped is set when the document only parsed after its XML
	// declaration was removed.
	Stripped bool
}

// ParseDocument parses raw document bytes in at most two attempts. The bytes
// are parsed as delivered first; when that fails they are decoded as UTF-8,
// every XML declaration is removed and parsing is retried once.
func ParseDocument(content []byte) (*Document, error) {
	root, err := parseTree(content)
	if err == nil {
		return &Document{Root: root}, nil
	}
	directErr := &ParseError{Stage: StageDirect, Reason: parseReason(err), Err: err}

	if !utf8.Valid(content) {
		return nil, &ParseError{
			Stage:  StageStripped,
			Reason: "content is not valid UTF-8",
			Direct: directErr,
		}
	}

	text, _, err := transform.Bytes(unicode.UTF8BOM.NewDecoder(), content)
	if err != nil {
		return nil, &ParseError{
			Stage:  StageStripped,
			Reason: "failed to decode content as UTF-8",
			Err:    err,
			Direct: directErr,
		}
	}

	stripped := StripDeclaration(string(text))
	root, err = parseTree([]byte(stripped))
	if err != nil {
		return nil, &ParseError{
			Stage:  StageStripped,
			Reason: parseReason(err) + " after removing declaration",
			Err:    err,
			Direct: directErr,
		}
	}

	return &Document{Root: root, Stripped: true}, nil
}

// StripDeclaration removes XML declarations anchored at line starts and
// trims surrounding whitespace.
func StripDeclaration(text string) string {
	return strings.TrimSpace(xmlDeclaration.ReplaceAllString(text, ""))
}

func parseTree(content []byte) (Element, error) {
	doc := etree.NewDocument()
	doc.ReadSettings.CharsetReader = func(label string, input io.Reader) (io.Reader, error) {
		return charset.NewReaderLabel(label, input)
	}

	if err := doc.ReadFromBytes(content); err != nil {
		return Element{}, err
	}

	var root *etree.Element
	for _, tok := range doc.Child {
		switch t := tok.(type) {
		case *etree.Element:
			if root != nil {
				return Element{}, errContentOutsideRoot
			}
			root = t
		case *etree.CharData:
			if strings.TrimSpace(t.Data) != "" {
				return Element{}, errContentOutsideRoot
			}
		}
	}
	if root == nil {
		return Element{}, errNoRoot
	}

	return Element{el: root}, nil
}

var (
	errNoRoot             = errors.New("document has no root element")
	errContentOutsideRoot = errors.New("content outside the root element")
)

func parseReason(err error) string {
	switch {
	case errors.Is(err, errNoRoot):
		return "no root element"
	case errors.Is(err, errContentOutsideRoot):
		return "content outside root element"
	}
	return "invalid XML"
}

// Element is a node of the document tree. Lookups only match elements in
// the KML namespace.
type Element struct {
	el *etree.Element
}

// Valid reports whether e refers to an element.
func (e Element) Valid() bool { return e.el != nil }

// Tag returns the local element name.
func (e Element) Tag() string {
	if e.el == nil {
		return ""
	}
	return e.el.Tag
}

// Text returns the character data directly inside the element, untrimmed.
func (e Element) Text() string {
	if e.el == nil {
		return ""
	}
	return e.el.Text()
}

// IsKML reports whether e is a KML element named tag.
func (e Element) IsKML(tag string) bool {
	return e.el != nil && e.el.Tag == tag && e.el.NamespaceURI() == KMLNamespace
}

// Child returns the first direct child named tag.
func (e Element) Child(tag string) (Element, bool) {
	if e.el == nil {
		return Element{}, false
	}
	for _, child := range e.el.ChildElements() {
		if c := (Element{el: child}); c.IsKML(tag) {
			return c, true
		}
	}
	return Element{}, false
}

// Children returns the direct children named tag, in document order.
func (e Element) Children(tag string) []Element {
	if e.el == nil {
		return nil
	}
	var found []Element
	for _, child := range e.el.ChildElements() {
		if c := (Element{el: child}); c.IsKML(tag) {
			found = append(found, c)
		}
	}
	return found
}

// Descendants returns every element named tag below e, in document order.
func (e Element) Descendants(tag string) []Element {
	var found []Element
	e.walk(func(d Element) bool {
		if d.IsKML(tag) {
			found = append(found, d)
		}
		return true
	})
	return found
}

// FirstDescendant returns the first element named tag below e in document
// order.
func (e Element) FirstDescendant(tag string) (Element, bool) {
	var found Element
	e.walk(func(d Element) bool {
		if d.IsKML(tag) {
			found = d
			return false
		}
		return true
	})
	return found, found.Valid()
}

// walk visits the descendants of e depth-first in document order until
// visit returns false. It returns false when the walk was stopped.
func (e Element) walk(visit func(Element) bool) bool {
	if e.el == nil {
		return true
	}
	for _, child := range e.el.ChildElements() {
		c := Element{el: child}
		if !visit(c) || !c.walk(visit) {
			return false
		}
	}
	return true
}
