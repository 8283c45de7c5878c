// Copyright (C) 2024 Storj Labs, Inc.
// See LICENSE for copying information.

package schema

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"

	"github.com/beevik/etree"
)

// xsdValidator performs a structural check of an XML document against the
// element and attribute vocabulary declared by an XSD. It is deliberately not
// a full XSD processor; the validator interface leaves room for a
// libxml2-backed implementation where complete coverage is required.
type xsdValidator struct {
	roots      map[string]bool
	elements   map[string]bool
	attributes map[string]bool
}

// parseXSD extracts the declared vocabulary from an XSD document.
func parseXSD(data []byte) (*xsdValidator, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, err
	}
	root := doc.Root()
	if root == nil || root.Tag != "schema" {
		return nil, errors.New("not an XML schema document")
	}

	v := &xsdValidator{
		roots:      make(map[string]bool),
		elements:   make(map[string]bool),
		attributes: make(map[string]bool),
	}

	// Global element declarations are the permitted document roots.
	for _, el := range root.ChildElements() {
		if el.Tag == "element" {
			if name := el.SelectAttrValue("name", ""); name != "" {
				v.roots[name] = true
			}
		}
	}

	var walk func(el *etree.Element)
	walk = func(el *etree.Element) {
		switch el.Tag {
		case "element":
			if name := el.SelectAttrValue("name", ""); name != "" {
				v.elements[name] = true
			}
		case "attribute":
			if name := el.SelectAttrValue("name", ""); name != "" {
				v.attributes[name] = true
			}
		}
		for _, child := range el.ChildElements() {
			walk(child)
		}
	}
	walk(root)

	// accession attributes are injected by the processor before storage, so
	// the vocabulary always admits them.
	v.attributes["accession"] = true

	return v, nil
}

// validate checks well-formedness and that every element and attribute in the
// document belongs to the schema vocabulary. Errors are accumulated.
func (v *xsdValidator) validate(data []byte) []ValidationError {
	decoder := xml.NewDecoder(bytes.NewReader(data))

	var found []ValidationError
	depth := 0
	for {
		token, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			line := 0
			var syntaxErr *xml.SyntaxError
			if errors.As(err, &syntaxErr) {
				line = syntaxErr.Line
			}
			found = append(found, ValidationError{Line: line, Message: err.Error()})
			return found
		}

		if _, ok := token.(xml.EndElement); ok {
			depth--
			continue
		}
		start, ok := token.(xml.StartElement)
		if !ok {
			continue
		}
		line := lineAt(data, decoder.InputOffset())
		if depth == 0 {
			if !v.roots[start.Name.Local] && !v.roots[plural(start.Name.Local)] {
				// Accept either a declared root or its SET wrapper.
				if !v.elements[start.Name.Local] {
					found = append(found, ValidationError{
						Line:    line,
						Message: fmt.Sprintf("element %q is not a declared root", start.Name.Local),
					})
				}
			}
		} else if !v.elements[start.Name.Local] {
			found = append(found, ValidationError{
				Line:    line,
				Message: fmt.Sprintf("element %q is not declared by the schema", start.Name.Local),
			})
		}
		for _, attr := range start.Attr {
			if attr.Name.Space == "xmlns" || attr.Name.Local == "xmlns" || attr.Name.Space != "" {
				continue
			}
			if !v.attributes[attr.Name.Local] {
				found = append(found, ValidationError{
					Line:    line,
					Message: fmt.Sprintf("attribute %q is not declared by the schema", attr.Name.Local),
				})
			}
		}
		depth++
	}
	return found
}

func lineAt(data []byte, offset int64) int {
	if offset > int64(len(data)) {
		offset = int64(len(data))
	}
	return 1 + bytes.Count(data[:offset], []byte{'\n'})
}

func plural(name string) string {
	return name + "_SET"
}
