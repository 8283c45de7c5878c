// Copyright (C) 2024 Storj Labs, Inc.
// See LICENSE for copying information.

package xmlproc

import (
	"strings"

	"github.com/beevik/etree"
)

// elementToValue converts one object element to its canonical JSON form.
//
// The mapping is deterministic: attribute and element names are lowercased,
// attributes become keys next to child elements, repeated sibling tags fold
// into arrays and leaf text has its whitespace collapsed. A leaf element
// with attributes keeps its text under the "value" key.
func elementToValue(element *etree.Element) map[string]any {
	result := map[string]any{}
	for _, attr := range element.Attr {
		if attr.Space == "xmlns" || attr.Key == "xmlns" {
			continue
		}
		putValue(result, strings.ToLower(attr.Key), attr.Value)
	}

	children := element.ChildElements()
	for _, child := range children {
		putValue(result, strings.ToLower(child.Tag), childValue(child))
	}
	if len(children) == 0 {
		if text := collapseWhitespace(element.Text()); text != "" {
			putValue(result, "value", text)
		}
	}
	return result
}

// childValue renders a child element: plain leaves become strings,
// everything else becomes a nested object.
func childValue(element *etree.Element) any {
	if len(element.ChildElements()) == 0 && len(plainAttrs(element)) == 0 {
		return collapseWhitespace(element.Text())
	}
	return elementToValue(element)
}

// putValue inserts a key, folding repeated keys into an array.
func putValue(m map[string]any, key string, value any) {
	switch existing := m[key].(type) {
	case nil:
		m[key] = value
	case []any:
		m[key] = append(existing, value)
	default:
		m[key] = []any{existing, value}
	}
}

func plainAttrs(element *etree.Element) (attrs []etree.Attr) {
	for _, attr := range element.Attr {
		if attr.Space == "xmlns" || attr.Key == "xmlns" {
			continue
		}
		attrs = append(attrs, attr)
	}
	return attrs
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
