// Copyright (C) 2024 Storj Labs, Inc.
// See LICENSE for copying information.

// Package schema loads the domain XSD and JSON schemas and exposes
// per-schema validators. The catalog is immutable after start-up and safe
// for concurrent use.
package schema

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/zeebo/errs"
)

var (
	// Error is the default error class for the schema package.
	Error = errs.Class("schema")
	// ErrNotFound is returned when no schema matches the requested name.
	ErrNotFound = errs.Class("schema not found")
)

//go:embed files/*.json files/*.xsd
var defaultFiles embed.FS

// Info describes one catalog entry.
type Info struct {
	Name        string `json:"name"`
	Priority    int    `json:"priority"`
	Provider    string `json:"provider"`
	Description string `json:"description"`
}

// ValidationError is a single schema violation, addressable by JSON pointer
// for JSON documents or by line for XML documents.
type ValidationError struct {
	Pointer string `json:"pointer,omitempty"`
	Line    int    `json:"line,omitempty"`
	Message string `json:"message"`
}

func (v ValidationError) Error() string {
	switch {
	case v.Pointer != "":
		return fmt.Sprintf("%s: %s", v.Pointer, v.Message)
	case v.Line > 0:
		return fmt.Sprintf("line %d: %s", v.Line, v.Message)
	}
	return v.Message
}

type entry struct {
	info     Info
	resolved *jsonschema.Resolved
	raw      *jsonschema.Schema
	xsd      *xsdValidator
}

// Catalog holds every loaded schema keyed by object type. The collection
// (table) name of an object type equals its schema name.
type Catalog struct {
	entries map[string]*entry
	ordered []Info
}

// priority fixes the catalog listing order; unknown schemas sort last.
var priority = map[string]int{
	"study": 1, "sample": 2, "experiment": 3, "run": 4, "analysis": 5,
	"dac": 6, "policy": 7, "dataset": 8,
	"bpdataset": 10, "bpsample": 11, "bpimage": 12, "bpobservation": 13,
	"bpstaining": 14, "bprems": 15,
}

var descriptions = map[string]string{
	"study":         "a coherent unit of sequencing investigation",
	"sample":        "physical sample metadata",
	"experiment":    "library preparation and sequencing setup",
	"run":           "a sequencing run producing data files",
	"analysis":      "derived analysis results",
	"dac":           "data access committee",
	"policy":        "data access policy issued by a DAC",
	"dataset":       "the released collection of runs and analyses",
	"bpdataset":     "BigPicture dataset",
	"bpsample":      "BigPicture biological sample",
	"bpimage":       "BigPicture whole-slide image",
	"bpobservation": "BigPicture observation on a sample or image",
	"bpstaining":    "BigPicture staining protocol",
	"bprems":        "BigPicture access-management attachment",
}

// LoadDefault builds the catalog from the embedded schema set.
func LoadDefault() (*Catalog, error) {
	sub, err := fs.Sub(defaultFiles, "files")
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return load(sub)
}

// LoadDir builds the catalog from an override directory on disk.
func LoadDir(dir string) (*Catalog, error) {
	return load(os.DirFS(dir))
}

func load(fsys fs.FS) (*Catalog, error) {
	catalog := &Catalog{entries: make(map[string]*entry)}

	names, err := fs.Glob(fsys, "*.json")
	if err != nil {
		return nil, Error.Wrap(err)
	}
	for _, filename := range names {
		name, provider := splitStem(filename)

		data, err := fs.ReadFile(fsys, filename)
		if err != nil {
			return nil, Error.Wrap(err)
		}

		var raw jsonschema.Schema
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, Error.New("parsing %s: %w", filename, err)
		}
		resolved, err := raw.Resolve(nil)
		if err != nil {
			return nil, Error.New("resolving %s: %w", filename, err)
		}

		catalog.entries[name] = &entry{
			info: Info{
				Name:        name,
				Priority:    priority[name],
				Provider:    provider,
				Description: descriptions[name],
			},
			resolved: resolved,
			raw:      &raw,
		}
	}

	xsds, err := fs.Glob(fsys, "*.xsd")
	if err != nil {
		return nil, Error.Wrap(err)
	}
	for _, filename := range xsds {
		name, _ := splitStem(filename)
		ent, ok := catalog.entries[name]
		if !ok {
			continue
		}
		data, err := fs.ReadFile(fsys, filename)
		if err != nil {
			return nil, Error.Wrap(err)
		}
		ent.xsd, err = parseXSD(data)
		if err != nil {
			return nil, Error.New("parsing %s: %w", filename, err)
		}
	}

	for name := range catalog.entries {
		catalog.ordered = append(catalog.ordered, catalog.entries[name].info)
	}
	sort.Slice(catalog.ordered, func(i, k int) bool {
		a, b := catalog.ordered[i], catalog.ordered[k]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		return a.Name < b.Name
	})

	return catalog, nil
}

// splitStem maps "EGA.study.json" and "study.json" both to ("study", "EGA"/"").
func splitStem(filename string) (name, provider string) {
	stem := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	if idx := strings.IndexByte(stem, '.'); idx >= 0 {
		return stem[idx+1:], stem[:idx]
	}
	return stem, ""
}

// Schemas returns catalog entries in priority order.
func (c *Catalog) Schemas() []Info {
	return append([]Info(nil), c.ordered...)
}

// Has reports whether the catalog holds a schema with the given name.
func (c *Catalog) Has(name string) bool {
	_, ok := c.entries[name]
	return ok
}

// SchemaFor returns the parsed JSON Schema for the given object type.
func (c *Catalog) SchemaFor(name string) (*jsonschema.Schema, error) {
	ent, ok := c.entries[name]
	if !ok {
		return nil, ErrNotFound.New("%q", name)
	}
	return ent.raw, nil
}

// ValidateJSON validates a decoded JSON document against the named schema.
// It returns nil when the document is valid.
func (c *Catalog) ValidateJSON(name string, doc any) []ValidationError {
	ent, ok := c.entries[name]
	if !ok {
		return []ValidationError{{Message: fmt.Sprintf("no schema named %q", name)}}
	}
	if err := ent.resolved.Validate(doc); err != nil {
		return flattenJSONErrors(err)
	}
	return nil
}

// flattenJSONErrors unwraps joined validation errors into per-pointer entries.
func flattenJSONErrors(err error) []ValidationError {
	type unwrapper interface{ Unwrap() []error }
	if joined, ok := err.(unwrapper); ok {
		var out []ValidationError
		for _, sub := range joined.Unwrap() {
			out = append(out, flattenJSONErrors(sub)...)
		}
		return out
	}
	msg := err.Error()
	pointer := ""
	// jsonschema-go reports the failing instance location inside the message
	// as "validating ...at <pointer>:".
	if idx := strings.Index(msg, "at /"); idx >= 0 {
		rest := msg[idx+3:]
		if end := strings.IndexAny(rest, ": "); end > 0 {
			pointer = rest[:end]
		}
	}
	return []ValidationError{{Pointer: pointer, Message: msg}}
}

// ValidateXML validates raw XML bytes against the named schema's XSD.
// It returns nil when the document is valid.
func (c *Catalog) ValidateXML(name string, data []byte) []ValidationError {
	ent, ok := c.entries[name]
	if !ok || ent.xsd == nil {
		return []ValidationError{{Message: fmt.Sprintf("no XML schema named %q", name)}}
	}
	return ent.xsd.validate(data)
}
