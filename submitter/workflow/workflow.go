// Copyright (C) 2024 Storj Labs, Inc.
// See LICENSE for copying information.

// Package workflow defines the named rule bundles that control which metadata
// schemas a submission accepts and which downstream services are invoked when
// it is published.
package workflow

import (
	"github.com/zeebo/errs"
)

// Error is the default error class for the workflow package.
var Error = errs.Class("workflow")

// Name identifies a workflow.
type Name string

// Supported workflows.
const (
	FEGA Name = "FEGA"
	BP   Name = "BP"
	SD   Name = "SD"
)

// Service identifies a downstream registry invoked during publish.
type Service string

// Downstream services.
const (
	ServiceDOI     Service = "doi"
	ServiceCatalog Service = "catalog"
	ServiceAccess  Service = "access"
	ServiceArchive Service = "archive"
)

// SchemaRule controls how many objects of one schema a submission may hold
// and which other schemas those objects depend on.
type SchemaRule struct {
	Schema string
	// Required means the publish gate demands at least one object.
	Required bool
	// AllowMultiple permits more than one object of this schema.
	AllowMultiple bool
	// Requires lists schemas that must all be present when this one is.
	Requires []string
	// RequiresOr lists schemas of which at least one must be present.
	RequiresOr []string
}

// Workflow is a named bundle of schema rules and publish steps.
type Workflow struct {
	Name Name
	// Schemas in catalog priority order.
	Schemas []SchemaRule
	// PublishSteps is the deterministic publish pipeline order.
	PublishSteps []Service
	// TracksFiles requires attached files and drives the ingest lifecycle.
	TracksFiles bool
}

// Rule returns the rule for the given schema name.
func (w *Workflow) Rule(schema string) (SchemaRule, bool) {
	for _, rule := range w.Schemas {
		if rule.Schema == schema {
			return rule, true
		}
	}
	return SchemaRule{}, false
}

// Accepts reports whether the workflow accepts objects of the given schema.
func (w *Workflow) Accepts(schema string) bool {
	_, ok := w.Rule(schema)
	return ok
}

var registry = map[Name]*Workflow{
	FEGA: {
		Name: FEGA,
		Schemas: []SchemaRule{
			{Schema: "study", Required: true},
			{Schema: "sample", AllowMultiple: true},
			{Schema: "experiment", AllowMultiple: true, Requires: []string{"study"}},
			{Schema: "run", AllowMultiple: true, Requires: []string{"experiment"}},
			{Schema: "analysis", AllowMultiple: true},
			{Schema: "dac", Required: true},
			{Schema: "policy", Required: true, Requires: []string{"dac"}},
			// The study edge and the run/analysis alternative disagree across
			// upstream schema versions; both are enforced pending a decision.
			{Schema: "dataset", Required: true, AllowMultiple: true,
				Requires:   []string{"policy", "study"},
				RequiresOr: []string{"run", "analysis"}},
		},
		PublishSteps: []Service{ServiceDOI, ServiceCatalog, ServiceAccess},
		TracksFiles:  true,
	},
	BP: {
		Name: BP,
		Schemas: []SchemaRule{
			{Schema: "bpdataset", Required: true},
			{Schema: "bpimage", AllowMultiple: true, Requires: []string{"bpdataset"}},
			{Schema: "bpsample", AllowMultiple: true},
			{Schema: "bpobservation", AllowMultiple: true, RequiresOr: []string{"bpsample", "bpimage"}},
			{Schema: "bpstaining", AllowMultiple: true},
			{Schema: "bprems", Required: true},
		},
		PublishSteps: []Service{ServiceDOI, ServiceAccess},
		TracksFiles:  true,
	},
	SD: {
		Name: SD,
		Schemas: []SchemaRule{
			{Schema: "dataset", Required: true},
		},
		PublishSteps: []Service{ServiceDOI, ServiceCatalog},
		TracksFiles:  false,
	},
}

// Get returns the workflow for the given name.
func Get(name Name) (*Workflow, error) {
	w, ok := registry[name]
	if !ok {
		return nil, Error.New("unknown workflow %q", name)
	}
	return w, nil
}

// Valid reports whether name refers to a known workflow.
func Valid(name Name) bool {
	_, ok := registry[name]
	return ok
}

// All returns every registered workflow.
func All() []*Workflow {
	return []*Workflow{registry[FEGA], registry[BP], registry[SD]}
}
