// Copyright (C) 2024 Storj Labs, Inc.
// See LICENSE for copying information.

// Package xmlproc turns multipart XML bundles into schema-validated metadata
// objects. A bundle part carries one object type and either a single object
// element or a SET wrapper with many; the processor validates each part
// against its XSD, splits it, mints accession ids, converts the XML to
// canonical JSON and resolves by-name references between objects.
package xmlproc

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/beevik/etree"
	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"submitter.io/submitter/submitter/schema"
	"submitter.io/submitter/submitter/submission"
	"submitter.io/submitter/submitter/workflow"
)

var (
	// Error is the default error class for the xmlproc package.
	Error = errs.Class("xmlproc")

	mon = monkit.Package()
)

// Problem kinds accumulated while processing a bundle.
const (
	KindXMLSchema     = "xml_schema"
	KindJSONSchema    = "json_schema"
	KindReference     = "reference"
	KindDuplicateName = "duplicate_name"
)

// Problem is one accumulated bundle defect. Bundles are checked to the end
// so a single response can report every problem at once.
type Problem struct {
	Kind       string `json:"kind"`
	ObjectType string `json:"objectType,omitempty"`
	Name       string `json:"name,omitempty"`
	Pointer    string `json:"pointer,omitempty"`
	Line       int    `json:"line,omitempty"`
	From       string `json:"from,omitempty"`
	ToName     string `json:"toName,omitempty"`
	Message    string `json:"message"`
}

// Part is one multipart field of the bundle. The field name selects the
// object type, the body is the XML payload.
type Part struct {
	ObjectType string
	Data       []byte
}

// Cardinality reports how many objects of a type the submission would hold
// after accepting the bundle, next to the workflow's constraints.
type Cardinality struct {
	ObjectType    string `json:"objectType"`
	Count         int    `json:"count"`
	Required      bool   `json:"required"`
	AllowMultiple bool   `json:"allowMultiple"`
}

// Result is the outcome of processing one bundle. Objects is only usable
// when Problems is empty.
type Result struct {
	Objects     []submission.MetadataObject `json:"-"`
	Cardinality []Cardinality               `json:"cardinality"`
	Problems    []Problem                   `json:"problems,omitempty"`
}

// Processor converts XML bundles into metadata objects.
//
// architecture: Service
type Processor struct {
	log      *zap.Logger
	catalog  *schema.Catalog
	centerID string
}

// NewProcessor creates an XML bundle processor.
func NewProcessor(log *zap.Logger, catalog *schema.Catalog, centerID string) *Processor {
	return &Processor{log: log, catalog: catalog, centerID: centerID}
}

// bundleObject is one logical object while the bundle is in flight.
type bundleObject struct {
	objectType string
	name       string
	accession  string
	element    *etree.Element
}

type typeName struct {
	objectType string
	name       string
}

// Process validates and converts a bundle in the context of a submission.
// existing holds the submission's already-stored objects so references can
// target them too. Accumulated problems are returned on the result; a
// non-nil error means the bundle could not be processed at all.
func (p *Processor) Process(ctx context.Context, sub *submission.Submission, existing []submission.MetadataObject, parts []Part) (result *Result, err error) {
	defer mon.Task()(&ctx)(&err)

	wf, err := workflow.Get(sub.Workflow)
	if err != nil {
		return nil, err
	}

	result = &Result{}
	var objects []bundleObject
	names := map[typeName]string{}
	for _, object := range existing {
		names[typeName{object.ObjectType, object.Name}] = object.AccessionID
	}

	for _, part := range parts {
		if _, ok := wf.Rule(part.ObjectType); !ok {
			result.Problems = append(result.Problems, Problem{
				Kind:       KindXMLSchema,
				ObjectType: part.ObjectType,
				Message:    "object type is not part of the workflow",
			})
			continue
		}
		for _, violation := range p.catalog.ValidateXML(part.ObjectType, part.Data) {
			result.Problems = append(result.Problems, Problem{
				Kind:       KindXMLSchema,
				ObjectType: part.ObjectType,
				Line:       violation.Line,
				Message:    violation.Message,
			})
		}

		elements, splitProblems := splitPart(part)
		result.Problems = append(result.Problems, splitProblems...)

		for _, element := range elements {
			name := element.SelectAttrValue("alias", "")
			if name == "" {
				result.Problems = append(result.Problems, Problem{
					Kind:       KindXMLSchema,
					ObjectType: part.ObjectType,
					Message:    "object has no alias attribute",
				})
				continue
			}
			key := typeName{part.ObjectType, name}
			if _, taken := names[key]; taken {
				result.Problems = append(result.Problems, Problem{
					Kind:       KindDuplicateName,
					ObjectType: part.ObjectType,
					Name:       name,
					Message:    "name already used within the submission",
				})
				continue
			}

			accession := element.SelectAttrValue("accession", "")
			if accession == "" {
				accession = submission.MintAccession(sub.Workflow, p.centerID, sub.ID, part.ObjectType, name)
				element.CreateAttr("accession", accession)
			}
			names[key] = accession
			objects = append(objects, bundleObject{
				objectType: part.ObjectType,
				name:       name,
				accession:  accession,
				element:    element,
			})
		}
	}

	for _, object := range objects {
		p.resolveReferences(object, names, result)

		document := elementToValue(object.element)
		for _, violation := range p.catalog.ValidateJSON(object.objectType, document) {
			result.Problems = append(result.Problems, Problem{
				Kind:       KindJSONSchema,
				ObjectType: object.objectType,
				Name:       object.name,
				Pointer:    violation.Pointer,
				Message:    violation.Message,
			})
		}
		if len(result.Problems) > 0 {
			continue
		}

		encoded, err := json.Marshal(document)
		if err != nil {
			return nil, Error.Wrap(err)
		}
		raw, err := serializeElement(object.element)
		if err != nil {
			return nil, err
		}
		result.Objects = append(result.Objects, submission.MetadataObject{
			AccessionID:  object.accession,
			SubmissionID: sub.ID,
			ProjectID:    sub.ProjectID,
			ObjectType:   object.objectType,
			Name:         object.name,
			Title:        titleOf(document),
			Document:     encoded,
			XML:          raw,
		})
	}
	if len(result.Problems) > 0 {
		result.Objects = nil
	}

	result.Cardinality = cardinalityReport(wf, existing, objects)
	return result, nil
}

// splitPart breaks one part into its logical object elements. The root is
// either the object element itself or a SET wrapper holding many.
func splitPart(part Part) (elements []*etree.Element, problems []Problem) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(part.Data); err != nil {
		return nil, []Problem{{
			Kind:       KindXMLSchema,
			ObjectType: part.ObjectType,
			Message:    "malformed XML: " + err.Error(),
		}}
	}
	root := doc.Root()
	if root == nil {
		return nil, []Problem{{
			Kind:       KindXMLSchema,
			ObjectType: part.ObjectType,
			Message:    "document has no root element",
		}}
	}

	tag := strings.ToUpper(part.ObjectType)
	switch root.Tag {
	case tag:
		return []*etree.Element{root}, nil
	case tag + "_SET":
		elements = root.SelectElements(tag)
		if len(elements) == 0 {
			problems = append(problems, Problem{
				Kind:       KindXMLSchema,
				ObjectType: part.ObjectType,
				Message:    "set contains no " + tag + " elements",
			})
		}
		return elements, problems
	default:
		return nil, []Problem{{
			Kind:       KindXMLSchema,
			ObjectType: part.ObjectType,
			Message:    "unexpected root element " + root.Tag,
		}}
	}
}

// resolveReferences rewrites every reference site under the object to carry
// the accession id of the object it names. References target bundle objects
// and already-stored objects alike.
func (p *Processor) resolveReferences(object bundleObject, names map[typeName]string, result *Result) {
	for _, site := range referenceSites(object.element) {
		refname := site.SelectAttrValue("refname", "")
		if refname == "" {
			continue
		}
		if site.SelectAttrValue("accession", "") != "" {
			continue
		}

		targetType := p.referencedType(site.Tag)
		accession, ok := names[typeName{targetType, refname}]
		if !ok {
			result.Problems = append(result.Problems, Problem{
				Kind:       KindReference,
				ObjectType: targetType,
				From:       object.name,
				ToName:     refname,
				Message:    "referenced " + targetType + " not found in submission",
			})
			continue
		}
		site.CreateAttr("accession", accession)
	}
}

// referencedType maps a reference element tag to the object type it points
// at: STUDY_REF targets study, IMAGE_REF targets bpimage.
func (p *Processor) referencedType(tag string) string {
	base := strings.ToLower(strings.TrimSuffix(tag, "_REF"))
	if p.catalog.Has(base) {
		return base
	}
	if p.catalog.Has("bp" + base) {
		return "bp" + base
	}
	return base
}

// referenceSites collects the descendant elements that reference another
// object by name.
func referenceSites(element *etree.Element) (sites []*etree.Element) {
	for _, child := range element.ChildElements() {
		if strings.HasSuffix(child.Tag, "_REF") && child.SelectAttr("refname") != nil {
			sites = append(sites, child)
		}
		sites = append(sites, referenceSites(child)...)
	}
	return sites
}

func cardinalityReport(wf *workflow.Workflow, existing []submission.MetadataObject, incoming []bundleObject) (report []Cardinality) {
	counts := map[string]int{}
	for _, object := range existing {
		counts[object.ObjectType]++
	}
	for _, object := range incoming {
		counts[object.objectType]++
	}
	for _, rule := range wf.Schemas {
		report = append(report, Cardinality{
			ObjectType:    rule.Schema,
			Count:         counts[rule.Schema],
			Required:      rule.Required,
			AllowMultiple: rule.AllowMultiple,
		})
	}
	return report
}

func titleOf(document map[string]any) string {
	if title, ok := document["title"].(string); ok {
		return title
	}
	return ""
}

// serializeElement writes one object element back out as a standalone XML
// document, with the injected accession and reference attributes included.
func serializeElement(element *etree.Element) ([]byte, error) {
	doc := etree.NewDocument()
	doc.SetRoot(element.Copy())
	data, err := doc.WriteToBytes()
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return data, nil
}
