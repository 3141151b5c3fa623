// Package openapi parses OpenAPI 3.x documents and normalizes them into
// indexable docs. Parsing is deliberately shallow: only the fields the
// index needs are decoded, everything else in the document is ignored.
package openapi

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/apidb-dev/apidb/internal/core/domain"
)

var versionPattern = regexp.MustCompile(`^3(\.\d+){1,2}$`)

// Document is the decoded slice of an OpenAPI 3.x specification.
type Document struct {
	OpenAPI    string              `json:"openapi" yaml:"openapi"`
	Paths      map[string]PathItem `json:"paths" yaml:"paths"`
	Components Components          `json:"components" yaml:"components"`
}

// Components holds the reusable objects of the specification.
type Components struct {
	Schemas map[string]*Schema `json:"schemas" yaml:"schemas"`
}

// PathItem holds the operations defined on one path.
type PathItem struct {
	Get     *Operation `json:"get" yaml:"get"`
	Put     *Operation `json:"put" yaml:"put"`
	Post    *Operation `json:"post" yaml:"post"`
	Delete  *Operation `json:"delete" yaml:"delete"`
	Patch   *Operation `json:"patch" yaml:"patch"`
	Head    *Operation `json:"head" yaml:"head"`
	Options *Operation `json:"options" yaml:"options"`
	Trace   *Operation `json:"trace" yaml:"trace"`
}

// Operation is one HTTP operation on a path.
type Operation struct {
	OperationID string   `json:"operationId" yaml:"operationId"`
	Summary     string   `json:"summary" yaml:"summary"`
	Description string   `json:"description" yaml:"description"`
	Tags        []string `json:"tags" yaml:"tags"`
}

// Schema is one named component schema, decoded one level deep.
type Schema struct {
	Ref         string             `json:"$ref" yaml:"$ref"`
	Type        string             `json:"type" yaml:"type"`
	Format      string             `json:"format" yaml:"format"`
	Description string             `json:"description" yaml:"description"`
	Properties  map[string]*Schema `json:"properties" yaml:"properties"`
}

// methodEntry pairs an upper-case HTTP method with its operation.
type methodEntry struct {
	method string
	op     *Operation
}

// operations lists the defined operations in a fixed method order so
// normalization is deterministic regardless of document formatting.
func (p PathItem) operations() []methodEntry {
	all := []methodEntry{
		{"GET", p.Get}, {"PUT", p.Put}, {"POST", p.Post}, {"DELETE", p.Delete},
		{"PATCH", p.Patch}, {"HEAD", p.Head}, {"OPTIONS", p.Options}, {"TRACE", p.Trace},
	}
	var defined []methodEntry
	for _, e := range all {
		if e.op != nil {
			defined = append(defined, e)
		}
	}
	return defined
}

// Parse decodes raw bytes as an OpenAPI 3.x document, trying JSON first
// and falling back to YAML. The filename only labels error messages.
func Parse(raw []byte, filename string) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(raw, &doc); err == nil {
		return validate(&doc, filename)
	}

	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parsing %s as JSON or YAML: %v: %w", filename, err, domain.ErrParse)
	}
	return validate(&doc, filename)
}

func validate(doc *Document, filename string) (*Document, error) {
	version := strings.TrimSpace(doc.OpenAPI)
	if version == "" {
		return nil, fmt.Errorf("not an OpenAPI document (%s): missing openapi version field: %w", filename, domain.ErrParse)
	}
	if !versionPattern.MatchString(version) {
		return nil, fmt.Errorf("unsupported OpenAPI version %q (%s): expected 3.x: %w", version, filename, domain.ErrParse)
	}
	return doc, nil
}
