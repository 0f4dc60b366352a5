// Package template loads, inspects, and rewrites deployment templates.
//
// Templates are parsed at the YAML node level so that content this tool does
// not understand (conditions, outputs, comments, custom sections) survives a
// load/serialize round trip untouched.
package template

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

var (
	ErrNotMapping     = errors.New("template root is not a mapping")
	ErrNoSuchResource = errors.New("no such resource")
	ErrNotFunction    = errors.New("resource is not a function")
)

// Resource types that represent deployable functions.
const (
	TypeServerlessFunction = "AWS::Serverless::Function"
	TypeLambdaFunction     = "AWS::Lambda::Function"
)

// Document is a parsed deployment template.
type Document struct {
	root *yaml.Node
}

// Resource is one named entry under the template's Resources section.
type Resource struct {
	Name string
	Type string

	def *yaml.Node
}

// Load parses template source into a Document.
func Load(data []byte) (*Document, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parsing template: %w", err)
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return nil, fmt.Errorf("parsing template: %w", ErrNotMapping)
	}
	if root.Content[0].Kind != yaml.MappingNode {
		return nil, fmt.Errorf("parsing template: %w", ErrNotMapping)
	}
	return &Document{root: &root}, nil
}

// LoadFile reads and parses the template at path.
func LoadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading template: %w", err)
	}
	return Load(data)
}

// Resources returns the template's resources in declaration order. A resource
// with a non-mapping definition or a missing Type is returned with an empty
// Type so the caller can decide what to do with it.
func (d *Document) Resources() []Resource {
	section := mappingValue(d.top(), "Resources")
	if section == nil || section.Kind != yaml.MappingNode {
		return nil
	}

	resources := make([]Resource, 0, len(section.Content)/2)
	for i := 0; i+1 < len(section.Content); i += 2 {
		def := section.Content[i+1]
		res := Resource{
			Name: section.Content[i].Value,
			def:  def,
		}
		if t := mappingValue(def, "Type"); t != nil {
			res.Type = t.Value
		}
		resources = append(resources, res)
	}
	return resources
}

// IsFunction reports whether the resource's type marks it as a deployable
// function.
func (r Resource) IsFunction() bool {
	return r.Type == TypeServerlessFunction || r.Type == TypeLambdaFunction
}

// Property returns the named entry of the resource's Properties mapping as a
// scalar string.
func (r Resource) Property(name string) (string, bool) {
	props := mappingValue(r.def, "Properties")
	node := mappingValue(props, name)
	if node == nil || node.Kind != yaml.ScalarNode {
		return "", false
	}
	return node.Value, true
}

// Runtime returns the resource's declared runtime, if any.
func (r Resource) Runtime() (string, bool) {
	return r.Property("Runtime")
}

// CodeLocation returns the resource's code-reference property, if any.
func (r Resource) CodeLocation() (string, bool) {
	return r.Property(codeKey(r.Type))
}

// SetCodeLocation rewrites the code-reference property of the named function
// resource to location, creating the property if missing. No other part of
// the document is touched.
func (d *Document) SetCodeLocation(name, location string) error {
	for _, res := range d.Resources() {
		if res.Name != name {
			continue
		}
		if !res.IsFunction() {
			return fmt.Errorf("%w: %s is %s", ErrNotFunction, name, res.Type)
		}

		props := mappingValue(res.def, "Properties")
		if props == nil {
			props = &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
			appendMapping(res.def, "Properties", props)
		}

		key := codeKey(res.Type)
		if node := mappingValue(props, key); node != nil {
			node.SetString(location)
			return nil
		}
		value := &yaml.Node{}
		value.SetString(location)
		appendMapping(props, key, value)
		return nil
	}
	return fmt.Errorf("%w: %s", ErrNoSuchResource, name)
}

// Marshal serializes the document back to YAML.
func (d *Document) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(d.root.Content[0]); err != nil {
		return nil, fmt.Errorf("serializing template: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("serializing template: %w", err)
	}
	return buf.Bytes(), nil
}

func (d *Document) top() *yaml.Node {
	return d.root.Content[0]
}

func codeKey(resourceType string) string {
	if resourceType == TypeLambdaFunction {
		return "Code"
	}
	return "CodeUri"
}

func mappingValue(m *yaml.Node, key string) *yaml.Node {
	if m == nil || m.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}

func appendMapping(m *yaml.Node, key string, value *yaml.Node) {
	k := &yaml.Node{}
	k.SetString(key)
	m.Content = append(m.Content, k, value)
}
