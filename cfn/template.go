// Package cfn models a CloudFormation template document and the handful of
// intrinsic functions needed to wire declared resources together.
package cfn

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Template is a CloudFormation template under construction. Resources,
// parameters and outputs are keyed by logical ID; both encoders emit map keys
// in sorted order, so marshaling the same template twice yields identical
// bytes.
type Template struct {
	AWSTemplateFormatVersion string               `json:"AWSTemplateFormatVersion,omitempty" yaml:"AWSTemplateFormatVersion,omitempty"`
	Description              string               `json:"Description,omitempty" yaml:"Description,omitempty"`
	Parameters               map[string]Parameter `json:"Parameters,omitempty" yaml:"Parameters,omitempty"`
	Resources                map[string]*Resource `json:"Resources" yaml:"Resources"`
	Outputs                  map[string]Output    `json:"Outputs,omitempty" yaml:"Outputs,omitempty"`
}

// Parameter is a template-level input supplied at deploy time.
type Parameter struct {
	Type        string `json:"Type" yaml:"Type"`
	Default     any    `json:"Default,omitempty" yaml:"Default,omitempty"`
	Description string `json:"Description,omitempty" yaml:"Description,omitempty"`
}

// Resource is a single declared resource.
type Resource struct {
	Type       string         `json:"Type" yaml:"Type"`
	Properties map[string]any `json:"Properties,omitempty" yaml:"Properties,omitempty"`
	DependsOn  []string       `json:"DependsOn,omitempty" yaml:"DependsOn,omitempty"`
}

// Output is a template-level output value.
type Output struct {
	Description string `json:"Description,omitempty" yaml:"Description,omitempty"`
	Value       any    `json:"Value" yaml:"Value"`
}

// NewTemplate returns an empty template with the standard format version.
func NewTemplate(description string) *Template {
	return &Template{
		AWSTemplateFormatVersion: "2010-09-09",
		Description:              description,
		Resources:                map[string]*Resource{},
	}
}

// AddResource registers a resource under the given logical ID. Logical IDs
// must be unique within the template.
func (t *Template) AddResource(logicalID string, resource *Resource) error {
	if _, ok := t.Resources[logicalID]; ok {
		return fmt.Errorf("resource %q already declared in template", logicalID)
	}
	t.Resources[logicalID] = resource
	return nil
}

// AddParameter registers a template parameter under the given name.
func (t *Template) AddParameter(name string, parameter Parameter) error {
	if t.Parameters == nil {
		t.Parameters = map[string]Parameter{}
	}
	if _, ok := t.Parameters[name]; ok {
		return fmt.Errorf("parameter %q already declared in template", name)
	}
	t.Parameters[name] = parameter
	return nil
}

// AddOutput registers a template output under the given name.
func (t *Template) AddOutput(name string, output Output) error {
	if t.Outputs == nil {
		t.Outputs = map[string]Output{}
	}
	if _, ok := t.Outputs[name]; ok {
		return fmt.Errorf("output %q already declared in template", name)
	}
	t.Outputs[name] = output
	return nil
}

// JSON renders the template as indented JSON.
func (t *Template) JSON() ([]byte, error) {
	body, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal template to JSON: %w", err)
	}
	return body, nil
}

// YAML renders the template as YAML.
func (t *Template) YAML() ([]byte, error) {
	body, err := yaml.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal template to YAML: %w", err)
	}
	return body, nil
}
