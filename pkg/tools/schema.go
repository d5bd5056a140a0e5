// Package tools holds the JSON-schema model shared by the structured-output providers.
package tools

import "encoding/json"

// Property is one node of a JSON schema. Object nodes list their properties in Required
// order; every property of a closed object is required, optional values are Nullable.
type Property struct {
	Type        string
	Description string
	Enum        []string
	Items       *Property
	Properties  map[string]*Property
	Required    []string
	AnyOf       []*Property
	MinItems    *int
	MaxItems    *int
	Nullable    bool
	Closed      bool // additionalProperties: false
}

// String returns a string property.
func String(description string) *Property {
	return &Property{Type: "string", Description: description}
}

// Integer returns an integer property.
func Integer(description string) *Property {
	return &Property{Type: "integer", Description: description}
}

// Number returns a number property.
func Number(description string) *Property {
	return &Property{Type: "number", Description: description}
}

// Boolean returns a boolean property.
func Boolean(description string) *Property {
	return &Property{Type: "boolean", Description: description}
}

// Enum returns a string property restricted to values.
func Enum(description string, values ...string) *Property {
	return &Property{Type: "string", Description: description, Enum: values}
}

// Array returns an array property of items.
func Array(description string, items *Property) *Property {
	return &Property{Type: "array", Description: description, Items: items}
}

// Field names one property of an object in declaration order.
type Field struct {
	Name     string
	Property *Property
}

// Object returns a closed object whose fields are all required.
func Object(description string, fields ...Field) *Property {
	p := &Property{
		Type:        "object",
		Description: description,
		Properties:  make(map[string]*Property, len(fields)),
		Required:    make([]string, 0, len(fields)),
		Closed:      true,
	}
	for _, f := range fields {
		p.Properties[f.Name] = f.Property
		p.Required = append(p.Required, f.Name)
	}
	return p
}

// OneOf returns a property that must match exactly one of variants.
func OneOf(description string, variants ...*Property) *Property {
	return &Property{Description: description, AnyOf: variants}
}

// Optional marks p as nullable and returns it.
func (p *Property) Optional() *Property {
	p.Nullable = true
	return p
}

// Bounded sets array length limits and returns p.
func (p *Property) Bounded(minItems, maxItems int) *Property {
	p.MinItems = &minItems
	p.MaxItems = &maxItems
	return p
}

// ToMap renders the property as a JSON-schema document.
func (p *Property) ToMap() map[string]any {
	m := make(map[string]any)
	if p.Description != "" {
		m["description"] = p.Description
	}
	if len(p.AnyOf) > 0 {
		variants := make([]any, 0, len(p.AnyOf))
		for _, v := range p.AnyOf {
			variants = append(variants, v.ToMap())
		}
		m["anyOf"] = variants
		return m
	}

	if p.Nullable {
		m["type"] = []string{p.Type, "null"}
	} else {
		m["type"] = p.Type
	}
	if len(p.Enum) > 0 {
		enum := make([]any, 0, len(p.Enum)+1)
		for _, e := range p.Enum {
			enum = append(enum, e)
		}
		if p.Nullable {
			enum = append(enum, nil)
		}
		m["enum"] = enum
	}
	if p.Items != nil {
		m["items"] = p.Items.ToMap()
	}
	if p.MinItems != nil {
		m["minItems"] = *p.MinItems
	}
	if p.MaxItems != nil {
		m["maxItems"] = *p.MaxItems
	}
	if p.Type == "object" {
		props := make(map[string]any, len(p.Properties))
		for name, child := range p.Properties {
			props[name] = child.ToMap()
		}
		m["properties"] = props
		required := p.Required
		if required == nil {
			required = []string{}
		}
		m["required"] = required
		if p.Closed {
			m["additionalProperties"] = false
		}
	}
	return m
}

// MarshalJSON encodes the schema document form.
func (p *Property) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.ToMap())
}
