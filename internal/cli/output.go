package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/transifex/jsonapi-client/pkg/jsonapi"
	"gopkg.in/yaml.v3"
)

const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

type relatedOutput struct {
	Id         string                 `json:"id" yaml:"id"`
	Attributes map[string]interface{} `json:"attributes,omitempty" yaml:"attributes,omitempty"`
}

type resourceOutput struct {
	Type          string                     `json:"type" yaml:"type"`
	Id            string                     `json:"id,omitempty" yaml:"id,omitempty"`
	Attributes    map[string]interface{}     `json:"attributes" yaml:"attributes"`
	Relationships map[string][]relatedOutput `json:"relationships,omitempty" yaml:"relationships,omitempty"`
	UpdatedAt     *time.Time                 `json:"updatedAt,omitempty" yaml:"updatedAt,omitempty"`
	Links         *jsonapi.Links             `json:"links,omitempty" yaml:"links,omitempty"`
}

type listOutput struct {
	Data []resourceOutput      `json:"data" yaml:"data"`
	Meta map[string]interface{} `json:"meta,omitempty" yaml:"meta,omitempty"`
	Next string                 `json:"next,omitempty" yaml:"next,omitempty"`
}

func newResourceOutput(resource *jsonapi.Resource) resourceOutput {
	result := resourceOutput{
		Type:       resource.Type.Name(),
		Id:         resource.Id,
		Attributes: resource.Attributes(),
		UpdatedAt:  resource.UpdatedAt,
	}
	if resource.Links.Self != "" || resource.Links.Related != "" {
		links := resource.Links
		result.Links = &links
	}
	for _, relationship := range resource.Type.Relationships() {
		members := resource.Related(relationship.Name)
		if len(members) == 0 {
			continue
		}
		if result.Relationships == nil {
			result.Relationships = make(map[string][]relatedOutput)
		}
		for _, member := range members {
			related := relatedOutput{Id: member.Id}
			attributes := member.Attributes()
			for name, value := range attributes {
				if value == nil {
					delete(attributes, name)
				}
			}
			if len(attributes) > 0 {
				related.Attributes = attributes
			}
			result.Relationships[relationship.Name] = append(
				result.Relationships[relationship.Name], related,
			)
		}
	}
	return result
}

func encode(out io.Writer, format string, value interface{}) error {
	switch format {
	case FormatYAML:
		encoder := yaml.NewEncoder(out)
		encoder.SetIndent(2)
		err := encoder.Encode(value)
		if err != nil {
			return err
		}
		return encoder.Close()
	case FormatJSON, "":
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(value)
	}
	return fmt.Errorf("unknown output format '%s'", format)
}

func printResource(out io.Writer, format string, resource *jsonapi.Resource) error {
	return encode(out, format, newResourceOutput(resource))
}

func printCollection(out io.Writer, format string, page jsonapi.Collection) error {
	result := listOutput{
		Data: make([]resourceOutput, 0, len(page.Data)),
		Meta: page.Meta,
		Next: page.Next,
	}
	for _, resource := range page.Data {
		result.Data = append(result.Data, newResourceOutput(resource))
	}
	return encode(out, format, result)
}
