package cli

import (
	"fmt"
	"strings"

	"github.com/transifex/jsonapi-client/pkg/jsonapi"
	"gopkg.in/yaml.v3"
)

// parsePairs reads 'key=value' items, keeping their order
func parsePairs(items []string) ([][2]string, error) {
	result := make([][2]string, 0, len(items))
	for _, item := range items {
		key, value, found := strings.Cut(item, "=")
		key = strings.TrimSpace(key)
		if !found || key == "" {
			return nil, fmt.Errorf("expected 'key=value', got '%s'", item)
		}
		result = append(result, [2]string{key, value})
	}
	return result, nil
}

/*
parseAssignments reads 'key=value' items. Values are read as YAML, so '3' is
a number, 'true' a boolean, 'null' or nothing a null and anything else a
string. Quote a value to force a string: rating='3'.
*/
func parseAssignments(items []string) (map[string]interface{}, error) {
	pairs, err := parsePairs(items)
	if err != nil {
		return nil, err
	}
	result := make(map[string]interface{}, len(pairs))
	for _, pair := range pairs {
		var value interface{}
		err := yaml.Unmarshal([]byte(pair[1]), &value)
		if err != nil {
			return nil, fmt.Errorf("invalid value for '%s': %w", pair[0], err)
		}
		result[pair[0]] = value
	}
	return result, nil
}

// parseLinks reads 'relationship=id[,id...]' items
func parseLinks(items []string) (map[string][]string, error) {
	pairs, err := parsePairs(items)
	if err != nil {
		return nil, err
	}
	result := make(map[string][]string, len(pairs))
	for _, pair := range pairs {
		ids := []string{}
		for _, id := range strings.Split(pair[1], ",") {
			id = strings.TrimSpace(id)
			if id != "" {
				ids = append(ids, id)
			}
		}
		result[pair[0]] = ids
	}
	return result, nil
}

/*
applyLinks points the resource's relationships to resources that are only
known by id. An empty list of ids clears the relationship.
*/
func applyLinks(
	api *jsonapi.Connection, resource *jsonapi.Resource, links map[string][]string,
) error {
	for name, ids := range links {
		relationship, exists := resource.Type.Relationship(name)
		if !exists {
			return fmt.Errorf("'%s' is not a relationship of '%s'",
				name, resource.Type.Name())
		}
		if relationship.Multiplicity == jsonapi.SINGULAR && len(ids) > 1 {
			return fmt.Errorf("'%s' can only point to one resource", name)
		}
		relatedType := LookupType(api, relationship.Type)
		members := make([]*jsonapi.Resource, 0, len(ids))
		for _, id := range ids {
			member, err := api.NewWith(relatedType, jsonapi.PayloadResource{Id: id})
			if err != nil {
				return err
			}
			members = append(members, member)
		}
		resource.SetRelated(name, members...)
	}
	return nil
}

/*
pushItem is one entry of the file given to 'push':

    - id: "1"
      attributes:
        title: Hello
      relationships:
        author: "7"
        tags: ["1", "2"]
*/
type pushItem struct {
	Id            string                 `yaml:"id"`
	Attributes    map[string]interface{} `yaml:"attributes"`
	Relationships map[string]interface{} `yaml:"relationships"`
}

// Since JSON is valid YAML, files in either format are accepted
func parsePushFile(data []byte) ([]pushItem, error) {
	var items []pushItem
	err := yaml.Unmarshal(data, &items)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	for i, item := range items {
		if item.Id == "" {
			continue
		}
		if seen[item.Id] {
			return nil, fmt.Errorf("item %d: id '%s' appears twice", i+1, item.Id)
		}
		seen[item.Id] = true
	}
	return items, nil
}

func (item pushItem) links() map[string][]string {
	result := make(map[string][]string, len(item.Relationships))
	for name, value := range item.Relationships {
		switch value := value.(type) {
		case nil:
			result[name] = []string{}
		case string:
			result[name] = []string{value}
		case []interface{}:
			ids := make([]string, 0, len(value))
			for _, id := range value {
				ids = append(ids, fmt.Sprint(id))
			}
			result[name] = ids
		default:
			result[name] = []string{fmt.Sprint(value)}
		}
	}
	return result
}
