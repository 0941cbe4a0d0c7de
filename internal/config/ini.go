package config

import (
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"

	"gopkg.in/ini.v1"
)

func loadFromBytes(data []byte) (*Config, error) {
	file, err := ini.Load(data)
	if err != nil {
		return nil, err
	}

	var result Config
	for _, section := range file.Sections() {
		name := section.Name()
		switch {
		case name == ini.DefaultSection:
			continue
		case name == mainSection:
			result.ActiveHost = section.Key("host").String()
		case strings.HasPrefix(name, typePrefix):
			resourceType, err := parseType(section)
			if err != nil {
				return nil, err
			}
			result.Types = append(result.Types, resourceType)
		default:
			host, err := parseHost(section)
			if err != nil {
				return nil, err
			}
			result.Hosts = append(result.Hosts, host)
		}
	}

	result.sort()
	err = result.Validate()
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func parseHost(section *ini.Section) (Host, error) {
	host := Host{
		Name:    section.Name(),
		APIBase: section.Key("api_base").String(),
		Token:   section.Key("token").String(),
	}
	var err error
	if section.HasKey("workers") {
		host.Workers, err = section.Key("workers").Int()
		if err != nil {
			return Host{}, fmt.Errorf("host '%s': invalid workers: %w",
				host.Name, err)
		}
	}
	if section.HasKey("requests_per_second") {
		host.RequestsPerSecond, err = section.Key("requests_per_second").Float64()
		if err != nil {
			return Host{}, fmt.Errorf(
				"host '%s': invalid requests_per_second: %w", host.Name, err,
			)
		}
	}
	return host, nil
}

func parseType(section *ini.Section) (Type, error) {
	result := Type{
		Name:       strings.TrimPrefix(section.Name(), typePrefix),
		URI:        section.Key("uri").String(),
		Attributes: listKey(section, "attributes"),
	}
	var err error
	result.ToOne, err = parseRelationships(listKey(section, "to_one"))
	if err != nil {
		return Type{}, fmt.Errorf("type '%s': %w", result.Name, err)
	}
	result.ToMany, err = parseRelationships(listKey(section, "to_many"))
	if err != nil {
		return Type{}, fmt.Errorf("type '%s': %w", result.Name, err)
	}
	return result, nil
}

// listKey reads a comma separated value; a missing or empty key gives nil
func listKey(section *ini.Section, name string) []string {
	values := section.Key(name).Strings(",")
	if len(values) == 0 {
		return nil
	}
	return values
}

// parseRelationships reads 'name' or 'name:type' items
func parseRelationships(items []string) ([]Relationship, error) {
	var result []Relationship
	for _, item := range items {
		parts := strings.Split(item, ":")
		name := strings.TrimSpace(parts[0])
		if len(parts) > 2 || name == "" {
			return nil, fmt.Errorf("invalid relationship '%s'", item)
		}
		relationship := Relationship{Name: name}
		if len(parts) == 2 {
			relationship.Type = strings.TrimSpace(parts[1])
		}
		result = append(result, relationship)
	}
	return result, nil
}

func formatRelationships(relationships []Relationship) string {
	items := make([]string, 0, len(relationships))
	for _, relationship := range relationships {
		if relationship.Type == "" || relationship.Type == relationship.Name {
			items = append(items, relationship.Name)
		} else {
			items = append(items, relationship.Name+":"+relationship.Type)
		}
	}
	return strings.Join(items, ", ")
}

/*
Save
Save changes to disk, unless nothing changed since the file was loaded
*/
func (cfg *Config) Save() error {
	if cfg.Path == "" {
		path, err := GetPath()
		if err != nil {
			return err
		}
		cfg.Path = path
	}
	cfg.sort()
	err := cfg.Validate()
	if err != nil {
		return err
	}

	old, err := LoadFromPath(cfg.Path)
	if err == nil && configsEqual(old, cfg) {
		return nil
	}

	file, err := os.OpenFile(cfg.Path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer file.Close()
	return cfg.saveToWriter(file)
}

func (cfg *Config) saveToWriter(writer io.Writer) error {
	file := ini.Empty(ini.LoadOptions{})

	if cfg.ActiveHost != "" {
		section, err := file.NewSection(mainSection)
		if err != nil {
			return err
		}
		_, err = section.NewKey("host", cfg.ActiveHost)
		if err != nil {
			return err
		}
	}

	for _, host := range cfg.Hosts {
		section, err := file.NewSection(host.Name)
		if err != nil {
			return err
		}
		keys := [][2]string{
			{"api_base", host.APIBase},
			{"token", host.Token},
		}
		if host.Workers != 0 {
			keys = append(keys, [2]string{"workers", fmt.Sprint(host.Workers)})
		}
		if host.RequestsPerSecond != 0 {
			keys = append(keys, [2]string{
				"requests_per_second", fmt.Sprint(host.RequestsPerSecond),
			})
		}
		err = newKeys(section, keys)
		if err != nil {
			return err
		}
	}

	for _, resourceType := range cfg.Types {
		section, err := file.NewSection(typePrefix + resourceType.Name)
		if err != nil {
			return err
		}
		err = newKeys(section, [][2]string{
			{"uri", resourceType.URI},
			{"attributes", strings.Join(resourceType.Attributes, ", ")},
			{"to_one", formatRelationships(resourceType.ToOne)},
			{"to_many", formatRelationships(resourceType.ToMany)},
		})
		if err != nil {
			return err
		}
	}

	_, err := file.WriteTo(writer)
	return err
}

// newKeys adds the non-empty values to the section
func newKeys(section *ini.Section, keys [][2]string) error {
	for _, key := range keys {
		if key[1] == "" {
			continue
		}
		_, err := section.NewKey(key[0], key[1])
		if err != nil {
			return err
		}
	}
	return nil
}

func configsEqual(left, right *Config) bool {
	if left == nil || right == nil {
		return left == right
	}
	return left.ActiveHost == right.ActiveHost &&
		reflect.DeepEqual(left.Hosts, right.Hosts) &&
		reflect.DeepEqual(left.Types, right.Types)
}
