/*
Package config
ini-backed configuration of the jsonapi command line client.

The file (by default ~/.jsonapirc) holds one section per API host and one
'type:<name>' section per resource type:

    [main]
    host = production

    [production]
    api_base            = https://api.example.com/v2
    token               = XXX
    workers             = 4
    requests_per_second = 10

    [type:articles]
    uri        = articles
    attributes = title, body
    to_one     = author:people
    to_many    = comments

Usage:

    cfg, err := config.Load()
    if err != nil { ... }
    host := cfg.FindHost("production")
    registry, err := cfg.Registry()
*/
package config

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/transifex/jsonapi-client/pkg/jsonapi"
)

const (
	mainSection = "main"
	typePrefix  = "type:"
)

var validate = validator.New()

type Config struct {
	// Name of the host to use when none is given explicitly
	ActiveHost string
	Hosts      []Host `validate:"dive"`
	Types      []Type `validate:"dive"`
	Path       string
}

type Host struct {
	Name              string  `validate:"required"`
	APIBase           string  `validate:"required,url"`
	Token             string
	Workers           int     `validate:"gte=0,lte=64"`
	RequestsPerSecond float64 `validate:"gte=0"`
}

type Relationship struct {
	Name string `validate:"required"`
	// Defaults to Name
	Type string
}

type Type struct {
	Name       string         `validate:"required"`
	URI        string
	Attributes []string       `validate:"dive,required"`
	ToOne      []Relationship `validate:"dive"`
	ToMany     []Relationship `validate:"dive"`
}

/*
Load the configuration from the default path. A missing file is not an error,
the result simply has no hosts and no types.
*/
func Load() (*Config, error) {
	path, err := GetPath()
	if err != nil {
		return nil, err
	}
	return LoadFromPath(path)
}

func LoadFromPath(path string) (*Config, error) {
	if path == "" {
		return Load()
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return &Config{Path: path}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := loadFromBytes(data)
	if err != nil {
		return nil, fmt.Errorf("could not load '%s': %w", path, err)
	}
	cfg.Path = path
	return cfg, nil
}

/*
GetPath
Return the path of the configuration file: $JSONAPI_CONFIG if set, otherwise
~/.jsonapirc
*/
func GetPath() (string, error) {
	if path := os.Getenv("JSONAPI_CONFIG"); path != "" {
		return path, nil
	}
	homeDir := os.Getenv("HOME")
	if homeDir == "" {
		usr, err := user.Current()
		if err != nil {
			return "", err
		}
		homeDir = usr.HomeDir
	}
	return filepath.Join(homeDir, ".jsonapirc"), nil
}

// Validate checks the values that the ini format can't
func (cfg *Config) Validate() error {
	err := validate.Struct(cfg)
	if err != nil {
		return err
	}
	seen := make(map[string]bool)
	for _, resourceType := range cfg.Types {
		if seen[resourceType.Name] {
			return fmt.Errorf("type '%s' is defined twice", resourceType.Name)
		}
		seen[resourceType.Name] = true
	}
	if cfg.ActiveHost != "" && cfg.FindHost(cfg.ActiveHost) == nil {
		return fmt.Errorf("active host '%s' is not defined", cfg.ActiveHost)
	}
	return nil
}

/*
FindHost
Return a Host reference that matches the argument, either by name or by its
API base URL.
*/
func (cfg *Config) FindHost(name string) *Host {
	for i := range cfg.Hosts {
		host := &cfg.Hosts[i]
		if host.Name == name {
			return host
		}
	}
	for i := range cfg.Hosts {
		host := &cfg.Hosts[i]
		if strings.TrimRight(host.APIBase, "/") == strings.TrimRight(name, "/") {
			return host
		}
	}
	return nil
}

/*
SelectHost
Return the host to talk to. An explicit name (from a flag or $JSONAPI_HOST)
wins, then the 'host' of the 'main' section, then the only host if there is
exactly one. An explicit name that matches no host is taken as an API base
URL.
*/
func (cfg *Config) SelectHost(name string) (*Host, error) {
	if name != "" {
		host := cfg.FindHost(name)
		if host != nil {
			return host, nil
		}
		host = &Host{Name: name, APIBase: name}
		err := validate.Struct(host)
		if err != nil {
			return nil, fmt.Errorf("unknown host '%s'", name)
		}
		return host, nil
	}
	if cfg.ActiveHost != "" {
		host := cfg.FindHost(cfg.ActiveHost)
		if host == nil {
			return nil, fmt.Errorf("active host '%s' is not defined",
				cfg.ActiveHost)
		}
		return host, nil
	}
	if len(cfg.Hosts) == 1 {
		return &cfg.Hosts[0], nil
	}
	return nil, fmt.Errorf("no host selected among %d configured hosts",
		len(cfg.Hosts))
}

/*
SetHost
Add a host or replace the one with the same name
*/
func (cfg *Config) SetHost(host Host) {
	for i := range cfg.Hosts {
		if cfg.Hosts[i].Name == host.Name {
			cfg.Hosts[i] = host
			return
		}
	}
	cfg.Hosts = append(cfg.Hosts, host)
	cfg.sort()
}

func (cfg *Config) FindType(name string) *Type {
	for i := range cfg.Types {
		resourceType := &cfg.Types[i]
		if resourceType.Name == name {
			return resourceType
		}
	}
	return nil
}

/*
Registry
Build the resource types described by the 'type:' sections
*/
func (cfg *Config) Registry() (*jsonapi.Registry, error) {
	registry, err := jsonapi.NewRegistry()
	if err != nil {
		return nil, err
	}
	for _, resourceType := range cfg.Types {
		built, err := resourceType.Build()
		if err != nil {
			return nil, err
		}
		err = registry.Register(built)
		if err != nil {
			return nil, err
		}
	}
	return registry, nil
}

func (t Type) Build() (*jsonapi.ResourceType, error) {
	builder := jsonapi.DefineType(t.Name).Attributes(t.Attributes...)
	if t.URI != "" {
		builder = builder.URI(t.URI)
	}
	for _, relationship := range t.ToOne {
		builder = builder.ToOne(relationship.Name, relationship.Type)
	}
	for _, relationship := range t.ToMany {
		builder = builder.ToMany(relationship.Name, relationship.Type)
	}
	result, err := builder.BuildE()
	if err != nil {
		return nil, fmt.Errorf("type '%s': %w", t.Name, err)
	}
	return result, nil
}

func (cfg *Config) sort() {
	sort.Slice(cfg.Hosts, func(i, j int) bool {
		return cfg.Hosts[i].Name < cfg.Hosts[j].Name
	})
	sort.Slice(cfg.Types, func(i, j int) bool {
		return cfg.Types[i].Name < cfg.Types[j].Name
	})
}
