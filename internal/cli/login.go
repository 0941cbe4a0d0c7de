package cli

import (
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/manifoldco/promptui"
	"github.com/transifex/jsonapi-client/internal/config"
	"github.com/transifex/jsonapi-client/pkg/jsonapi"
)

type LoginCommandArguments struct {
	ConfigPath        string
	Name              string
	APIBase           string
	Token             string
	Workers           int
	RequestsPerSecond float64
	Activate          bool
}

var promptToken = func() (string, error) {
	prompt := promptui.Prompt{
		Label: "API token",
		Mask:  '*',
		Validate: func(input string) error {
			if input == "" {
				return errors.New("the token cannot be empty")
			}
			return nil
		},
	}
	return prompt.Run()
}

/*
LoginCommand saves a host, and its token, in the configuration file. The
first host saved becomes the active one.
*/
func LoginCommand(arguments LoginCommandArguments, streams Streams) error {
	cfg, err := config.LoadFromPath(arguments.ConfigPath)
	if err != nil {
		return err
	}

	token := arguments.Token
	if token == "" {
		if !streams.Interactive {
			return errors.New("no token given")
		}
		token, err = promptToken()
		if err != nil {
			return err
		}
	}

	cfg.SetHost(config.Host{
		Name:              arguments.Name,
		APIBase:           arguments.APIBase,
		Token:             token,
		Workers:           arguments.Workers,
		RequestsPerSecond: arguments.RequestsPerSecond,
	})
	if arguments.Activate || cfg.ActiveHost == "" {
		cfg.ActiveHost = arguments.Name
	}
	err = cfg.Save()
	if err != nil {
		return err
	}

	green := color.New(color.FgGreen).SprintFunc()
	fmt.Fprintf(streams.Out, "%s host '%s' in '%s'\n",
		green("Saved"), arguments.Name, cfg.Path)
	return nil
}

type typeOutput struct {
	Name          string            `json:"name" yaml:"name"`
	URI           string            `json:"uri" yaml:"uri"`
	Attributes    []string          `json:"attributes" yaml:"attributes"`
	Relationships map[string]string `json:"relationships,omitempty" yaml:"relationships,omitempty"`
}

// TypesCommand prints the resource types of the configuration
func TypesCommand(configPath, format string, streams Streams) error {
	cfg, err := config.LoadFromPath(configPath)
	if err != nil {
		return err
	}
	registry, err := cfg.Registry()
	if err != nil {
		return err
	}

	result := make([]typeOutput, 0)
	for _, name := range registry.Names() {
		resourceType, _ := registry.Lookup(name)
		output := typeOutput{
			Name:       resourceType.Name(),
			URI:        resourceType.URI(),
			Attributes: resourceType.AttributeNames(),
		}
		for _, relationship := range resourceType.Relationships() {
			if output.Relationships == nil {
				output.Relationships = make(map[string]string)
			}
			target := relationship.Type
			if relationship.Multiplicity == jsonapi.PLURAL {
				target = "[]" + target
			}
			output.Relationships[relationship.Name] = target
		}
		result = append(result, output)
	}
	return encode(streams.Out, format, result)
}
