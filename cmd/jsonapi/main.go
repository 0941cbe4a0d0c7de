package main

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/transifex/jsonapi-client/internal/cli"
	"github.com/transifex/jsonapi-client/internal/config"
	"github.com/transifex/jsonapi-client/pkg/jsonapi"
	urfave "github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

var errorColor = color.New(color.FgRed).SprintfFunc()

func main() {
	urfave.VersionPrinter = func(c *urfave.Context) {
		fmt.Println("jsonapi client, version=" + c.App.Version)
	}
	flags := []urfave.Flag{
		&urfave.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Load configuration from `FILE`",
			EnvVars: []string{"JSONAPI_CONFIG"},
		},
		&urfave.StringFlag{
			Name:    "host",
			Aliases: []string{"H"},
			Usage:   "The configured host, or an API base URL, to talk to",
			EnvVars: []string{"JSONAPI_HOST"},
		},
		&urfave.StringFlag{
			Name:    "token",
			Aliases: []string{"t"},
			Usage:   "The api token to use",
			EnvVars: []string{"JSONAPI_TOKEN"},
		},
		&urfave.StringFlag{
			Name:    "cacert",
			Usage:   "Path to CA certificate bundle file",
			EnvVars: []string{"JSONAPI_CACERT"},
		},
		&urfave.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output format, 'json' or 'yaml'",
			Value:   cli.FormatJSON,
		},
		&urfave.IntFlag{
			Name:  "attempts",
			Usage: "How many times to try a request the server throttled",
			Value: 3,
		},
		&urfave.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "Log every request",
		},
	}
	streams := cli.Streams{
		Out:         os.Stdout,
		Err:         os.Stderr,
		Interactive: isatty.IsTerminal(os.Stdin.Fd()),
	}

	app := &urfave.App{
		Name:                   "jsonapi",
		Usage:                  "Read and write the resources of a {json:api} server",
		Version:                cli.Version,
		UseShortOptionHandling: true,
		Commands: []*urfave.Command{
			{
				Name:      "get",
				Usage:     "jsonapi get [options] TYPE ID",
				ArgsUsage: "TYPE ID",
				Flags: []urfave.Flag{
					&urfave.StringFlag{
						Name:  "fields",
						Usage: "Comma separated attributes to fetch",
					},
					&urfave.StringFlag{
						Name:  "include",
						Usage: "Comma separated relationships to include",
					},
				},
				Action: func(c *urfave.Context) error {
					if c.Args().Len() != 2 {
						return urfave.Exit(errorColor("Please provide a type and an id"), 1)
					}
					api, logger, err := connect(c)
					if err != nil {
						return err
					}
					defer logger.Sync()

					err = cli.GetCommand(c.Context, api, cli.GetCommandArguments{
						Type:     c.Args().Get(0),
						Id:       c.Args().Get(1),
						Fields:   splitList(c.String("fields")),
						Include:  splitList(c.String("include")),
						Format:   c.String("output"),
						Attempts: c.Int("attempts"),
					}, streams)
					if err != nil {
						return urfave.Exit(errorColor(fmt.Sprint(err)), 1)
					}
					return nil
				},
			},
			{
				Name:      "list",
				Aliases:   []string{"ls"},
				Usage:     "jsonapi list [options] TYPE",
				ArgsUsage: "TYPE",
				Flags: []urfave.Flag{
					&urfave.StringFlag{
						Name:  "fields",
						Usage: "Comma separated attributes to fetch",
					},
					&urfave.StringFlag{
						Name:  "include",
						Usage: "Comma separated relationships to include",
					},
					&urfave.StringFlag{
						Name:  "sort",
						Usage: "Comma separated attributes to sort by; prefix with '-' for descending order",
					},
					&urfave.StringSliceFlag{
						Name:    "filter",
						Aliases: []string{"f"},
						Usage:   "Filter as 'key=value'; use '__' for operators, like 'age__gt=15'",
					},
					&urfave.IntFlag{
						Name:  "limit",
						Usage: "Page size",
					},
					&urfave.IntFlag{
						Name:  "page",
						Usage: "Page number",
					},
					&urfave.BoolFlag{
						Name:  "all",
						Usage: "Follow the 'next' links until the last page",
					},
				},
				Action: func(c *urfave.Context) error {
					if c.Args().Len() != 1 {
						return urfave.Exit(errorColor("Please provide a type"), 1)
					}
					api, logger, err := connect(c)
					if err != nil {
						return err
					}
					defer logger.Sync()

					err = cli.ListCommand(c.Context, api, cli.ListCommandArguments{
						Type:     c.Args().First(),
						Fields:   splitList(c.String("fields")),
						Include:  splitList(c.String("include")),
						Sort:     splitList(c.String("sort")),
						Filters:  c.StringSlice("filter"),
						Limit:    c.Int("limit"),
						Page:     c.Int("page"),
						All:      c.Bool("all"),
						Format:   c.String("output"),
						Attempts: c.Int("attempts"),
					}, streams)
					if err != nil {
						return urfave.Exit(errorColor(fmt.Sprint(err)), 1)
					}
					return nil
				},
			},
			{
				Name:      "create",
				Usage:     "jsonapi create [options] TYPE",
				ArgsUsage: "TYPE",
				Flags:     changeFlags(),
				Action: func(c *urfave.Context) error {
					if c.Args().Len() != 1 {
						return urfave.Exit(errorColor("Please provide a type"), 1)
					}
					api, logger, err := connect(c)
					if err != nil {
						return err
					}
					defer logger.Sync()

					err = cli.CreateCommand(c.Context, api, cli.CreateCommandArguments{
						Type:       c.Args().First(),
						Attributes: c.StringSlice("set"),
						Links:      c.StringSlice("link"),
						Format:     c.String("output"),
					}, streams)
					if err != nil {
						return urfave.Exit(errorColor(fmt.Sprint(err)), 1)
					}
					return nil
				},
			},
			{
				Name:      "update",
				Usage:     "jsonapi update [options] TYPE ID",
				ArgsUsage: "TYPE ID",
				Flags:     changeFlags(),
				Action: func(c *urfave.Context) error {
					if c.Args().Len() != 2 {
						return urfave.Exit(errorColor("Please provide a type and an id"), 1)
					}
					api, logger, err := connect(c)
					if err != nil {
						return err
					}
					defer logger.Sync()

					err = cli.UpdateCommand(c.Context, api, cli.UpdateCommandArguments{
						Type:       c.Args().Get(0),
						Id:         c.Args().Get(1),
						Attributes: c.StringSlice("set"),
						Links:      c.StringSlice("link"),
						Format:     c.String("output"),
					}, streams)
					if err != nil {
						return urfave.Exit(errorColor(fmt.Sprint(err)), 1)
					}
					return nil
				},
			},
			{
				Name:      "delete",
				Usage:     "jsonapi delete [options] TYPE ID...",
				ArgsUsage: "TYPE ID...",
				Flags: []urfave.Flag{
					&urfave.BoolFlag{
						Name:    "yes",
						Aliases: []string{"y"},
						Usage:   "Do not ask for confirmation",
					},
					&urfave.IntFlag{
						Name:    "workers",
						Aliases: []string{"w"},
						Usage:   "How many requests to run at once",
					},
				},
				Action: func(c *urfave.Context) error {
					if c.Args().Len() < 2 {
						return urfave.Exit(
							errorColor("Please provide a type and at least one id"), 1,
						)
					}
					api, host, logger, err := connectToHost(c)
					if err != nil {
						return err
					}
					defer logger.Sync()

					err = cli.DeleteCommand(c.Context, api, cli.DeleteCommandArguments{
						Type:    c.Args().First(),
						Ids:     c.Args().Tail(),
						Yes:     c.Bool("yes"),
						Workers: workers(c, host),
					}, streams)
					if err != nil {
						return urfave.Exit(errorColor(fmt.Sprint(err)), 1)
					}
					return nil
				},
			},
			{
				Name:      "push",
				Usage:     "jsonapi push [options] TYPE FILE",
				ArgsUsage: "TYPE FILE",
				Description: "Make the server's resources of TYPE match FILE, a " +
					"YAML or JSON list of items with an optional 'id', " +
					"'attributes' and 'relationships'.",
				Flags: []urfave.Flag{
					&urfave.BoolFlag{
						Name:  "prune",
						Usage: "Delete the resources missing from the file",
					},
					&urfave.BoolFlag{
						Name:  "dry-run",
						Usage: "Only show what would change",
					},
					&urfave.BoolFlag{
						Name:    "yes",
						Aliases: []string{"y"},
						Usage:   "Do not ask for confirmation",
					},
					&urfave.IntFlag{
						Name:    "workers",
						Aliases: []string{"w"},
						Usage:   "How many requests to run at once",
					},
					&urfave.IntFlag{
						Name:  "page-size",
						Usage: "Page size used to fetch the existing resources",
						Value: 100,
					},
				},
				Action: func(c *urfave.Context) error {
					if c.Args().Len() != 2 {
						return urfave.Exit(errorColor("Please provide a type and a file"), 1)
					}
					api, host, logger, err := connectToHost(c)
					if err != nil {
						return err
					}
					defer logger.Sync()

					err = cli.PushCommand(c.Context, api, cli.PushCommandArguments{
						Type:     c.Args().Get(0),
						File:     c.Args().Get(1),
						Prune:    c.Bool("prune"),
						DryRun:   c.Bool("dry-run"),
						Yes:      c.Bool("yes"),
						Workers:  workers(c, host),
						Attempts: c.Int("attempts"),
						PageSize: c.Int("page-size"),
					}, streams)
					if err != nil {
						return urfave.Exit(errorColor(fmt.Sprint(err)), 1)
					}
					return nil
				},
			},
			{
				Name:      "login",
				Usage:     "jsonapi login [options] NAME",
				ArgsUsage: "NAME",
				Flags: []urfave.Flag{
					&urfave.StringFlag{
						Name:     "api-base",
						Usage:    "The API base URL of the host",
						Required: true,
					},
					&urfave.IntFlag{
						Name:  "workers",
						Usage: "Default number of concurrent requests",
					},
					&urfave.Float64Flag{
						Name:  "requests-per-second",
						Usage: "Client side rate limit; 0 means none",
					},
					&urfave.BoolFlag{
						Name:  "activate",
						Usage: "Make this the active host",
					},
				},
				Action: func(c *urfave.Context) error {
					if c.Args().Len() != 1 {
						return urfave.Exit(errorColor("Please provide a host name"), 1)
					}
					err := cli.LoginCommand(cli.LoginCommandArguments{
						ConfigPath:        c.String("config"),
						Name:              c.Args().First(),
						APIBase:           c.String("api-base"),
						Token:             c.String("token"),
						Workers:           c.Int("workers"),
						RequestsPerSecond: c.Float64("requests-per-second"),
						Activate:          c.Bool("activate"),
					}, streams)
					if err != nil {
						return urfave.Exit(errorColor(fmt.Sprint(err)), 1)
					}
					return nil
				},
			},
			{
				Name:  "types",
				Usage: "Show the configured resource types",
				Action: func(c *urfave.Context) error {
					err := cli.TypesCommand(c.String("config"), c.String("output"), streams)
					if err != nil {
						return urfave.Exit(errorColor(fmt.Sprint(err)), 1)
					}
					return nil
				},
			},
		},
		Flags: flags,
	}

	err := app.Run(os.Args)
	if err != nil {
		log.Fatal(err)
	}
}

func changeFlags() []urfave.Flag {
	return []urfave.Flag{
		&urfave.StringSliceFlag{
			Name:    "set",
			Aliases: []string{"s"},
			Usage:   "Attribute as 'name=value'; values are read as YAML",
		},
		&urfave.StringSliceFlag{
			Name:    "link",
			Aliases: []string{"l"},
			Usage:   "Relationship as 'name=id[,id...]'; an empty list clears it",
		},
	}
}

func connect(c *urfave.Context) (*jsonapi.Connection, *zap.Logger, error) {
	api, _, logger, err := connectToHost(c)
	return api, logger, err
}

func connectToHost(
	c *urfave.Context,
) (*jsonapi.Connection, *config.Host, *zap.Logger, error) {
	logger, err := cli.NewLogger(c.Bool("verbose"))
	if err != nil {
		return nil, nil, nil, urfave.Exit(err, 1)
	}
	api, _, host, err := cli.NewConnection(cli.ConnectionOptions{
		ConfigPath: c.String("config"),
		Host:       c.String("host"),
		Token:      c.String("token"),
		CACert:     c.String("cacert"),
		Logger:     logger,
	})
	if err != nil {
		return nil, nil, nil, urfave.Exit(
			errorColor("Error loading configuration: %s", err), 1,
		)
	}
	return api, host, logger, nil
}

// The flag wins over the host's setting
func workers(c *urfave.Context, host *config.Host) int {
	if c.IsSet("workers") {
		return c.Int("workers")
	}
	return host.Workers
}

func splitList(value string) []string {
	if value == "" {
		return nil
	}
	var result []string
	for _, item := range strings.Split(value, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			result = append(result, item)
		}
	}
	return result
}
