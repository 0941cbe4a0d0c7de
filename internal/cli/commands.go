package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/transifex/jsonapi-client/pkg/jsonapi"
	"go.uber.org/zap"
)

var Version = "0.1.0"

/*
Streams is where commands write. Results go to Out, progress and
diagnostics to Err. Interactive tells whether a user is there to answer
prompts and watch progress.
*/
type Streams struct {
	Out         io.Writer
	Err         io.Writer
	Interactive bool
}

type GetCommandArguments struct {
	Type     string
	Id       string
	Fields   []string
	Include  []string
	Format   string
	Attempts int
}

func GetCommand(
	ctx context.Context,
	api *jsonapi.Connection,
	arguments GetCommandArguments,
	streams Streams,
) error {
	resourceType := LookupType(api, arguments.Type)
	query := api.From(resourceType).
		Fields(arguments.Fields...).
		Include(arguments.Include...)

	var resource *jsonapi.Resource
	err := handleThrottling(ctx, arguments.Attempts, func() error {
		var err error
		resource, err = query.First(ctx, arguments.Id)
		return err
	}, stderrSender(streams))
	if err != nil {
		return err
	}
	if resource == nil {
		return fmt.Errorf("%s '%s' not found", arguments.Type, arguments.Id)
	}
	if resource.Redirect != "" {
		fmt.Fprintf(streams.Err, "%s '%s' moved to %s\n",
			arguments.Type, arguments.Id, resource.Redirect)
	}
	return printResource(streams.Out, arguments.Format, resource)
}

type ListCommandArguments struct {
	Type     string
	Fields   []string
	Include  []string
	Sort     []string
	Filters  []string
	Limit    int
	Page     int
	All      bool
	Format   string
	Attempts int
}

func ListCommand(
	ctx context.Context,
	api *jsonapi.Connection,
	arguments ListCommandArguments,
	streams Streams,
) error {
	resourceType := LookupType(api, arguments.Type)
	filters, err := parsePairs(arguments.Filters)
	if err != nil {
		return err
	}
	query := api.From(resourceType).
		Fields(arguments.Fields...).
		Include(arguments.Include...).
		SortBy(arguments.Sort...).
		Limit(arguments.Limit).
		Page(arguments.Page)
	for _, filter := range filters {
		query = query.FilterBy(filter[0], filter[1])
	}

	send := stderrSender(streams)
	var page jsonapi.Collection
	err = handleThrottling(ctx, arguments.Attempts, func() error {
		var err error
		page, err = query.Execute(ctx, "")
		return err
	}, send)
	if err != nil {
		return err
	}

	if arguments.All {
		result := page
		for page.Next != "" {
			err = handleThrottling(ctx, arguments.Attempts, func() error {
				next, err := page.GetNext(ctx)
				if err != nil {
					return err
				}
				page = next
				return nil
			}, send)
			if err != nil {
				return err
			}
			result.Data = append(result.Data, page.Data...)
		}
		result.Next = ""
		page = result
	}
	return printCollection(streams.Out, arguments.Format, page)
}

type CreateCommandArguments struct {
	Type       string
	Attributes []string
	Links      []string
	Format     string
}

func CreateCommand(
	ctx context.Context,
	api *jsonapi.Connection,
	arguments CreateCommandArguments,
	streams Streams,
) error {
	resourceType := LookupType(api, arguments.Type)
	attributes, err := parseAssignments(arguments.Attributes)
	if err != nil {
		return err
	}
	links, err := parseLinks(arguments.Links)
	if err != nil {
		return err
	}

	resource, err := api.NewWith(resourceType, jsonapi.PayloadResource{
		Attributes: attributes,
	})
	if err != nil {
		return err
	}
	warnUndeclared(api, resourceType, attributes)
	err = applyLinks(api, resource, links)
	if err != nil {
		return err
	}
	err = resource.Save(ctx)
	if err != nil {
		return err
	}
	return printResource(streams.Out, arguments.Format, resource)
}

type UpdateCommandArguments struct {
	Type       string
	Id         string
	Attributes []string
	Links      []string
	Format     string
}

/*
UpdateCommand fetches the resource, applies the changes and saves it. Only
the attributes that end up different from the server's values are sent.
*/
func UpdateCommand(
	ctx context.Context,
	api *jsonapi.Connection,
	arguments UpdateCommandArguments,
	streams Streams,
) error {
	resourceType := LookupType(api, arguments.Type)
	attributes, err := parseAssignments(arguments.Attributes)
	if err != nil {
		return err
	}
	links, err := parseLinks(arguments.Links)
	if err != nil {
		return err
	}

	resource, err := api.Get(ctx, resourceType, arguments.Id)
	if err != nil {
		return err
	}
	if resource == nil {
		return fmt.Errorf("%s '%s' not found", arguments.Type, arguments.Id)
	}
	for name, value := range attributes {
		resource.Set(name, value)
	}
	err = applyLinks(api, resource, links)
	if err != nil {
		return err
	}
	if !resource.IsDirty() && len(links) == 0 {
		fmt.Fprintln(streams.Err, "Nothing to update")
	}
	err = resource.Save(ctx)
	if err != nil {
		return err
	}
	return printResource(streams.Out, arguments.Format, resource)
}

type DeleteCommandArguments struct {
	Type    string
	Ids     []string
	Yes     bool
	Workers int
}

func DeleteCommand(
	ctx context.Context,
	api *jsonapi.Connection,
	arguments DeleteCommandArguments,
	streams Streams,
) error {
	resourceType := LookupType(api, arguments.Type)
	var plan jsonapi.BatchPlan
	for _, id := range arguments.Ids {
		resource, err := api.NewWith(resourceType, jsonapi.PayloadResource{Id: id})
		if err != nil {
			return err
		}
		plan.ToRemove = append(plan.ToRemove, resource)
	}
	if len(plan.ToRemove) == 0 {
		return fmt.Errorf("no ids given")
	}

	label := fmt.Sprintf("Delete %d %s", len(plan.ToRemove), arguments.Type)
	if !arguments.Yes && streams.Interactive && !confirm(label) {
		fmt.Fprintln(streams.Err, "Delete cancelled")
		return nil
	}

	result, err := saveAll(ctx, api, plan, arguments.Workers, 1, streams)
	green := color.New(color.FgGreen).SprintFunc()
	for _, resource := range result.Removed {
		fmt.Fprintf(streams.Out, "%s %s '%s'\n",
			green("Deleted"), arguments.Type, resource.Id)
	}
	return err
}

func stderrSender(streams Streams) func(string) {
	return func(line string) {
		fmt.Fprintln(streams.Err, line)
	}
}

func warnUndeclared(
	api *jsonapi.Connection,
	resourceType *jsonapi.ResourceType,
	attributes map[string]interface{},
) {
	for name := range attributes {
		if !resourceType.HasAttribute(name) {
			logger(api).Warn("ignoring undeclared attribute",
				zap.String("type", resourceType.Name()),
				zap.String("attribute", name))
		}
	}
}
