package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/manifoldco/promptui"
	"github.com/transifex/jsonapi-client/pkg/jsonapi"
)

type PushCommandArguments struct {
	Type     string
	File     string
	Prune    bool
	DryRun   bool
	Yes      bool
	Workers  int
	Attempts int
	PageSize int
}

/*
PushCommand makes the server's resources of a type match a file. Items
without an id are created, items with an id update the existing resource if
it differs and, with 'Prune', resources missing from the file are deleted.
All requests run concurrently, bounded by 'Workers'.
*/
func PushCommand(
	ctx context.Context,
	api *jsonapi.Connection,
	arguments PushCommandArguments,
	streams Streams,
) error {
	resourceType := LookupType(api, arguments.Type)
	data, err := os.ReadFile(arguments.File)
	if err != nil {
		return err
	}
	items, err := parsePushFile(data)
	if err != nil {
		return fmt.Errorf("could not parse '%s': %w", arguments.File, err)
	}

	existing, err := fetchAll(ctx, api, resourceType, arguments, streams)
	if err != nil {
		return err
	}
	byId := make(map[string]*jsonapi.Resource, len(existing))
	for _, resource := range existing {
		byId[resource.Id] = resource
	}

	resources := make([]*jsonapi.Resource, 0, len(items))
	pushed := make(map[string]bool)
	for i, item := range items {
		var resource *jsonapi.Resource
		if item.Id == "" {
			resource = api.New(resourceType)
		} else {
			var exists bool
			resource, exists = byId[item.Id]
			if !exists {
				return fmt.Errorf("item %d: %s '%s' does not exist",
					i+1, arguments.Type, item.Id)
			}
			pushed[item.Id] = true
		}
		warnUndeclared(api, resourceType, item.Attributes)
		for name, value := range item.Attributes {
			if resourceType.HasAttribute(name) {
				resource.Set(name, value)
			}
		}
		err = applyLinks(api, resource, item.links())
		if err != nil {
			return fmt.Errorf("item %d: %w", i+1, err)
		}
		resources = append(resources, resource)
	}

	var remove []*jsonapi.Resource
	if arguments.Prune {
		for _, resource := range existing {
			if !pushed[resource.Id] {
				remove = append(remove, resource)
			}
		}
	}

	plan := jsonapi.Partition(resources, remove)
	fmt.Fprintf(streams.Err,
		"%d to create, %d to update, %d unchanged, %d to delete\n",
		len(plan.ToCreate), len(plan.ToUpdate), len(plan.Unchanged),
		len(plan.ToRemove))
	if arguments.DryRun {
		return nil
	}
	if len(plan.ToRemove) > 0 && !arguments.Yes && streams.Interactive {
		label := fmt.Sprintf("Delete %d %s", len(plan.ToRemove), arguments.Type)
		if !confirm(label) {
			fmt.Fprintln(streams.Err, "Push cancelled")
			return nil
		}
	}

	result, err := saveAll(ctx, api, plan, arguments.Workers,
		arguments.Attempts, streams)
	green := color.New(color.FgGreen).SprintFunc()
	fmt.Fprintf(streams.Out, "%s %d created, %d updated, %d deleted\n",
		green("Done:"), len(result.Created), len(result.Updated),
		len(result.Removed))
	return err
}

func fetchAll(
	ctx context.Context,
	api *jsonapi.Connection,
	resourceType *jsonapi.ResourceType,
	arguments PushCommandArguments,
	streams Streams,
) ([]*jsonapi.Resource, error) {
	send := stderrSender(streams)
	var page jsonapi.Collection
	err := handleThrottling(ctx, arguments.Attempts, func() error {
		var err error
		page, err = api.From(resourceType).
			Limit(arguments.PageSize).
			Execute(ctx, "")
		return err
	}, send)
	if err != nil {
		return nil, err
	}
	result := page.Data
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
			return nil, err
		}
		result = append(result, page.Data...)
	}
	return result, nil
}

/*
saveAll runs the plan, showing progress when a user is watching. Operations
that failed because the server throttled them are planned again and retried
after the time the server asked for, at most 'attempts' times in total.
Every other failure is reported once.
*/
func saveAll(
	ctx context.Context,
	api *jsonapi.Connection,
	plan jsonapi.BatchPlan,
	workers int,
	attempts int,
	streams Streams,
) (jsonapi.BatchResult, error) {
	var display *progress
	send := stderrSender(streams)
	if streams.Interactive {
		display = newProgress(streams.Err, 2)
		defer display.stop()
		send = display.sender(1)
	}
	options := jsonapi.BatchOptions{Workers: workers}
	if display != nil {
		status := display.sender(0)
		options.Progress = func(done, total int) {
			status(fmt.Sprintf("Saved %d of %d", done, total))
		}
	}

	var total jsonapi.BatchResult
	var failures []jsonapi.BatchFailure
	remaining := plan
	err := handleThrottling(ctx, attempts, func() error {
		result, err := api.SaveAll(ctx, remaining, options)
		total.Created = append(total.Created, result.Created...)
		total.Updated = append(total.Updated, result.Updated...)
		total.Removed = append(total.Removed, result.Removed...)
		total.Succeeded += result.Succeeded
		if err == nil {
			return nil
		}

		remaining = jsonapi.BatchPlan{}
		var throttled error
		for _, failure := range result.Failures {
			var e *jsonapi.RetryError
			if !errors.As(failure.Err, &e) {
				failures = append(failures, failure)
				continue
			}
			if throttled == nil {
				throttled = failure.Err
			}
			switch failure.Operation {
			case jsonapi.OperationCreate:
				remaining.ToCreate = append(remaining.ToCreate, failure.Resource)
			case jsonapi.OperationUpdate:
				remaining.ToUpdate = append(remaining.ToUpdate, failure.Resource)
			case jsonapi.OperationRemove:
				remaining.ToRemove = append(remaining.ToRemove, failure.Resource)
			}
		}
		if throttled != nil {
			return throttled
		}
		return nil
	}, send)

	// Throttled operations that ran out of attempts
	if err != nil {
		var e *jsonapi.RetryError
		if errors.As(err, &e) {
			for _, resource := range remaining.ToCreate {
				failures = append(failures, jsonapi.BatchFailure{
					Resource: resource, Operation: jsonapi.OperationCreate, Err: err,
				})
			}
			for _, resource := range remaining.ToUpdate {
				failures = append(failures, jsonapi.BatchFailure{
					Resource: resource, Operation: jsonapi.OperationUpdate, Err: err,
				})
			}
			for _, resource := range remaining.ToRemove {
				failures = append(failures, jsonapi.BatchFailure{
					Resource: resource, Operation: jsonapi.OperationRemove, Err: err,
				})
			}
		} else {
			return total, err
		}
	}

	total.Failures = failures
	if len(failures) == 0 {
		return total, nil
	}
	red := color.New(color.FgRed).SprintFunc()
	for _, failure := range failures {
		fmt.Fprintln(streams.Err, red(failure.Err))
	}
	return total, &jsonapi.BatchError{
		Failures: failures,
		Total:    total.Succeeded + len(failures),
	}
}

var confirm = func(label string) bool {
	prompt := promptui.Prompt{
		Label:     label,
		IsConfirm: true,
	}
	_, err := prompt.Run()
	return err == nil
}
