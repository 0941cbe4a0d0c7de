package jsonapi

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

const (
	OperationCreate = "create"
	OperationUpdate = "update"
	OperationRemove = "remove"
)

// BatchPlan groups resources by what saving them involves
type BatchPlan struct {
	ToCreate  []*Resource
	ToUpdate  []*Resource
	Unchanged []*Resource
	ToRemove  []*Resource
}

/*
Partition sorts 'resources' into the ones to create (no id), the ones to
update (dirty, with an id) and the unchanged ones. Resources to remove are
never inferred; they are passed separately.
*/
func Partition(resources []*Resource, remove []*Resource) BatchPlan {
	var plan BatchPlan
	for _, resource := range resources {
		switch {
		case resource == nil:
		case resource.IsNew():
			plan.ToCreate = append(plan.ToCreate, resource)
		case resource.IsDirty() || resource.relationshipsChanged():
			plan.ToUpdate = append(plan.ToUpdate, resource)
		default:
			plan.Unchanged = append(plan.Unchanged, resource)
		}
	}
	for _, resource := range remove {
		if resource != nil {
			plan.ToRemove = append(plan.ToRemove, resource)
		}
	}
	return plan
}

type BatchOptions struct {
	// Maximum number of requests in flight; 0 means no limit
	Workers int

	// Called after each operation finishes, from the goroutine that ran it
	Progress func(done, total int)
}

type BatchFailure struct {
	Resource  *Resource
	Operation string
	Err       error
}

type BatchResult struct {
	Created   []*Resource
	Updated   []*Resource
	Removed   []*Resource
	Failures  []BatchFailure
	Succeeded int
}

/*
BatchError is returned by SaveAll when some operations failed. The others
went through and their resources are synchronized, so callers can tell what
was persisted from the BatchResult. errors.As/Is reach the first failure.
*/
type BatchError struct {
	Failures []BatchFailure
	Total    int
}

func (e *BatchError) Error() string {
	if len(e.Failures) == 0 {
		return fmt.Sprintf("0 of %d batch operations failed", e.Total)
	}
	return fmt.Sprintf("%d of %d batch operations failed, first: %s",
		len(e.Failures), e.Total, e.Failures[0].Err)
}

func (e *BatchError) Unwrap() error {
	if len(e.Failures) == 0 {
		return nil
	}
	return e.Failures[0].Err
}

type batchTask struct {
	operation string
	resource  *Resource
}

func (task batchTask) run(ctx context.Context) error {
	if task.operation == OperationRemove {
		return task.resource.Delete(ctx)
	}
	return task.resource.save(ctx, nil, nil)
}

/*
batchDependencies returns, for every task, the create tasks whose resources
sit in its relationship slots. Those have to be saved first: the dependent
needs their ids to link them and reads them while syncing its own response.
*/
func batchDependencies(tasks []batchTask) [][]int {
	creates := make(map[*Resource]int)
	for i, task := range tasks {
		if task.operation == OperationCreate {
			creates[task.resource] = i
		}
	}
	dependencies := make([][]int, len(tasks))
	for i, task := range tasks {
		if task.operation == OperationRemove {
			continue
		}
		seen := make(map[int]bool)
		for _, relationship := range task.resource.Type.relationships {
			for _, member := range task.resource.relationships[relationship.Name] {
				j, exists := creates[member]
				if !exists || j == i || seen[j] {
					continue
				}
				seen[j] = true
				dependencies[i] = append(dependencies[i], j)
			}
		}
	}
	return dependencies
}

/*
batchWaves groups the tasks so that each one comes after its dependencies.
Tasks of the same wave do not touch each other and can run concurrently.
Dependency cycles are broken at the point where they are found; one of the
links of such a cycle cannot be sent.
*/
func batchWaves(dependencies [][]int) [][]int {
	const (
		unvisited = iota
		visiting
		visited
	)
	state := make([]int, len(dependencies))
	levels := make([]int, len(dependencies))
	var visit func(i int) int
	visit = func(i int) int {
		switch state[i] {
		case visiting:
			return -1
		case visited:
			return levels[i]
		}
		state[i] = visiting
		level := 0
		for _, j := range dependencies[i] {
			if dependencyLevel := visit(j); dependencyLevel+1 > level {
				level = dependencyLevel + 1
			}
		}
		state[i] = visited
		levels[i] = level
		return level
	}

	var waves [][]int
	for i := range dependencies {
		level := visit(i)
		for len(waves) <= level {
			waves = append(waves, nil)
		}
		waves[level] = append(waves[level], i)
	}
	return waves
}

/*
SaveAll runs one request per resource in the plan (POST for ToCreate, PATCH
for ToUpdate, DELETE for ToRemove) concurrently and waits for all of them.
Each resource is serialized exactly as Save would, except that related
resources are not saved along with it. Every successful resource is
synchronized with its own response.

Resources that link to new resources of the same plan are saved after them,
so that the links carry the assigned ids. When such a creation fails, the
resources depending on it fail too, without a request.
*/
func (c *Connection) SaveAll(
	ctx context.Context, plan BatchPlan, options BatchOptions,
) (BatchResult, error) {
	tasks := make([]batchTask, 0,
		len(plan.ToCreate)+len(plan.ToUpdate)+len(plan.ToRemove))
	for _, resource := range plan.ToCreate {
		tasks = append(tasks, batchTask{OperationCreate, resource})
	}
	for _, resource := range plan.ToUpdate {
		tasks = append(tasks, batchTask{OperationUpdate, resource})
	}
	for _, resource := range plan.ToRemove {
		tasks = append(tasks, batchTask{OperationRemove, resource})
	}
	dependencies := batchDependencies(tasks)

	failures := make([]error, len(tasks))
	var mu sync.Mutex
	done := 0
	failed := false

	for _, wave := range batchWaves(dependencies) {
		var group errgroup.Group
		if options.Workers > 0 {
			group.SetLimit(options.Workers)
		}
		for _, i := range wave {
			i := i
			task := tasks[i]
			// Earlier waves are over, their outcome can be read without locking
			var blocked error
			for _, j := range dependencies[i] {
				if failures[j] != nil {
					blocked = fmt.Errorf("related %s was not created",
						tasks[j].resource.Type.Name())
					break
				}
			}
			group.Go(func() error {
				err := blocked
				if err == nil {
					err = task.run(ctx)
				}
				if err != nil {
					err = fmt.Errorf("could not %s %s '%s': %w", task.operation,
						task.resource.Type.Name(), task.resource.Id, err)
				}

				mu.Lock()
				failures[i] = err
				done++
				current := done
				mu.Unlock()

				if options.Progress != nil {
					options.Progress(current, len(tasks))
				}
				return err
			})
		}
		if group.Wait() != nil {
			failed = true
		}
	}

	var result BatchResult
	for i, task := range tasks {
		if failures[i] != nil {
			result.Failures = append(result.Failures, BatchFailure{
				Resource:  task.resource,
				Operation: task.operation,
				Err:       failures[i],
			})
			continue
		}
		result.Succeeded++
		switch task.operation {
		case OperationCreate:
			result.Created = append(result.Created, task.resource)
		case OperationUpdate:
			result.Updated = append(result.Updated, task.resource)
		case OperationRemove:
			result.Removed = append(result.Removed, task.resource)
		}
	}

	if failed {
		return result, &BatchError{
			Failures: result.Failures,
			Total:    len(tasks),
		}
	}
	return result, nil
}
