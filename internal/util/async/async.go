package async

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Task represents an asynchronous operation with a name and function.
type Task struct {
	Name string
	Func func(context.Context) error
}

// TaskError records which task failed.
type TaskError struct {
	Name string
	Err  error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("%s: %v", e.Name, e.Err)
}

func (e *TaskError) Unwrap() error {
	return e.Err
}

// RunParallel executes tasks with at most limit running at once and waits for
// all of them. A limit <= 0 runs every task concurrently. Errors from all
// failing tasks are returned joined, each wrapped in a *TaskError.
//
// Example:
//
//	tasks := []Task{
//	    {Name: "standalone-v5", Func: deployStandalone},
//	    {Name: "cluster-v5", Func: deployCluster},
//	}
//	if err := RunParallel(ctx, 4, tasks); err != nil {
//	    return err
//	}
func RunParallel(ctx context.Context, limit int, tasks []Task) error {
	if len(tasks) == 0 {
		return nil
	}

	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}

	var (
		mu   sync.Mutex
		errs []error
	)

	for _, task := range tasks {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				mu.Lock()
				errs = append(errs, &TaskError{Name: task.Name, Err: err})
				mu.Unlock()
				return nil
			}
			if err := task.Func(ctx); err != nil {
				mu.Lock()
				errs = append(errs, &TaskError{Name: task.Name, Err: err})
				mu.Unlock()
			}
			return nil
		})
	}

	_ = g.Wait()
	return errors.Join(errs...)
}

// ForEach runs fn for every item with bounded concurrency and collects every
// error. Task names are produced by name.
func ForEach[T any](ctx context.Context, limit int, items []T, name func(T) string, fn func(context.Context, T) error) error {
	tasks := make([]Task, 0, len(items))
	for _, item := range items {
		tasks = append(tasks, Task{
			Name: name(item),
			Func: func(ctx context.Context) error { return fn(ctx, item) },
		})
	}
	return RunParallel(ctx, limit, tasks)
}

// FailedTasks returns the names of the tasks whose errors are joined in err.
func FailedTasks(err error) []string {
	if err == nil {
		return nil
	}
	var names []string
	var walk func(error)
	walk = func(e error) {
		if joined, ok := e.(interface{ Unwrap() []error }); ok {
			for _, inner := range joined.Unwrap() {
				walk(inner)
			}
			return
		}
		var te *TaskError
		if errors.As(e, &te) {
			names = append(names, te.Name)
		}
	}
	walk(err)
	return names
}
