package config

import "fmt"

// Error reports a malformed pipeline document. It is fatal before any pool
// starts.
type Error struct {
	Task   string
	Reason string
}

func (e *Error) Error() string {
	if e.Task == "" {
		return "invalid pipeline config: " + e.Reason
	}
	return fmt.Sprintf("invalid config for task %q: %s", e.Task, e.Reason)
}

// Errorf builds a config Error scoped to a task. An empty task name scopes
// the error to the document as a whole.
func Errorf(task, format string, args ...any) *Error {
	return &Error{Task: task, Reason: fmt.Sprintf(format, args...)}
}

// DuplicateNameError reports two tasks declared with the same name.
type DuplicateNameError struct {
	Name string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("duplicate task name %q", e.Name)
}

// UnknownPredecessorError reports a prev_task reference that does not resolve
// to an earlier-declared task.
type UnknownPredecessorError struct {
	Task string
	Prev string
}

func (e *UnknownPredecessorError) Error() string {
	return fmt.Sprintf("task %q references unknown predecessor %q (predecessors must be declared earlier in the task list)", e.Task, e.Prev)
}
