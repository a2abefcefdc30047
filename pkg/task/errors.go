package task

import "fmt"

// ConfigurationError indicates a task was constructed with invalid settings.
type ConfigurationError struct {
	ID     ID
	Reason string
}

// Error implements error.
func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("task %d: %s", e.ID, e.Reason)
}

// DuplicateTaskError indicates the task ID is already taken.
type DuplicateTaskError struct {
	ID ID
}

// Error implements error.
func (e *DuplicateTaskError) Error() string {
	return fmt.Sprintf("task %d has already been registered", e.ID)
}
