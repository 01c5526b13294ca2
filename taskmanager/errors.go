package taskmanager

import "errors"

var (
	// ErrNotFound is returned when an operation references an id that does
	// not exist (after shorthand normalization).
	ErrNotFound = errors.New("taskmanager: task not found")

	// ErrAlreadyExists is returned by operations that must not silently
	// overwrite an existing task.
	ErrAlreadyExists = errors.New("taskmanager: task already exists")

	// ErrMarkdownCorrupt is returned by FromMarkdown when the input does not
	// parse as the defined grammar (see spec.md §6.3).
	ErrMarkdownCorrupt = errors.New("taskmanager: markdown input is not well-formed")
)
