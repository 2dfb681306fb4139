package errors

import "errors"

var (
	ErrConstructIDRequired    = errors.New("construct id is required")
	ErrDuplicateConstructID   = errors.New("duplicate construct id within scope")
	ErrStackNameRequired      = errors.New("stack name is required")
	ErrNoEnclosingStack       = errors.New("construct is not attached to a stack")
	ErrRepositoryNameRequired = errors.New("repository name is required")
	ErrBuildspecFileRequired  = errors.New("buildspec file is required")
	ErrStackNotFound          = errors.New("stack not found")
)
