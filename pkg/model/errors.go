package model

import "errors"

var (
	ErrUnauthenticated  = errors.New("unauthenticated")
	ErrPermissionDenied = errors.New("permission denied")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrNotLinked        = errors.New("project is not linked to an external task list")
	ErrNotFound         = errors.New("not found")
	ErrSyncInProgress   = errors.New("another sync of this project is in progress")
)
