package domain

import "errors"

var (
	ErrNotFound             = errors.New("not found")
	ErrNoDueCancellations   = errors.New("no due cancellations")
	ErrServerConfigNotFound = errors.New("server config not found")
)
