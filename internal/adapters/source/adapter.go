package source

import (
	"context"

	"logrep/internal/core/dayobs"
)

// Adapter is the capability set every upstream service implements. New
// performs no I/O; Fetch does all of it and returns only configuration errors
// and upstream query errors. Transport and HTTP failures land in Status
type Adapter interface {
	Name() string
	Fetch(ctx context.Context, w dayobs.Window) error
	Status() StatusMap
}
