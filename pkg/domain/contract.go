package domain

import (
	"context"
)

// Contract is what the reactor daemon offers to its callers: the condition
// layer invokes actions, operators query status.
type Contract interface {
	Status(ctx context.Context) (string, error)
	Invoke(ctx context.Context, action string, payload string) (bool, error)
}
