package google

import (
	"context"
	"fmt"

	"google.golang.org/api/option"
	"google.golang.org/api/tasks/v1"

	"github.com/harrisonrobin/tasklink/pkg/auth"
)

// TasksDialer builds per-credential Google Tasks clients. Base options, such
// as an endpoint override, apply to every client it builds.
type TasksDialer struct {
	opts []option.ClientOption
}

func NewTasksDialer(opts ...option.ClientOption) *TasksDialer {
	return &TasksDialer{opts: opts}
}

// Dial returns a client that authenticates every call with cred.
func (d *TasksDialer) Dial(ctx context.Context, cred auth.Credential) (*TasksClient, error) {
	if cred.AccessToken == "" {
		return nil, fmt.Errorf("dial tasks service: empty access token")
	}
	opts := append([]option.ClientOption{option.WithTokenSource(cred.TokenSource())}, d.opts...)
	srv, err := tasks.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create Tasks service: %w", err)
	}
	return NewTasksClient(srv), nil
}
