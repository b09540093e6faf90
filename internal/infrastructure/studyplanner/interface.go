package studyplanner

import (
	"context"
)

// ClientInterface defines the calls the sync adapter makes to the provider
type ClientInterface interface {
	Pull(ctx context.Context, creds Credentials) (*PullData, error)
	Push(ctx context.Context, creds Credentials, payload PushPayload) (*PushResponse, error)
}
