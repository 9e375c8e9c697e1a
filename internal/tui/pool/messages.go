package pool

import "github.com/elsanchez/imagine-gateway/pkg/client"

// Message types for async operations

type statusLoadedMsg struct {
	status *client.StatusResponse
	err    error
}

type reloadCompleteMsg struct {
	count int
	err   error
}

type resetUsageCompleteMsg struct {
	err error
}

type refreshTickMsg struct{}
