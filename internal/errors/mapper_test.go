package errors

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMapProviderError(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		category error
	}{
		{"not found", fmt.Errorf("chat not found"), ErrNotFound},
		{"unauthorized", fmt.Errorf("401 Unauthorized"), ErrUnauthorized},
		{"bad credentials", fmt.Errorf("invalid credentials supplied"), ErrUnauthorized},
		{"rate limit", fmt.Errorf("rate limit exceeded, retry later"), ErrTransient},
		{"bad request", fmt.Errorf("bad request: missing to"), ErrInvalidInput},
		{"timeout", fmt.Errorf("i/o timeout"), ErrTransient},
		{"connection", fmt.Errorf("connection refused"), ErrTransient},
		{"unknown", fmt.Errorf("something odd"), ErrTransient},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mapped := MapProviderError(tc.err)
			assert.True(t, IsCategory(mapped, tc.category), "got %v", mapped)
		})
	}
}

func TestMapProviderErrorPassesContextCancellation(t *testing.T) {
	assert.ErrorIs(t, MapProviderError(context.Canceled), context.Canceled)
	assert.Nil(t, MapProviderError(nil))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(Transient("flaky network")))
	assert.False(t, IsRetryable(InvalidInput("bad field")))
	assert.False(t, IsRetryable(context.Canceled))
	assert.False(t, IsRetryable(nil))
}
