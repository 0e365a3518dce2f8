package application

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/credpool/internal/domain/model"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		id   int64
		want model.ErrorKind
	}{
		{name: "typed not found", err: model.NotFound(3), id: 3, want: model.KindNotFound},
		{name: "wrapped typed upstream", err: fmt.Errorf("fetch: %w", model.Upstream("", errors.New("x"))), want: model.KindUpstream},
		{name: "deadline", err: fmt.Errorf("call: %w", context.DeadlineExceeded), want: model.KindUpstream},
		{name: "no such credential", err: errors.New("no such credential"), id: 4, want: model.KindNotFound},
		{name: "truncated", err: errors.New("refresh token appears truncated"), want: model.KindInvalidCredential},
		{name: "rate limited during validation", err: errors.New("Rate limited during validation"), want: model.KindInvalidCredential},
		{name: "plain rate limit", err: errors.New("rate limited"), want: model.KindUpstream},
		{name: "connection refused", err: errors.New("dial tcp 127.0.0.1:1: connection refused"), want: model.KindUpstream},
		{name: "unknown", err: errors.New("disk full"), want: model.KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.err, tt.id)
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.Kind)
		})
	}
}

func TestClassify_Nil(t *testing.T) {
	assert.Nil(t, classify(nil, 1))
}

func TestClassify_FillsNotFoundID(t *testing.T) {
	got := classify(&model.Error{Kind: model.KindNotFound}, 12)
	assert.Equal(t, "credential 12 not found", got.Error())

	got = classify(errors.New("credential does not exist"), 5)
	assert.Equal(t, int64(5), got.ID)
}

func TestClassify_KeepsMessage(t *testing.T) {
	got := classify(errors.New("refresh token expired"), 0)
	assert.Equal(t, "refresh token expired", got.Error())
	assert.ErrorIs(t, got, &model.Error{Kind: model.KindInvalidCredential})
}
