package common

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/joseph-ayodele/fiscal-extractor/constants"
)

func TestExtractionError_IsSentinelAndCause(t *testing.T) {
	cause := errors.New("vision: boom")
	err := NewError(KindOCRFailure, "recognize page 1", cause)
	err.Stage = constants.StageTextAcquired

	assert.ErrorIs(t, err, ErrOCRFailure)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrNoTextDetected)
	assert.Equal(t, "OCR_FAILURE at TEXT_ACQUIRED: recognize page 1: vision: boom", err.Error())

	wrapped := fmt.Errorf("outer: %w", err)
	assert.Equal(t, KindOCRFailure, KindOf(wrapped))
	assert.True(t, IsKind(wrapped, KindOCRFailure))
	assert.Equal(t, ErrorKind(""), KindOf(errors.New("plain")))
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("x"), false},
		{"marked", Transient(errors.New("flaky")), true},
		{"deadline", context.DeadlineExceeded, true},
		{"canceled", context.Canceled, false},
		{"google 503", &googleapi.Error{Code: http.StatusServiceUnavailable}, true},
		{"google 400", &googleapi.Error{Code: http.StatusBadRequest}, false},
		{"grpc unavailable", status.Error(codes.Unavailable, "down"), true},
		{"grpc invalid", status.Error(codes.InvalidArgument, "bad"), false},
		{"invalid response never retried", NewError(KindAIInvalidResponse, "bad json", Transient(errors.New("x"))), false},
		{"quota never retried", NewError(KindAIQuotaExceeded, "429", context.DeadlineExceeded), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestFromContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	assert.Nil(t, FromContext(ctx))
	cancel()

	err := FromContext(ctx)
	require.NotNil(t, err)
	assert.Equal(t, KindCancelled, err.Kind)
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, err, ErrCancelled)
}

func TestStatusMapping(t *testing.T) {
	assert.Equal(t, codes.InvalidArgument, GRPCCode(KindUnsupportedFormat))
	assert.Equal(t, codes.ResourceExhausted, GRPCCode(KindAIQuotaExceeded))
	assert.Equal(t, codes.Internal, GRPCCode(KindInternal))
	assert.Equal(t, http.StatusUnsupportedMediaType, HTTPStatus(KindUnsupportedFormat))
	assert.Equal(t, http.StatusUnprocessableEntity, HTTPStatus(KindNoTextDetected))

	st, ok := status.FromError(ToGRPCStatus(NewError(KindNoFieldsExtracted, "", nil)))
	require.True(t, ok)
	assert.Equal(t, codes.FailedPrecondition, st.Code())
}
