package errs

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindSurvivesWrapping(t *testing.T) {
	base := InsufficientHistory("forecast", 12, 30)
	wrapped := fmt.Errorf("demand: %w", base)

	assert.Equal(t, KindInsufficientHistory, KindOf(wrapped))
	assert.True(t, Is(wrapped, KindInsufficientHistory))
	assert.False(t, Is(wrapped, KindModelInference))
	assert.Equal(t, KindUnknown, KindOf(errors.New("plain")))
}

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		kind   Kind
		status int
	}{
		{KindSchemaMismatch, http.StatusUnprocessableEntity},
		{KindFeatureContractViolation, http.StatusBadRequest},
		{KindInsufficientHistory, http.StatusUnprocessableEntity},
		{KindModelInference, http.StatusInternalServerError},
		{KindPricingDomain, http.StatusInternalServerError},
		{KindStoreTimeout, http.StatusGatewayTimeout},
		{KindArtifactUnavailable, http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(string(tc.kind), func(t *testing.T) {
			assert.Equal(t, tc.status, Status(tc.kind))
			assert.NotEqual(t, "ERR_INTERNAL", Code(tc.kind))
		})
	}
}

func TestStoreClassifiesDeadline(t *testing.T) {
	err := Store("fetch products", fmt.Errorf("query: %w", context.DeadlineExceeded))
	assert.Equal(t, KindStoreTimeout, err.Kind)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	err = Store("fetch products", errors.New("connection refused"))
	assert.Equal(t, KindStoreUnavailable, err.Kind)
}
