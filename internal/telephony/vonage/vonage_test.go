package vonage

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsRetryableVonageErr(t *testing.T) {
	assert.False(t, isRetryableVonageErr(nil))
	assert.True(t, isRetryableVonageErr(errors.New("dial tcp: timeout")))
	assert.True(t, isRetryableVonageErr(errors.New("503 Service Unavailable")))
	assert.False(t, isRetryableVonageErr(errors.New("400 Bad Request")))
	assert.False(t, isRetryableVonageErr(errors.New("429 Too Many Requests")))
}

func TestLeadingStatusCode(t *testing.T) {
	assert.Equal(t, 400, leadingStatusCode("400 Bad Request"))
	assert.Equal(t, 503, leadingStatusCode("503 Service Unavailable"))
	assert.Equal(t, 0, leadingStatusCode("dial tcp: timeout"))
	assert.Equal(t, 0, leadingStatusCode(""))
}
