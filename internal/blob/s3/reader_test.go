package s3blob

import (
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
)

type statusError struct {
	status int
}

func (e *statusError) Error() string       { return fmt.Sprintf("http status %d", e.status) }
func (e *statusError) HTTPStatusCode() int { return e.status }

func TestIsNotFound(t *testing.T) {
	assert.True(t, isNotFound(&types.NoSuchKey{}))
	assert.True(t, isNotFound(&types.NotFound{}))
	assert.True(t, isNotFound(fmt.Errorf("get: %w", &types.NoSuchKey{})))

	// S3-compatible providers often return a bare 404 response error.
	assert.True(t, isNotFound(&statusError{status: 404}))
	assert.False(t, isNotFound(&statusError{status: 403}))
	assert.False(t, isNotFound(errors.New("connection refused")))
}

func TestNormaliseEndpoint(t *testing.T) {
	assert.Equal(t, "https://s3.example.com", normaliseEndpoint("https://s3.example.com", false))
	assert.Equal(t, "http://localhost:9000", normaliseEndpoint("http://localhost:9000", true))
	assert.Equal(t, "https://minio.internal", normaliseEndpoint("minio.internal", true))
	assert.Equal(t, "http://minio.internal", normaliseEndpoint("minio.internal", false))
}
