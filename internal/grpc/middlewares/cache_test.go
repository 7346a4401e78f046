package middleware

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
)

// Mock handler to simulate gRPC handler behavior.
func mockHandler(calls *int) grpc.UnaryHandler {
	return func(ctx context.Context, req interface{}) (interface{}, error) {
		*calls++
		return "response-" + req.(string), nil
	}
}

func TestCachingInterceptor(t *testing.T) {
	cache, err := NewCache(2)
	require.NoError(t, err, "Failed to initialize cache")
	interceptor := cache.Interceptor()

	ctx := context.Background()
	info := &grpc.UnaryServerInfo{
		FullMethod: "/test.Service/Method",
	}
	calls := 0
	handler := mockHandler(&calls)

	// cache miss
	resp, err := interceptor(ctx, "request1", info, handler)
	assert.NoError(t, err, "Error in first request")
	assert.Equal(t, "response-request1", resp)

	// cache hit
	respCached, err := interceptor(ctx, "request1", info, handler)
	assert.NoError(t, err, "Error in cached request")
	assert.Equal(t, resp, respCached)
	assert.Equal(t, 1, calls, "handler should not be called on a hit")

	_, err = interceptor(ctx, "request2", info, handler)
	assert.NoError(t, err)
	_, err = interceptor(ctx, "request3", info, handler)
	assert.NoError(t, err)

	// The first request should have been evicted due to cache size.
	key, _ := generateCacheKey(info.FullMethod, "request1")
	_, ok := cache.lru.Get(key)
	assert.False(t, ok, "Expected first request to be evicted from cache")
	assert.Equal(t, 2, cache.Len())
}

func TestCachingInterceptorSkipsErrors(t *testing.T) {
	cache, err := NewCache(10)
	require.NoError(t, err)
	interceptor := cache.Interceptor()

	info := &grpc.UnaryServerInfo{FullMethod: "/test.Service/Method"}
	failing := func(ctx context.Context, req interface{}) (interface{}, error) {
		return nil, errors.New("boom")
	}

	_, err = interceptor(context.Background(), "req", info, failing)
	assert.Error(t, err)
	assert.Equal(t, 0, cache.Len())
}

func TestCachingInterceptorMethodFilter(t *testing.T) {
	cache, err := NewCache(10)
	require.NoError(t, err)
	interceptor := cache.Interceptor("/test.Service/Cached")

	calls := 0
	handler := mockHandler(&calls)
	other := &grpc.UnaryServerInfo{FullMethod: "/test.Service/Other"}

	_, _ = interceptor(context.Background(), "req", other, handler)
	_, _ = interceptor(context.Background(), "req", other, handler)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 0, cache.Len())
}

func TestNewCacheInvalidSize(t *testing.T) {
	_, err := NewCache(-1)
	assert.Error(t, err)
}
