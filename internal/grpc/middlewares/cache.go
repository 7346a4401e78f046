package middleware

// This in-memory cache is used for simplicity purpose. It can be replaced with Redis.
// golang-lru Automatically evicts the least recently accessed items, ensuring efficient memory usage.

import (
	"context"
	"encoding/json"
	"fmt"

	lru "github.com/hashicorp/golang-lru"
	"google.golang.org/grpc"
)

// Cache holds successful responses keyed by method and request.
type Cache struct {
	lru *lru.Cache
}

// NewCache sets up an in-memory LRU cache of the given size.
func NewCache(size int) (*Cache, error) {
	c, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &Cache{lru: c}, nil
}

// Len returns the number of cached responses.
func (c *Cache) Len() int {
	return c.lru.Len()
}

// Interceptor caches responses of the listed methods. With no methods every
// unary call is cached.
func (c *Cache) Interceptor(methods ...string) grpc.UnaryServerInterceptor {
	cacheable := make(map[string]bool, len(methods))
	for _, m := range methods {
		cacheable[m] = true
	}

	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		if len(cacheable) > 0 && !cacheable[info.FullMethod] {
			return handler(ctx, req)
		}

		key, ok := generateCacheKey(info.FullMethod, req)
		if !ok {
			return handler(ctx, req)
		}
		if cachedResp, ok := c.lru.Get(key); ok {
			return cachedResp, nil
		}

		resp, err := handler(ctx, req)
		if err != nil {
			return nil, err
		}
		c.lru.Add(key, resp)
		return resp, nil
	}
}

// generateCacheKey serializes the request. Requests that cannot be
// serialized are not cached.
func generateCacheKey(method string, req interface{}) (string, bool) {
	reqBytes, err := json.Marshal(req)
	if err != nil {
		return "", false
	}
	return fmt.Sprintf("%s:%s", method, string(reqBytes)), true
}
