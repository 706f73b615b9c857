package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/echoself-ai/echoself/internal/domain"
)

func TestNamespaceResolver_Resolve(t *testing.T) {
	ctx := context.Background()

	t.Run("dual read returns current namespace first", func(t *testing.T) {
		twins := new(MockTwinStore)
		twins.On("GetOwnerRef", mock.Anything, "twin-1").Return("acme", nil)
		resolver := NewNamespaceResolver(twins, time.Minute)

		namespaces, degraded := resolver.Resolve(ctx, domain.TwinRef{ID: "twin-1"}, true)

		require.Len(t, namespaces, 2)
		assert.Equal(t, "owner-acme.twin-twin-1", namespaces[0])
		assert.Equal(t, "twin-1", namespaces[1])
		assert.False(t, degraded)
	})

	t.Run("single read trims to current namespace only", func(t *testing.T) {
		twins := new(MockTwinStore)
		twins.On("GetOwnerRef", mock.Anything, "twin-1").Return("acme", nil)
		resolver := NewNamespaceResolver(twins, time.Minute)

		namespaces, degraded := resolver.Resolve(ctx, domain.TwinRef{ID: "twin-1"}, false)

		require.Len(t, namespaces, 1)
		assert.Equal(t, "owner-acme.twin-twin-1", namespaces[0])
		assert.False(t, degraded)
	})

	t.Run("provided owner ref skips the lookup", func(t *testing.T) {
		twins := new(MockTwinStore)
		resolver := NewNamespaceResolver(twins, time.Minute)

		namespaces, degraded := resolver.Resolve(ctx, domain.TwinRef{ID: "twin-1", OwnerRef: "acme"}, true)

		require.Len(t, namespaces, 2)
		assert.Equal(t, "owner-acme.twin-twin-1", namespaces[0])
		assert.False(t, degraded)
		twins.AssertNotCalled(t, "GetOwnerRef", mock.Anything, mock.Anything)
	})

	t.Run("successful resolution is cached", func(t *testing.T) {
		twins := new(MockTwinStore)
		twins.On("GetOwnerRef", mock.Anything, "twin-1").Return("acme", nil).Once()
		resolver := NewNamespaceResolver(twins, time.Minute)

		first, _ := resolver.Resolve(ctx, domain.TwinRef{ID: "twin-1"}, true)
		second, _ := resolver.Resolve(ctx, domain.TwinRef{ID: "twin-1"}, true)

		assert.Equal(t, first, second)
		twins.AssertNumberOfCalls(t, "GetOwnerRef", 1)
	})

	t.Run("owner lookup failure falls back to legacy and is not cached", func(t *testing.T) {
		twins := new(MockTwinStore)
		twins.On("GetOwnerRef", mock.Anything, "twin-1").Return("", domain.ErrTwinNotFound).Once()
		twins.On("GetOwnerRef", mock.Anything, "twin-1").Return("acme", nil).Once()
		resolver := NewNamespaceResolver(twins, time.Minute)

		namespaces, degraded := resolver.Resolve(ctx, domain.TwinRef{ID: "twin-1"}, true)
		require.Len(t, namespaces, 1)
		assert.Equal(t, "twin-1", namespaces[0])
		assert.True(t, degraded)

		// Next call retries the lookup instead of serving the failure.
		namespaces, degraded = resolver.Resolve(ctx, domain.TwinRef{ID: "twin-1"}, true)
		require.Len(t, namespaces, 2)
		assert.Equal(t, "owner-acme.twin-twin-1", namespaces[0])
		assert.False(t, degraded)
	})

	t.Run("transient store error also degrades to legacy", func(t *testing.T) {
		twins := new(MockTwinStore)
		twins.On("GetOwnerRef", mock.Anything, "twin-1").Return("", errors.New("connection reset"))
		resolver := NewNamespaceResolver(twins, time.Minute)

		namespaces, degraded := resolver.Resolve(ctx, domain.TwinRef{ID: "twin-1"}, false)

		require.Len(t, namespaces, 1)
		assert.Equal(t, "twin-1", namespaces[0])
		assert.True(t, degraded)
	})

	t.Run("invalidate forces a fresh lookup", func(t *testing.T) {
		twins := new(MockTwinStore)
		twins.On("GetOwnerRef", mock.Anything, "twin-1").Return("acme", nil).Once()
		twins.On("GetOwnerRef", mock.Anything, "twin-1").Return("globex", nil).Once()
		resolver := NewNamespaceResolver(twins, time.Minute)

		first, _ := resolver.Resolve(ctx, domain.TwinRef{ID: "twin-1"}, true)
		assert.Equal(t, "owner-acme.twin-twin-1", first[0])

		resolver.Invalidate("twin-1")

		second, _ := resolver.Resolve(ctx, domain.TwinRef{ID: "twin-1"}, true)
		assert.Equal(t, "owner-globex.twin-twin-1", second[0])
		twins.AssertNumberOfCalls(t, "GetOwnerRef", 2)
	})
}

func TestNamespaceDerivation(t *testing.T) {
	assert.Equal(t, "owner-acme.twin-t1", CurrentNamespace("acme", "t1"))
	assert.Equal(t, "t1", LegacyNamespace("t1"))
}
