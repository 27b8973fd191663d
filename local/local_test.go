package local

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatchReachesSubscribers(t *testing.T) {
	r := NewRegistry(nil)

	var got []any
	r.Register("updates", func(topic string, message any) {
		got = append(got, message)
	}, nil)

	require.NoError(t, r.Dispatch("chat", "updates", "hello"))
	require.NoError(t, r.Dispatch("chat", "updates", "world"))

	assert.Equal(t, []any{"hello", "world"}, got)
}

func TestDispatchIgnoresOtherTopics(t *testing.T) {
	r := NewRegistry(nil)

	called := false
	r.Register("updates", func(topic string, message any) {
		called = true
	}, nil)

	require.NoError(t, r.Dispatch("chat", "billing", "invoice"))
	assert.False(t, called)
}

func TestDuplicateRegistrationsDeliverTwice(t *testing.T) {
	r := NewRegistry(nil)

	count := 0
	fn := func(topic string, message any) { count++ }

	r.Register("updates", fn, nil)
	r.Register("updates", fn, nil)

	require.NoError(t, r.Dispatch("chat", "updates", "once"))
	assert.Equal(t, 2, count)
	assert.Equal(t, 2, r.Subscribers("updates"))
}

func TestCancelRemovesOnlyItsRegistration(t *testing.T) {
	r := NewRegistry(nil)

	var first, second int
	cancelFirst := r.Register("updates", func(topic string, message any) { first++ }, nil)
	r.Register("updates", func(topic string, message any) { second++ }, nil)

	cancelFirst()
	require.NoError(t, r.Dispatch("chat", "updates", "msg"))

	assert.Equal(t, 0, first)
	assert.Equal(t, 1, second)
	assert.Equal(t, 1, r.Subscribers("updates"))
}

func TestCancelIsIdempotent(t *testing.T) {
	r := NewRegistry(nil)

	cancelA := r.Register("updates", func(topic string, message any) {}, nil)
	r.Register("updates", func(topic string, message any) {}, nil)

	cancelA()
	cancelA()

	assert.Equal(t, 1, r.Subscribers("updates"))
}

func TestMetadataEnumeration(t *testing.T) {
	r := NewRegistry(nil)

	r.Register("updates", func(topic string, message any) {}, Metadata{"consumer": "ui"})
	r.Register("updates", func(topic string, message any) {}, Metadata{"consumer": "audit"})

	metas := r.MetadataFor("updates")
	require.Len(t, metas, 2)
	assert.Equal(t, "ui", metas[0]["consumer"])
	assert.Equal(t, "audit", metas[1]["consumer"])

	assert.Empty(t, r.MetadataFor("billing"))
}

func TestPanickingSubscriberIsIsolated(t *testing.T) {
	r := NewRegistry(nil)

	r.Register("updates", func(topic string, message any) {
		panic("subscriber bug")
	}, nil)

	delivered := false
	r.Register("updates", func(topic string, message any) {
		delivered = true
	}, nil)

	require.NoError(t, r.Dispatch("chat", "updates", "msg"))
	assert.True(t, delivered)
}

func TestConcurrentRegisterAndDispatch(t *testing.T) {
	r := NewRegistry(nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			cancel := r.Register("updates", func(topic string, message any) {}, nil)
			cancel()
		}()
		go func() {
			defer wg.Done()
			_ = r.Dispatch("chat", "updates", "msg")
		}()
	}
	wg.Wait()

	assert.Zero(t, r.Subscribers("updates"))
}
