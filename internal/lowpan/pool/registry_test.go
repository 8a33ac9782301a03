package pool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/lowpan/internal/core"
)

func TestRegistryRegister(t *testing.T) {
	r := NewRegistry(2)
	inbox := make(chan core.Frame, 1)

	require.NoError(t, r.Register("a", inbox))
	require.NoError(t, r.Register("a", inbox), "re-registering the same id must be idempotent")
	assert.Equal(t, 1, r.Len())

	require.NoError(t, r.Register("b", inbox))
	err := r.Register("c", inbox)
	assert.ErrorIs(t, err, core.ErrRegistryFull)
	assert.Equal(t, []ConsumerID{"a", "b"}, r.IDs(), "failed registration must not mutate the set")
}

func TestRegistryUnregister(t *testing.T) {
	r := NewRegistry(2)
	inbox := make(chan core.Frame, 1)

	require.NoError(t, r.Register("a", inbox))
	r.Unregister("a")
	assert.Equal(t, 0, r.Len())

	// Unknown id is a no-op.
	r.Unregister("ghost")
	assert.Equal(t, 0, r.Len())

	// Capacity is freed.
	require.NoError(t, r.Register("b", inbox))
	require.NoError(t, r.Register("c", inbox))
}

func TestDeliverAllCopiesPerConsumer(t *testing.T) {
	r := NewRegistry(4)
	inboxA := make(chan core.Frame, 1)
	inboxB := make(chan core.Frame, 1)
	require.NoError(t, r.Register("a", inboxA))
	require.NoError(t, r.Register("b", inboxB))

	data := []byte{1, 2, 3}
	assert.Equal(t, 2, r.DeliverAll(data))

	fa := <-inboxA
	fb := <-inboxB
	assert.Equal(t, data, fa.Data[:fa.Len])
	assert.Equal(t, data, fb.Data[:fb.Len])

	// Consumers own independent copies.
	fa.Data[0] = 0xFF
	assert.EqualValues(t, 1, fb.Data[0])
	assert.EqualValues(t, 1, data[0])
}

func TestDeliverAllFullInboxLosesFrameForThatConsumerOnly(t *testing.T) {
	r := NewRegistry(4)
	full := make(chan core.Frame) // unbuffered, nobody reading
	ok := make(chan core.Frame, 4)
	require.NoError(t, r.Register("stuck", full))
	require.NoError(t, r.Register("ok", ok))

	assert.Equal(t, 1, r.DeliverAll([]byte{9}))
	assert.Len(t, ok, 1)

	// The stuck consumer missing a frame does not unregister it.
	assert.Equal(t, 2, r.Len())
}

func TestDeliverAllNoConsumers(t *testing.T) {
	r := NewRegistry(4)
	assert.Equal(t, 0, r.DeliverAll([]byte{1, 2, 3}))
}
