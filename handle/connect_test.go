package handle_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/binderylabs/bindery/handle"
)

const (
	evClicked handle.Event = 1
	evToggled handle.Event = 2
)

func TestRaiseInvokesMatchingConnections(t *testing.T) {
	var reg handle.Registry
	var src1, src2, payload int

	var got []string
	reg.Connect(unsafe.Pointer(&src1), evClicked, nil, func(args unsafe.Pointer) {
		require.Equal(t, unsafe.Pointer(&payload), args)
		got = append(got, "src1.clicked")
	})
	reg.Connect(unsafe.Pointer(&src1), evToggled, nil, func(unsafe.Pointer) {
		got = append(got, "src1.toggled")
	})
	reg.Connect(unsafe.Pointer(&src2), evClicked, nil, func(unsafe.Pointer) {
		got = append(got, "src2.clicked")
	})

	reg.Raise(unsafe.Pointer(&src1), evClicked, unsafe.Pointer(&payload))

	assert.Equal(t, []string{"src1.clicked"}, got)
}

func TestRaisePreservesRegistrationOrder(t *testing.T) {
	var reg handle.Registry
	var src int

	var order []int
	for i := 1; i <= 3; i++ {
		reg.Connect(unsafe.Pointer(&src), evClicked, nil, func(unsafe.Pointer) {
			order = append(order, i)
		})
	}

	reg.Raise(unsafe.Pointer(&src), evClicked, nil)

	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestDisconnectStopsDelivery(t *testing.T) {
	var reg handle.Registry
	var src int

	fired := 0
	conn := reg.Connect(unsafe.Pointer(&src), evClicked, nil, func(unsafe.Pointer) {
		fired++
	})
	require.True(t, conn.Valid())

	reg.Raise(unsafe.Pointer(&src), evClicked, nil)
	require.Equal(t, 1, fired)

	assert.True(t, reg.Disconnect(conn))
	assert.False(t, reg.Disconnect(conn))

	reg.Raise(unsafe.Pointer(&src), evClicked, nil)
	assert.Equal(t, 1, fired)
}

func TestZeroConnIsInvalid(t *testing.T) {
	var reg handle.Registry
	assert.False(t, handle.Conn{}.Valid())
	assert.False(t, reg.Disconnect(handle.Conn{}))
}

func TestCountTracksConnections(t *testing.T) {
	var reg handle.Registry
	var src, other int

	assert.Equal(t, 0, reg.Count(unsafe.Pointer(&src), evClicked))

	c1 := reg.Connect(unsafe.Pointer(&src), evClicked, nil, func(unsafe.Pointer) {})
	c2 := reg.Connect(unsafe.Pointer(&src), evClicked, nil, func(unsafe.Pointer) {})
	reg.Connect(unsafe.Pointer(&other), evClicked, nil, func(unsafe.Pointer) {})

	assert.Equal(t, 2, reg.Count(unsafe.Pointer(&src), evClicked))
	assert.Equal(t, 0, reg.Count(unsafe.Pointer(&src), evToggled))

	reg.Disconnect(c1)
	assert.Equal(t, 1, reg.Count(unsafe.Pointer(&src), evClicked))
	reg.Disconnect(c2)
	assert.Equal(t, 0, reg.Count(unsafe.Pointer(&src), evClicked))
}

func TestDisconnectObjectRemovesByReceiver(t *testing.T) {
	var reg handle.Registry
	var src, recvA, recvB int

	var got []string
	reg.Connect(unsafe.Pointer(&src), evClicked, unsafe.Pointer(&recvA), func(unsafe.Pointer) {
		got = append(got, "a.clicked")
	})
	reg.Connect(unsafe.Pointer(&src), evToggled, unsafe.Pointer(&recvA), func(unsafe.Pointer) {
		got = append(got, "a.toggled")
	})
	reg.Connect(unsafe.Pointer(&src), evClicked, unsafe.Pointer(&recvB), func(unsafe.Pointer) {
		got = append(got, "b.clicked")
	})

	assert.Equal(t, 2, reg.DisconnectObject(unsafe.Pointer(&recvA)))

	reg.Raise(unsafe.Pointer(&src), evClicked, nil)
	reg.Raise(unsafe.Pointer(&src), evToggled, nil)

	assert.Equal(t, []string{"b.clicked"}, got)
}

func TestDisconnectSourceRemovesBySource(t *testing.T) {
	var reg handle.Registry
	var dying, living int

	var got []string
	cDying := reg.Connect(unsafe.Pointer(&dying), evClicked, nil, func(unsafe.Pointer) {
		got = append(got, "dying.clicked")
	})
	reg.Connect(unsafe.Pointer(&dying), evToggled, nil, func(unsafe.Pointer) {
		got = append(got, "dying.toggled")
	})
	reg.Connect(unsafe.Pointer(&living), evClicked, nil, func(unsafe.Pointer) {
		got = append(got, "living.clicked")
	})

	assert.Equal(t, 2, reg.DisconnectSource(unsafe.Pointer(&dying)))
	assert.Equal(t, 0, reg.DisconnectSource(unsafe.Pointer(&dying)))
	assert.False(t, reg.Disconnect(cDying))

	reg.Raise(unsafe.Pointer(&dying), evClicked, nil)
	reg.Raise(unsafe.Pointer(&living), evClicked, nil)

	assert.Equal(t, []string{"living.clicked"}, got)
}

// Callbacks run outside the registry lock, so a callback may reconnect
// without deadlocking and the new connection only fires on the next
// emission.
func TestCallbackMayConnectDuringRaise(t *testing.T) {
	var reg handle.Registry
	var src int

	late := 0
	reg.Connect(unsafe.Pointer(&src), evClicked, nil, func(unsafe.Pointer) {
		reg.Connect(unsafe.Pointer(&src), evClicked, nil, func(unsafe.Pointer) {
			late++
		})
	})

	reg.Raise(unsafe.Pointer(&src), evClicked, nil)
	assert.Equal(t, 0, late)

	reg.Raise(unsafe.Pointer(&src), evClicked, nil)
	assert.Equal(t, 1, late)
}

func TestConcurrentConnectAndRaise(t *testing.T) {
	var reg handle.Registry
	var src int
	var delivered atomic.Int32

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reg.Connect(unsafe.Pointer(&src), evClicked, nil, func(unsafe.Pointer) {
				delivered.Add(1)
			})
			reg.Raise(unsafe.Pointer(&src), evClicked, nil)
		}()
	}
	wg.Wait()

	require.Equal(t, 16, reg.Count(unsafe.Pointer(&src), evClicked))
	before := delivered.Load()
	reg.Raise(unsafe.Pointer(&src), evClicked, nil)
	assert.Equal(t, before+16, delivered.Load())
}
