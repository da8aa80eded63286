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

func TestOwnedClosesExactlyOnce(t *testing.T) {
	var target int
	var freed int
	ref := handle.Own(unsafe.Pointer(&target), func(p unsafe.Pointer) {
		require.Equal(t, unsafe.Pointer(&target), p)
		freed++
	})

	assert.Equal(t, handle.ModeOwned, ref.Mode())
	assert.Equal(t, unsafe.Pointer(&target), ref.Ptr())
	assert.False(t, ref.Closed())

	ref.Close()
	ref.Close()

	assert.Equal(t, 1, freed)
	assert.True(t, ref.Closed())
}

func TestOwnedWithoutDestructor(t *testing.T) {
	var target int
	ref := handle.Own(unsafe.Pointer(&target), nil)
	ref.Close()
	assert.True(t, ref.Closed())
}

func TestConcurrentCloseFreesOnce(t *testing.T) {
	var target int
	var freed atomic.Int32
	ref := handle.Own(unsafe.Pointer(&target), func(unsafe.Pointer) {
		freed.Add(1)
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ref.Close()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), freed.Load())
}

func TestBorrowNeverFrees(t *testing.T) {
	var target int
	ref := handle.Borrow(unsafe.Pointer(&target))

	assert.Equal(t, handle.ModeBorrowed, ref.Mode())
	ref.Close()
	assert.True(t, ref.Closed())
	assert.Equal(t, unsafe.Pointer(&target), ref.Ptr())
}

// A factory's live count must return to zero once every instance it
// produced is closed, including heavier derived instances that hold more
// than one unit.
func TestSharedReleaseRestoresLiveCount(t *testing.T) {
	var counter handle.LiveCounter
	var a, b, c int

	counter.Acquire(1)
	plain1 := handle.Share(unsafe.Pointer(&a), &counter, 1)
	counter.Acquire(1)
	plain2 := handle.Share(unsafe.Pointer(&b), &counter, 1)
	counter.Acquire(2)
	derived := handle.Share(unsafe.Pointer(&c), &counter, 2)

	require.Equal(t, int64(4), counter.Live())

	plain1.Close()
	assert.Equal(t, int64(3), counter.Live())

	derived.Close()
	derived.Close()
	assert.Equal(t, int64(1), counter.Live())

	plain2.Close()
	assert.Equal(t, int64(0), counter.Live())
}

func TestTwoFactoriesDoNotShareCounts(t *testing.T) {
	var first, second handle.LiveCounter
	first.Acquire(1)

	assert.Equal(t, int64(1), first.Live())
	assert.Equal(t, int64(0), second.Live())
}
