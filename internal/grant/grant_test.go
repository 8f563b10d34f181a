package grant

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCounterRegisterAssignsSequentialOrdinals(t *testing.T) {
	var c Counter
	require.Equal(t, uint32(0), c.Register())
	require.Equal(t, uint32(1), c.Register())
	require.Equal(t, uint32(2), c.Register())
}

func TestCounterFinalizeIsIdempotent(t *testing.T) {
	var c Counter
	c.Register()
	c.Register()

	require.Equal(t, uint32(2), c.GetCountAndFinalize())
	require.Equal(t, uint32(2), c.GetCountAndFinalize())
	require.True(t, c.Finalized())
}

func TestCounterRegisterAfterFinalizePanics(t *testing.T) {
	var c Counter
	c.Register()
	c.GetCountAndFinalize()
	require.Panics(t, func() { c.Register() })
}

func TestCounterFinalizeUnderConcurrentRegister(t *testing.T) {
	var c Counter
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { recover() }() // a racing finalize may panic a late Register
			c.Register()
		}()
	}
	finalized := make(chan uint32, 1)
	go func() { finalized <- c.GetCountAndFinalize() }()
	wg.Wait()
	n := <-finalized
	require.LessOrEqual(t, n, uint32(50))
}

func TestRegionSubscribeReturnsPrevious(t *testing.T) {
	r := newRegion()
	prev := r.Subscribe(3, UpcallDescriptor{FnPtr: 0x100, AppData: 1})
	require.True(t, prev.Null())

	prev = r.Subscribe(3, UpcallDescriptor{FnPtr: 0x200, AppData: 2})
	require.Equal(t, uintptr(0x100), prev.FnPtr)
	require.Equal(t, uintptr(0x200), r.UpcallAt(3).FnPtr)
}

func TestRegionSubscribeNullClearsSlot(t *testing.T) {
	r := newRegion()
	r.Subscribe(3, UpcallDescriptor{FnPtr: 0x100})
	r.Subscribe(3, UpcallDescriptor{}) // null fn_ptr: unsubscribe
	require.True(t, r.UpcallAt(3).Null())
}

func TestRegionAllowSwapsReturnPrevious(t *testing.T) {
	r := newRegion()
	prev := r.SwapReadWriteAllow(1, Buffer{Ptr: 0x2000, Len: 16})
	require.Equal(t, Buffer{}, prev)

	prev = r.SwapReadWriteAllow(1, Buffer{Ptr: 0x3000, Len: 32})
	require.Equal(t, Buffer{Ptr: 0x2000, Len: 16}, prev)
}

func TestTableAllocateIsIdempotent(t *testing.T) {
	tbl := NewTable()
	r1 := tbl.Allocate(5)
	r2 := tbl.Allocate(5)
	require.Same(t, r1, r2)

	_, ok := tbl.Lookup(6)
	require.False(t, ok)
	tbl.Allocate(6)
	_, ok = tbl.Lookup(6)
	require.True(t, ok)
}
