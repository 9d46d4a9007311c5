//go:build linux

package ring

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Engine drives completion-based I/O through a single io_uring
// instance. It owns the ring's mmap'd memory and the registered
// receive-buffer group, and runs a single-threaded event loop: Enter
// blocks until at least one completion is ready, then dispatches every
// ready completion to the IoContext.Callback it was submitted with
// before looping again.
//
// An Engine is not safe for concurrent use. It is built around
// IORING_SETUP_SINGLE_ISSUER: exactly one goroutine may submit
// requests and reap completions over its lifetime.
type Engine struct {
	fd     int
	params ringParams

	sqRing []byte
	cqRing []byte
	sqes   []byte

	sqHead        *uint32
	sqTail        *uint32
	sqRingMask    uint32
	sqRingEntries uint32
	sqArray       []uint32

	cqHead        *uint32
	cqTail        *uint32
	cqRingMask    uint32
	cqRingEntries uint32
	cqes          []byte

	prodTail uint32 // local producer index, published to sqTail on submit
	pending  uint32 // SQEs written since the last publish

	Buffers *BufferGroup

	running atomic.Bool
}

// New sets up an io_uring instance with the given submission queue
// depth (rounded up by the kernel to a power of two) and registers a
// ring-mapped receive-buffer group of bufSlots buffers of bufSize bytes
// each.
func New(sqEntries uint32, bufSlots, bufSize int) (*Engine, error) {
	if err := checkKernelVersion(); err != nil {
		return nil, err
	}

	var params ringParams
	params.Flags = setupSingleIssue | setupDeferTaskrun

	fd, err := ioUringSetup(sqEntries, &params)
	if err != nil {
		return nil, fmt.Errorf("ring: setup: %w", err)
	}

	e := &Engine{fd: fd, params: params}
	if err := e.mapRings(); err != nil {
		unix.Close(fd)
		return nil, err
	}

	bufs, err := NewBufferGroup(fd, bufSlots, bufSize)
	if err != nil {
		e.Close()
		return nil, err
	}
	e.Buffers = bufs

	return e, nil
}

func (e *Engine) mapRings() error {
	sqRingSize := int(e.params.SQOff.Array) + int(e.params.SQEntries)*4
	sqRing, err := unix.Mmap(e.fd, offSQRing, sqRingSize,
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_POPULATE)
	if err != nil {
		return fmt.Errorf("ring: mmap sq ring: %w", err)
	}
	e.sqRing = sqRing

	cqRingSize := int(e.params.CQOff.Cqes) + int(e.params.CQEntries)*cqeSize
	cqRing, err := unix.Mmap(e.fd, offCQRing, cqRingSize,
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_POPULATE)
	if err != nil {
		unix.Munmap(sqRing)
		return fmt.Errorf("ring: mmap cq ring: %w", err)
	}
	e.cqRing = cqRing

	sqesSize := int(e.params.SQEntries) * sqeSize
	sqes, err := unix.Mmap(e.fd, offSQEs, sqesSize,
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_POPULATE)
	if err != nil {
		unix.Munmap(sqRing)
		unix.Munmap(cqRing)
		return fmt.Errorf("ring: mmap sqes: %w", err)
	}
	e.sqes = sqes

	e.sqHead = ptrAt[uint32](e.sqRing, e.params.SQOff.Head)
	e.sqTail = ptrAt[uint32](e.sqRing, e.params.SQOff.Tail)
	e.sqRingMask = *ptrAt[uint32](e.sqRing, e.params.SQOff.RingMask)
	e.sqRingEntries = *ptrAt[uint32](e.sqRing, e.params.SQOff.RingEntries)
	e.sqArray = unsafe.Slice(ptrAt[uint32](e.sqRing, e.params.SQOff.Array), e.sqRingEntries)
	for i := range e.sqArray {
		e.sqArray[i] = uint32(i)
	}
	e.prodTail = atomic.LoadUint32(e.sqTail)

	e.cqHead = ptrAt[uint32](e.cqRing, e.params.CQOff.Head)
	e.cqTail = ptrAt[uint32](e.cqRing, e.params.CQOff.Tail)
	e.cqRingMask = *ptrAt[uint32](e.cqRing, e.params.CQOff.RingMask)
	e.cqRingEntries = *ptrAt[uint32](e.cqRing, e.params.CQOff.RingEntries)
	e.cqes = e.cqRing[e.params.CQOff.Cqes:]

	return nil
}

// Close tears down the ring's mmap'd memory, the buffer group, and the
// ring file descriptor.
func (e *Engine) Close() error {
	if e.Buffers != nil {
		e.Buffers.Close()
	}
	if e.sqes != nil {
		unix.Munmap(e.sqes)
	}
	if e.cqRing != nil {
		unix.Munmap(e.cqRing)
	}
	if e.sqRing != nil {
		unix.Munmap(e.sqRing)
	}
	return unix.Close(e.fd)
}

// Stop clears the running flag. It may be called from a goroutine
// other than the one running Enter (a signal handler, typically); the
// current call to Enter dispatches whatever completions it has already
// reaped, then returns at its next loop check.
func (e *Engine) Stop() {
	e.running.Store(false)
}

// Enter runs the event loop: publish any queued submissions, wait for
// at least one completion, dispatch every ready completion to its
// IoContext's Callback, and repeat until Stop is called or a callback
// returns an error.
func (e *Engine) Enter() error {
	e.running.Store(true)
	for e.running.Load() {
		if err := e.submitAndWait(1); err != nil {
			return err
		}
		if err := e.reap(); err != nil {
			return err
		}
	}
	return nil
}

// submitAndWait publishes pending submissions and blocks until at
// least minComplete completions are available.
func (e *Engine) submitAndWait(minComplete uint32) error {
	toSubmit := e.pending
	atomic.StoreUint32(e.sqTail, e.prodTail)
	_, err := ioUringEnter(e.fd, toSubmit, minComplete, enterGetEvents)
	if err != nil {
		return err
	}
	e.pending = 0
	return nil
}

// reap drains every completion currently visible in the CQ ring,
// resolving each one's user_data back to the IoContext it was
// submitted with and invoking its Callback. Recv completions that
// consumed a ring-provided buffer have that buffer released back to
// the group once the callback returns, whatever the callback did with
// it; a callback that needs the data afterwards must copy it out (the
// contract IoResult.Buf documents).
func (e *Engine) reap() error {
	head := atomic.LoadUint32(e.cqHead)
	tail := atomic.LoadUint32(e.cqTail)

	for head != tail {
		idx := head & e.cqRingMask
		c := ptrAt[cqe](e.cqes, idx*cqeSize)

		ctx := (*IoContext)(unsafe.Pointer(uintptr(c.UserData)))
		result := IoResult{Res: c.Res, Flags: c.Flags}

		bufID, hasBuf := c.bufferID()
		if hasBuf && e.Buffers != nil && c.Res > 0 {
			result.Buf = e.Buffers.Slot(bufID)[:c.Res]
		}

		var cbErr error
		if ctx != nil && ctx.Callback != nil {
			cbErr = ctx.Callback(ctx.Kind, ctx.User, result)
		}
		if hasBuf && e.Buffers != nil {
			e.Buffers.Release(bufID)
		}
		if cbErr != nil {
			atomic.StoreUint32(e.cqHead, head+1)
			return cbErr
		}
		head++
	}
	atomic.StoreUint32(e.cqHead, head)
	if e.Buffers != nil {
		e.Buffers.Refill()
	}
	return nil
}
