//go:build linux

package ring

import (
	"fmt"
	"unsafe"

	"github.com/eapache/queue"
	"golang.org/x/sys/unix"
)

// DefaultBufferSlots and DefaultBufferSize are the spec's defaults for
// the engine's ring-mapped receive buffer group: 1024 slots of 512
// bytes each, 512 KiB total.
const (
	DefaultBufferSlots = 1024
	DefaultBufferSize  = 512

	// bufferGroupID is the single group id this engine registers and
	// selects from; the spec does not call for more than one group.
	bufferGroupID = 0
)

// BufferGroup is a contiguous backing allocation split into fixed-size
// slots, registered with the kernel as a provided-buffer ring so that
// recv completions can report which slot the kernel filled without the
// caller supplying a buffer at submission time.
//
// Slot bookkeeping (which indices are currently out on loan to the
// kernel vs. available to be re-provided) is single-threaded — the
// engine's event loop is the only goroutine that touches a BufferGroup
// — so the free list needs no lock-free structure; it is a plain FIFO
// ring queue.
type BufferGroup struct {
	backing  []byte // numSlots * slotSize, mmap'd
	ringMem  []byte // mmap'd struct io_uring_buf array registered with the kernel
	numSlots int
	slotSize int
	free     *queue.Queue
	tail     uint16
	ringFD   int
}

// NewBufferGroup allocates the backing store and the provided-buffer
// ring, and registers the ring with ringFD under bufferGroupID.
func NewBufferGroup(ringFD, numSlots, slotSize int) (*BufferGroup, error) {
	backing, err := unix.Mmap(-1, 0, numSlots*slotSize,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_ANONYMOUS|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("mmap buffer backing: %w", err)
	}

	ringMem, err := unix.Mmap(-1, 0, numSlots*uringBufSize,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_ANONYMOUS|unix.MAP_PRIVATE)
	if err != nil {
		unix.Munmap(backing)
		return nil, fmt.Errorf("mmap provided-buffer ring: %w", err)
	}

	g := &BufferGroup{
		backing:  backing,
		ringMem:  ringMem,
		numSlots: numSlots,
		slotSize: slotSize,
		free:     queue.New(),
		ringFD:   ringFD,
	}
	for i := 0; i < numSlots; i++ {
		g.provide(uint16(i))
	}
	if err := g.register(); err != nil {
		unix.Munmap(ringMem)
		unix.Munmap(backing)
		return nil, err
	}
	return g, nil
}

// tailFieldOffset is where struct io_uring_buf_ring stores its tail
// counter: the header (resv1, resv2, resv3, tail) is a union over the
// same bytes as bufs[0], with tail at byte offset 14.
const tailFieldOffset = 14

// provide writes the address/length/id of slot id into the ring array
// at the current tail, then advances and publishes the tail. This is
// the engine-local counterpart of the kernel's IORING_OP_PROVIDE_BUFFERS:
// it makes the slot available to be selected on a future recv.
func (g *BufferGroup) provide(id uint16) {
	entry := ptrAt[uringBuf](g.ringMem, uint32(g.tail%uint16(g.numSlots))*uringBufSize)
	entry.Addr = uint64(uintptr(unsafe.Pointer(&g.backing[int(id)*g.slotSize])))
	entry.Len = uint32(g.slotSize)
	entry.Bid = id
	g.tail++
	*ptrAt[uint16](g.ringMem, tailFieldOffset) = g.tail
}

// register performs IORING_REGISTER_PBUF_RING for this group.
func (g *BufferGroup) register() error {
	reg := uringBufReg{
		RingAddr:    uint64(uintptr(unsafe.Pointer(&g.ringMem[0]))),
		RingEntries: uint32(g.numSlots),
		Bgid:        bufferGroupID,
	}
	return ioUringRegister(g.ringFD, registerPBufRing, unsafe.Pointer(&reg), 1)
}

// Slot returns the byte slice backing buffer id. The slice is only
// valid while the buffer is on loan (between a recv completion
// reporting id and the matching call to Release).
func (g *BufferGroup) Slot(id uint16) []byte {
	start := int(id) * g.slotSize
	return g.backing[start : start+g.slotSize]
}

// Release queues buffer id to be handed back to the kernel. It does
// not touch the ring directly — Refill drains everything queued here
// in one pass, so a reap loop that releases several buffers in a
// single drain hands them back together once the drain is over.
func (g *BufferGroup) Release(id uint16) {
	g.free.Add(id)
}

// Refill re-provides every buffer queued by Release since the last
// call, advancing the ring tail once per buffer. It is a no-op when
// nothing is queued.
func (g *BufferGroup) Refill() {
	for g.free.Length() > 0 {
		id := g.free.Peek().(uint16)
		g.free.Remove()
		g.provide(id)
	}
}

// Close releases the mmap'd backing store and ring memory. Any
// in-flight recv referencing a buffer from this group must already have
// completed.
func (g *BufferGroup) Close() error {
	err1 := unix.Munmap(g.ringMem)
	err2 := unix.Munmap(g.backing)
	if err1 != nil {
		return err1
	}
	return err2
}
