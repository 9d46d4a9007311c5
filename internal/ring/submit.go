//go:build linux

package ring

import (
	"sync/atomic"
	"unsafe"
)

// sqeCQESkipSuccess is IOSQE_CQE_SKIP_SUCCESS: when set, the kernel
// produces no completion at all for this submission if it succeeds. A
// failure is still delivered, so callers that need to observe errors on
// an otherwise-uninteresting operation can rely on silence meaning
// success.
const sqeCQESkipSuccess = 1 << 6

// getSQE reserves the next submission-queue slot and returns a pointer
// into the mmap'd SQE array ready to be filled in. If the local ring is
// full — e.prodTail has run e.sqRingEntries entries ahead of the
// kernel-published sqHead — it flushes the queue into the kernel and
// retries until a slot opens up, per spec.md's backpressure rule. A
// single reap pass can re-arm many connections' recvs/writes/closes
// before the next scheduled flush, so this can be reached in ordinary
// operation once enough connections are live, not just under attack.
func (e *Engine) getSQE() (*sqe, error) {
	for e.prodTail-atomic.LoadUint32(e.sqHead) == e.sqRingEntries {
		if _, err := e.Flush(); err != nil {
			return nil, err
		}
	}
	index := e.prodTail & e.sqRingMask
	s := ptrAt[sqe](e.sqes, index*sqeSize)
	*s = sqe{}
	e.prodTail++
	e.pending++
	return s, nil
}

func userData(ctx *IoContext) uint64 {
	return uint64(uintptr(unsafe.Pointer(ctx)))
}

// Nop submits a no-op, optionally with IOSQE_CQE_SKIP_SUCCESS set. A
// nop cannot fail, so with suppressOnSuccess true it never produces a
// completion at all and ctx.Callback is never invoked for it.
func (e *Engine) Nop(ctx *IoContext, suppressOnSuccess bool) error {
	ctx.Kind = KindNop
	s, err := e.getSQE()
	if err != nil {
		return err
	}
	s.Opcode = opNop
	if suppressOnSuccess {
		s.Flags |= sqeCQESkipSuccess
	}
	s.UserData = userData(ctx)
	return nil
}

// Accept submits an accept on the listening handle fd. On completion,
// IoResult.Res holds the accepted connection's file descriptor, or a
// negated errno.
func (e *Engine) Accept(ctx *IoContext, fd Handle) error {
	ctx.Kind = KindAccept
	s, err := e.getSQE()
	if err != nil {
		return err
	}
	s.Opcode = opAccept
	s.FD = int32(fd)
	s.UserData = userData(ctx)
	return nil
}

// Recv submits a buffer-select recv on fd: the kernel chooses which
// slot of the engine's BufferGroup to fill rather than the caller
// supplying one. On completion, IoResult.Buf carries the received
// bytes, valid only for the duration of the callback.
func (e *Engine) Recv(ctx *IoContext, fd Handle) error {
	ctx.Kind = KindRecv
	s, err := e.getSQE()
	if err != nil {
		return err
	}
	s.Opcode = opRecv
	s.FD = int32(fd)
	s.Flags |= sqeBufferSelect
	s.BufIndex = bufferGroupID
	s.UserData = userData(ctx)
	return nil
}

// Read submits a read of len(buf) bytes from fd at the given file
// offset into buf. buf must remain valid and unmoved until the
// completion for this submission arrives.
func (e *Engine) Read(ctx *IoContext, fd Handle, buf []byte, offset uint64) error {
	ctx.Kind = KindRead
	s, err := e.getSQE()
	if err != nil {
		return err
	}
	s.Opcode = opRead
	s.FD = int32(fd)
	s.Off = offset
	s.Addr = uint64(uintptr(unsafe.Pointer(&buf[0])))
	s.Len = uint32(len(buf))
	s.UserData = userData(ctx)
	return nil
}

// Write submits a write of buf to fd at the given file offset.
// suppressOnSuccess matches the submission table's default for write
// (a successful write produces no completion, only a failed one does),
// but a caller that needs to sequence a following op off this write's
// completion — rather than firing it unlinked right behind — must pass
// false so a completion always arrives to sequence from. buf must
// remain valid and unmoved until that completion arrives or (when
// suppressed and successful) the next op is submitted on the same
// context.
func (e *Engine) Write(ctx *IoContext, fd Handle, buf []byte, offset uint64, suppressOnSuccess bool) error {
	ctx.Kind = KindWrite
	s, err := e.getSQE()
	if err != nil {
		return err
	}
	s.Opcode = opWrite
	s.FD = int32(fd)
	s.Off = offset
	s.Addr = uint64(uintptr(unsafe.Pointer(&buf[0])))
	s.Len = uint32(len(buf))
	if suppressOnSuccess {
		s.Flags |= sqeCQESkipSuccess
	}
	s.UserData = userData(ctx)
	return nil
}

// CloseFD submits a close of fd, with IOSQE_CQE_SKIP_SUCCESS set: a
// successful close produces no completion, only a failed one does.
func (e *Engine) CloseFD(ctx *IoContext, fd Handle) error {
	ctx.Kind = KindClose
	s, err := e.getSQE()
	if err != nil {
		return err
	}
	s.Opcode = opClose
	s.FD = int32(fd)
	s.Flags |= sqeCQESkipSuccess
	s.UserData = userData(ctx)
	return nil
}

// Flush publishes every submission queued since the last Enter
// iteration without waiting for a completion. The event loop calls this
// implicitly via submitAndWait; it is exposed so tests can submit and
// observe backlog depth without driving a full Enter loop.
func (e *Engine) Flush() (int, error) {
	toSubmit := e.pending
	atomic.StoreUint32(e.sqTail, e.prodTail)
	n, err := ioUringEnter(e.fd, toSubmit, 0, 0)
	if err != nil {
		return 0, err
	}
	e.pending = 0
	return n, nil
}
