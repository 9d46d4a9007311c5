//go:build linux

package ring

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Raw io_uring syscall numbers (x86-64). golang.org/x/sys/unix does not
// expose these directly, so the engine issues them via unix.Syscall,
// the same approach the teacher's transport_linux_uring.go uses.
const (
	sysIOUringSetup    = 425
	sysIOUringEnter    = 426
	sysIOUringRegister = 427
)

// registerOp values for io_uring_register.
const (
	registerPBufRing = 22 // IORING_REGISTER_PBUF_RING
)

// ErrSystemOutdated is returned by New when the host kernel predates the
// minimum version this engine requires.
var ErrSystemOutdated = errors.New("ring: host kernel older than 5.19")

const (
	minKernelMajor = 5
	minKernelMinor = 19
)

// checkKernelVersion parses the `uname -r` release string and rejects
// anything older than 5.19. Distro release strings commonly trail the
// numeric version with a suffix (e.g. "5.19.0-42-generic"); only the
// leading "MAJOR.MINOR" is significant here.
func checkKernelVersion() error {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return fmt.Errorf("uname: %w", err)
	}
	release := cstr(uts.Release[:])
	major, minor, err := parseKernelVersion(release)
	if err != nil {
		return fmt.Errorf("parse kernel release %q: %w", release, err)
	}
	if major < minKernelMajor || (major == minKernelMajor && minor < minKernelMinor) {
		return fmt.Errorf("%w: running %d.%d", ErrSystemOutdated, major, minor)
	}
	return nil
}

func parseKernelVersion(release string) (major, minor int, err error) {
	parts := strings.SplitN(release, ".", 3)
	if len(parts) < 2 {
		return 0, 0, fmt.Errorf("unexpected release format")
	}
	major, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, err
	}
	minorField := parts[1]
	if i := strings.IndexFunc(minorField, func(r rune) bool { return r < '0' || r > '9' }); i >= 0 {
		minorField = minorField[:i]
	}
	minor, err = strconv.Atoi(minorField)
	return major, minor, err
}

func cstr(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// ioUringSetup issues io_uring_setup(2) and returns the ring file
// descriptor and the kernel-filled params.
func ioUringSetup(entries uint32, p *ringParams) (int, error) {
	fd, _, errno := unix.Syscall(sysIOUringSetup, uintptr(entries), uintptr(unsafe.Pointer(p)), 0)
	if errno != 0 {
		return -1, fmt.Errorf("io_uring_setup: %w", errno)
	}
	return int(fd), nil
}

// ioUringEnter issues io_uring_enter(2): submits toSubmit SQEs and,
// when flags includes enterGetEvents, waits for minComplete CQEs.
func ioUringEnter(fd int, toSubmit, minComplete uint32, flags uint32) (int, error) {
	n, _, errno := unix.Syscall6(sysIOUringEnter,
		uintptr(fd), uintptr(toSubmit), uintptr(minComplete), uintptr(flags), 0, 0)
	if errno != 0 {
		return 0, fmt.Errorf("io_uring_enter: %w", errno)
	}
	return int(n), nil
}

// ioUringRegister issues io_uring_register(2), used here to register
// the ring-mapped provided-buffer group.
func ioUringRegister(fd int, op uint32, arg unsafe.Pointer, nrArgs uint32) error {
	_, _, errno := unix.Syscall6(sysIOUringRegister,
		uintptr(fd), uintptr(op), uintptr(arg), uintptr(nrArgs), 0, 0)
	if errno != 0 {
		return fmt.Errorf("io_uring_register: %w", errno)
	}
	return nil
}
