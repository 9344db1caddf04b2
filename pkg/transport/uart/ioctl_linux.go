package uart

import (
	"unsafe"

	ioctl "github.com/daedaluz/goioctl"
	"golang.org/x/sys/unix"
)

// ioctl request codes for the termios and pseudoterminal calls this
// package issues. The plain TCGETS/TIOCM*/TCFLSH family comes from
// golang.org/x/sys/unix rather than hand-copied magic numbers; TCGETS2
// and the PTY-unlock ioctls have no unix package constant (BOTHER-speed
// support is newer than that package's generated set) and are built
// with goioctl's IOR/IOW the way the teacher did it.
var (
	tcgets2 = ioctl.IOR('T', 0x2A, unsafe.Sizeof(Termios2{}))
	tcsets2 = ioctl.IOW('T', 0x2B, unsafe.Sizeof(Termios2{}))

	tcsbrk = uintptr(unix.TCSBRK)

	tcflsh = uintptr(unix.TCFLSH)

	tiocmget = uintptr(unix.TIOCMGET)
	tiocmbis = uintptr(unix.TIOCMBIS)
	tiocmbic = uintptr(unix.TIOCMBIC)
	tiocmset = uintptr(unix.TIOCMSET)

	tiocgptn   = ioctl.IOR('T', 0x30, unsafe.Sizeof(uint32(0)))
	tiocsptlck = ioctl.IOW('T', 0x31, unsafe.Sizeof(int32(0)))
)
