package uart

import "syscall"

// openPTYPair opens a fresh Linux pseudoterminal and returns the master
// and slave file descriptors as raw-mode ports, letting transport tests
// exercise Send/Recv against a real tty driver instead of a fake
// Transport. Adapted from the upstream library's OpenPTY, which called
// SetLockPT/GetPTPeer methods that were never actually defined on Port;
// this version implements them via TIOCSPTLCK and TIOCGPTN + opening
// /dev/pts/<n> directly.
func openPTYPair() (master, slave *port, err error) {
	m, err := openPort("/dev/ptmx")
	if err != nil {
		return nil, nil, err
	}
	if err := m.setLockPT(false); err != nil {
		m.Close()
		return nil, nil, err
	}
	n, err := m.ptsNumber()
	if err != nil {
		m.Close()
		return nil, nil, err
	}
	path := ptsPath(n)
	fd, err := syscall.Open(path, syscall.O_RDWR|syscall.O_NOCTTY, 0)
	if err != nil {
		m.Close()
		return nil, nil, err
	}
	s := &port{fd: fd}

	attrs, err := s.GetAttr2()
	if err == nil {
		attrs.MakeRaw()
		_ = s.SetAttr2(ActionNow, attrs)
	}
	return m, s, nil
}

func ptsPath(n uint32) string {
	const digits = "0123456789"
	if n == 0 {
		return "/dev/pts/0"
	}
	var buf [10]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = digits[n%10]
		n /= 10
	}
	return "/dev/pts/" + string(buf[i:])
}
