package keysource

import (
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
	"golang.org/x/term"

	perr "github.com/peroxs/cryptsetup/pkg/errors"
	"github.com/peroxs/cryptsetup/pkg/secret"
)

// TerminalPrompt reads a passphrase from the controlling terminal with
// echo disabled, optionally bounded by a timeout.
type TerminalPrompt struct {
	Timeout time.Duration
}

// GetKey implements KeyInput.
func (p *TerminalPrompt) GetKey(req Request, isNew bool) (*secret.Buffer, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, perr.NewKeyInputError(perr.KeyInputIo, fmt.Errorf("stdin is not a tty"))
	}

	prompt := req.prompt(isNew, "")
	fmt.Fprint(os.Stdout, prompt)

	if p.Timeout > 0 {
		ready, err := waitReadable(fd, p.Timeout)
		if err != nil {
			return nil, perr.NewKeyInputError(perr.KeyInputIo, err)
		}
		if !ready {
			return nil, perr.NewKeyInputError(perr.KeyInputTimedOut, errors.New("timed out while reading passphrase"))
		}
	}

	buf, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stdout)
	if err != nil {
		return nil, perr.NewKeyInputError(perr.KeyInputIo, err)
	}
	if len(buf) == 0 {
		return nil, perr.NewKeyInputError(perr.KeyInputIo, errors.New("passphrase cannot be empty"))
	}

	out := secret.New(buf)
	for i := range buf {
		buf[i] = 0
	}
	return out, nil
}

// waitReadable blocks until fd has data available or timeout elapses,
// retrying indefinitely on EINTR the way select(2) requires.
func waitReadable(fd int, timeout time.Duration) (bool, error) {
	deadline := time.Now().Add(timeout)

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false, nil
		}

		tv := unix.NsecToTimeval(remaining.Nanoseconds())

		var readfds unix.FdSet
		fdSet(&readfds, fd)

		n, err := unix.Select(fd+1, &readfds, nil, nil, &tv)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return false, err
		}
		return n > 0, nil
	}
}

func fdSet(set *unix.FdSet, fd int) {
	set.Bits[fd/64] |= 1 << (uint(fd) % 64)
}
