package keysource

import (
	"bufio"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"time"

	perr "github.com/peroxs/cryptsetup/pkg/errors"
	"github.com/peroxs/cryptsetup/pkg/secret"
)

// PinentryPrompt reads a passphrase via an external pinentry program,
// speaking its line-oriented Assuan protocol over stdin/stdout.
type PinentryPrompt struct {
	Timeout time.Duration
	Program string
}

// GetKey implements KeyInput.
func (p *PinentryPrompt) GetKey(req Request, isNew bool) (*secret.Buffer, error) {
	title := "Unlock disk"
	if isNew {
		title = "New passphrase"
	} else if req.UUID != nil {
		title = fmt.Sprintf("Unlock disk (uuid=%s)", req.UUID)
	}

	cmd := exec.Command(p.Program)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, perr.NewKeyInputError(perr.KeyInputPinentry, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, perr.NewKeyInputError(perr.KeyInputPinentry, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, perr.NewKeyInputError(perr.KeyInputPinentry, err)
	}
	defer cmd.Wait()

	reader := bufio.NewReader(stdout)
	if _, err := readAssuanLine(reader); err != nil { // server greeting
		return nil, perr.NewKeyInputError(perr.KeyInputPinentry, err)
	}

	commands := []string{
		"SETTITLE " + title,
		"SETPROMPT " + req.prompt(isNew, ""),
	}
	if p.Timeout > 0 {
		commands = append(commands, "SETTIMEOUT "+strconv.Itoa(int(p.Timeout.Seconds())))
	}

	for _, c := range commands {
		if err := sendAssuanCommand(stdin, reader, c); err != nil {
			return nil, perr.NewKeyInputError(perr.KeyInputPinentry, err)
		}
	}

	if _, err := fmt.Fprintf(stdin, "GETPIN\n"); err != nil {
		return nil, perr.NewKeyInputError(perr.KeyInputPinentry, err)
	}

	line, err := readAssuanLine(reader)
	if err != nil {
		return nil, perr.NewKeyInputError(perr.KeyInputPinentry, err)
	}

	if !strings.HasPrefix(line, "D ") {
		return nil, perr.NewKeyInputError(perr.KeyInputPinentry, fmt.Errorf("unexpected pinentry response: %q", line))
	}

	pin := strings.TrimPrefix(line, "D ")
	buf := secret.New([]byte(pin))
	return buf, nil
}

func sendAssuanCommand(stdin io.Writer, reader *bufio.Reader, command string) error {
	if _, err := fmt.Fprintf(stdin, "%s\n", command); err != nil {
		return err
	}
	_, err := readAssuanLine(reader)
	return err
}

// readAssuanLine reads one line of the Assuan protocol and returns it
// with the trailing newline stripped, failing on an "ERR" response.
func readAssuanLine(reader *bufio.Reader) (string, error) {
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	line = strings.TrimRight(line, "\r\n")
	if strings.HasPrefix(line, "ERR ") {
		return "", fmt.Errorf("pinentry error: %s", line)
	}
	return line, nil
}
