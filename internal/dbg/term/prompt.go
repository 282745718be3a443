package term

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

var ErrNoAddress = errors.New("no console address given")

// PromptAddress asks for a console address on w and reads one line from r.
func PromptAddress(r io.Reader, w io.Writer) (string, error) {
	if _, err := fmt.Fprint(w, "Xbox IP address: "); err != nil {
		return "", err
	}
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	addr := strings.TrimSpace(line)
	if addr == "" {
		return "", ErrNoAddress
	}
	return addr, nil
}
