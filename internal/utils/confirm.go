// Package utils provides small interactive helpers.
package utils

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Confirm writes msg to out and reads a y/n answer from in. Anything but an
// explicit yes, including end of input, is a no.
func Confirm(in io.Reader, out io.Writer, msg string) bool {
	_, _ = fmt.Fprintf(out, "%s [y/N]: ", msg)
	line, _ := bufio.NewReader(in).ReadString('\n')
	resp := strings.TrimSpace(strings.ToLower(line))
	return resp == "y" || resp == "yes"
}
