package cli

import (
	"bufio"
	"io"
)

// newLineScanner creates a line scanner from a reader. Lines up to 1 MiB.
func newLineScanner(r io.Reader) *bufio.Scanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	return sc
}
