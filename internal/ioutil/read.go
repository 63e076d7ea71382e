package ioutil

import (
	"fmt"
	"io"
)

// ReadLimited reads at most limit bytes from r. A failed read yields a
// placeholder describing the failure rather than an empty string, since
// callers feed the result into error messages and logs.
func ReadLimited(r io.Reader, limit int64) string {
	body, err := io.ReadAll(io.LimitReader(r, limit))
	if err != nil {
		return fmt.Sprintf("<unreadable: %v>", err)
	}
	return string(body)
}
