package decode

import (
	"fmt"
	"io"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/JonMunkholm/fleetimport/internal/core"
)

// NewTextReader strips a leading byte order mark and replaces invalid UTF-8
// with U+FFFD as the stream is read. A UTF-16 BOM switches decoding to
// UTF-16, which is what Excel's "Unicode Text" export produces.
func NewTextReader(r io.Reader) io.Reader {
	return transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
}

// CountingReader tracks bytes read and enforces an optional limit.
type CountingReader struct {
	r   io.Reader
	n   int64
	max int64 // 0 means unlimited
}

// NewCountingReader wraps r. Reading past max bytes fails with core.ErrFileTooLarge.
func NewCountingReader(r io.Reader, max int64) *CountingReader {
	return &CountingReader{r: r, max: max}
}

// Read implements io.Reader.
func (c *CountingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	if c.max > 0 && c.n > c.max {
		return n, fmt.Errorf("%w: more than %d bytes", core.ErrFileTooLarge, c.max)
	}
	return n, err
}

// BytesRead returns the number of bytes read so far.
func (c *CountingReader) BytesRead() int64 {
	return c.n
}
