package storage

import "io"

type progressReader struct {
	r  io.Reader
	fn func(int64)
}

// withProgress reports bytes as they are consumed from r.
func withProgress(r io.Reader, fn func(int64)) io.Reader {
	if fn == nil {
		return r
	}
	return &progressReader{r: r, fn: fn}
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.fn(int64(n))
	}
	return n, err
}
