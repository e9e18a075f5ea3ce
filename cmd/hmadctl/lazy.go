package main

import (
	"io"
	"os"
)

// lazyWriteCloser delays initialization until the first write, so a command
// that fails before producing output leaves no empty file behind.
type lazyWriteCloser struct {
	init   func() (io.WriteCloser, error)
	writer io.WriteCloser
}

func newLazyWriteCloser(init func() (io.WriteCloser, error)) *lazyWriteCloser {
	return &lazyWriteCloser{init: init}
}

// newLazyFile opens path for writing, truncating it, on first write.
func newLazyFile(path string) *lazyWriteCloser {
	return newLazyWriteCloser(func() (io.WriteCloser, error) {
		return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	})
}

func (f *lazyWriteCloser) Write(p []byte) (int, error) {
	if f.writer == nil {
		var err error
		f.writer, err = f.init()
		if err != nil {
			return 0, err
		}
	}
	return f.writer.Write(p)
}

func (f *lazyWriteCloser) Close() error {
	if f.writer != nil {
		return f.writer.Close()
	}
	return nil
}

// nopWriteCloser keeps the app writer (stdout) open when a command closes its
// output.
type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
