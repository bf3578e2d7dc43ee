// Package source reads raw access-log lines from local files and S3 objects.
package source

import (
	"bufio"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"
)

// ErrNotFound is returned when a log file or object does not exist.
var ErrNotFound = errors.New("log source not found")

// maxLine bounds a single log line; nginx lines with long user agents and
// referrers stay well below it.
const maxLine = 1 << 20

// Source is one log, local or remote.
type Source interface {
	Name() string
	Open(ctx context.Context) (io.ReadCloser, error)
}

// File is a local log file. Names ending in .gz are decompressed.
type File struct {
	Path string
}

func (f File) Name() string { return f.Path }

func (f File) Open(_ context.Context) (io.ReadCloser, error) {
	fh, err := os.Open(f.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, f.Path)
		}
		return nil, fmt.Errorf("open %s: %w", f.Path, err)
	}
	if !strings.HasSuffix(f.Path, ".gz") {
		return fh, nil
	}
	return gunzip(fh, f.Path)
}

type gzipReadCloser struct {
	*gzip.Reader
	underlying io.Closer
}

func (g gzipReadCloser) Close() error {
	return errors.Join(g.Reader.Close(), g.underlying.Close())
}

func gunzip(rc io.ReadCloser, name string) (io.ReadCloser, error) {
	zr, err := gzip.NewReader(rc)
	if err != nil {
		rc.Close()
		return nil, fmt.Errorf("decompress %s: %w", name, err)
	}
	return gzipReadCloser{Reader: zr, underlying: rc}, nil
}

// ReadLines reads every line of src, giving up once timeout elapses or ctx is
// done. A non-positive timeout only honours ctx.
func ReadLines(ctx context.Context, src Source, timeout time.Duration) ([]string, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	rc, err := src.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var lines []string
	scanner := bufio.NewScanner(rc)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLine)
	for scanner.Scan() {
		if len(lines)%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return lines, fmt.Errorf("read %s: %w", src.Name(), err)
			}
		}
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return lines, fmt.Errorf("read %s: %w", src.Name(), err)
	}
	if err := ctx.Err(); err != nil {
		return lines, fmt.Errorf("read %s: %w", src.Name(), err)
	}
	return lines, nil
}
