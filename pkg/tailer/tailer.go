// Package tailer follows a growing access log.
package tailer

import (
	"context"
	"io"

	"github.com/hpcloud/tail"

	"github.com/papaganelli/visitlog/pkg/parser"
)

// TailLines follows path and sends each new line on the returned channel until
// ctx is done. With fromEnd set, lines already in the file are skipped. The
// file may not exist yet; it is picked up once created.
func TailLines(ctx context.Context, path string, fromEnd bool) (<-chan string, error) {
	config := tail.Config{Follow: true, ReOpen: true, MustExist: false, Logger: tail.DiscardingLogger}
	if fromEnd {
		config.Location = &tail.SeekInfo{Offset: 0, Whence: io.SeekEnd}
	}
	t, err := tail.TailFile(path, config)
	if err != nil {
		return nil, err
	}
	out := make(chan string)
	go func() {
		defer close(out)
		defer t.Cleanup()
		for {
			select {
			case <-ctx.Done():
				_ = t.Stop()
				return
			case line, ok := <-t.Lines:
				if !ok {
					return
				}
				if line.Err != nil {
					continue
				}
				select {
				case out <- line.Text:
				case <-ctx.Done():
					_ = t.Stop()
					return
				}
			}
		}
	}()
	return out, nil
}

// FollowRecords tails path and parses each line with p. Lines that match no
// grammar are dropped; observe, if non-nil, sees every parse result including
// the nil ones.
func FollowRecords(ctx context.Context, path string, fromEnd bool, p *parser.Parser, observe func(*parser.Record)) (<-chan parser.Record, error) {
	lines, err := TailLines(ctx, path, fromEnd)
	if err != nil {
		return nil, err
	}
	if p == nil {
		p = parser.New(nil)
	}
	out := make(chan parser.Record)
	go func() {
		defer close(out)
		for line := range lines {
			if line == "" {
				continue
			}
			rec := p.ParseLine(line)
			if observe != nil {
				observe(rec)
			}
			if rec == nil {
				continue
			}
			select {
			case out <- *rec:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
