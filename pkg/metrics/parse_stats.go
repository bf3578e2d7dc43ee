package metrics

import (
	"maps"
	"sync"

	"github.com/papaganelli/visitlog/pkg/parser"
)

// ParseStats counts parsed and skipped lines per grammar. It is safe for
// concurrent use.
type ParseStats struct {
	mu        sync.Mutex
	lines     int
	skipped   int
	byGrammar map[string]int
}

// NewParseStats returns empty counters.
func NewParseStats() *ParseStats {
	return &ParseStats{byGrammar: make(map[string]int)}
}

// Observe counts one parse result; a nil record is a skipped line.
func (s *ParseStats) Observe(rec *parser.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines++
	if rec == nil {
		s.skipped++
		return
	}
	s.byGrammar[rec.Grammar]++
}

// AddBatch adds the counts of a parsed batch.
func (s *ParseStats) AddBatch(b parser.Batch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines += b.Lines
	s.skipped += b.Skipped
	for g, n := range b.ByGrammar {
		s.byGrammar[g] += n
	}
}

// ParseSnapshot is a point-in-time copy of ParseStats.
type ParseSnapshot struct {
	Lines     int            `json:"lines"`
	Parsed    int            `json:"parsed"`
	Skipped   int            `json:"skipped"`
	ByGrammar map[string]int `json:"byGrammar"`
}

// SkipRate returns the fraction of lines skipped.
func (p ParseSnapshot) SkipRate() float64 {
	if p.Lines == 0 {
		return 0
	}
	return float64(p.Skipped) / float64(p.Lines)
}

// Snapshot copies the current counters.
func (s *ParseStats) Snapshot() ParseSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ParseSnapshot{
		Lines:     s.lines,
		Parsed:    s.lines - s.skipped,
		Skipped:   s.skipped,
		ByGrammar: maps.Clone(s.byGrammar),
	}
}
