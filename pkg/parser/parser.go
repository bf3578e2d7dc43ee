// Package parser turns raw nginx access log lines into normalized request records.
package parser

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// Record represents one normalized request observation from an access log.
// Records are never mutated once returned by the parser.
type Record struct {
	Time                 time.Time `json:"timestamp"`
	Address              string    `json:"ipAddress"`
	RemoteAddr           string    `json:"remoteAddr"`
	Method               string    `json:"method"`
	Path                 string    `json:"path"`
	Protocol             string    `json:"protocol"`
	Status               int       `json:"statusCode"`
	Bytes                int64     `json:"bytesSent"`
	Referer              string    `json:"referer"`
	UserAgent            string    `json:"userAgent"`
	RequestTime          float64   `json:"requestTime"`          // seconds
	UpstreamResponseTime float64   `json:"upstreamResponseTime"` // seconds
	AcceptLanguage       string    `json:"acceptLanguage,omitempty"`
	AcceptEncoding       string    `json:"acceptEncoding,omitempty"`
	Connection           string    `json:"connection,omitempty"`
	Upgrade              string    `json:"upgrade,omitempty"`
	SecFetchDest         string    `json:"secFetchDest,omitempty"`
	SecFetchMode         string    `json:"secFetchMode,omitempty"`
	SecFetchSite         string    `json:"secFetchSite,omitempty"`
	SecFetchUser         string    `json:"secFetchUser,omitempty"`
	Grammar              string    `json:"grammar"`
}

// Batch is the result of parsing many lines. Unparseable lines are counted, not returned.
type Batch struct {
	Records   []Record
	Lines     int // non-blank lines seen
	Skipped   int
	ByGrammar map[string]int
}

// Parser matches lines against an ordered grammar list and normalizes
// timestamps into a single target location.
type Parser struct {
	loc      *time.Location
	grammars []Grammar
}

// New creates a Parser that renders timestamps in loc using the default grammars.
// A nil loc selects DefaultLocation.
func New(loc *time.Location) *Parser {
	if loc == nil {
		loc = DefaultLocation()
	}
	return &Parser{loc: loc, grammars: DefaultGrammars()}
}

// Location returns the target timezone of the parser.
func (p *Parser) Location() *time.Location {
	return p.loc
}

// Grammars returns the grammar names in match priority order.
func (p *Parser) Grammars() []string {
	names := make([]string, len(p.grammars))
	for i, g := range p.grammars {
		names[i] = g.Name
	}
	return names
}

// ErrNoGrammar is returned by Parse for lines no grammar accepts.
var ErrNoGrammar = errors.New("no grammar matches line")

// Parse parses a single access log line. Grammars are tried in priority
// order and the first match wins.
func (p *Parser) Parse(line string) (Record, error) {
	line = strings.TrimRight(line, "\r\n")
	for _, g := range p.grammars {
		if rec, ok := g.Match(line, p.loc); ok {
			return rec, nil
		}
	}
	return Record{}, fmt.Errorf("%w: %.60q", ErrNoGrammar, line)
}

// ParseLine is Parse for callers that only skip bad lines.
// Returns nil if no grammar matches or the matched fields are invalid.
func (p *Parser) ParseLine(line string) *Record {
	rec, err := p.Parse(line)
	if err != nil {
		return nil
	}
	return &rec
}

// ParseLines parses every non-blank line, skipping the ones that match no grammar.
func (p *Parser) ParseLines(lines []string) Batch {
	b := Batch{ByGrammar: make(map[string]int)}
	for _, line := range lines {
		p.add(&b, line)
	}
	return b
}

// ParseReader parses newline-delimited log text from r.
// Only read errors are returned; malformed lines are skipped.
func (p *Parser) ParseReader(r io.Reader) (Batch, error) {
	b := Batch{ByGrammar: make(map[string]int)}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		p.add(&b, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return b, fmt.Errorf("scan log lines: %w", err)
	}
	return b, nil
}

func (p *Parser) add(b *Batch, line string) {
	if strings.TrimSpace(line) == "" {
		return
	}
	b.Lines++
	rec := p.ParseLine(line)
	if rec == nil {
		b.Skipped++
		return
	}
	b.Records = append(b.Records, *rec)
	b.ByGrammar[rec.Grammar]++
}

var defaultParser = New(nil)

// ParseLine parses line with a parser targeting DefaultLocation.
func ParseLine(line string) *Record {
	return defaultParser.ParseLine(line)
}
