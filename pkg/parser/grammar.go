package parser

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Grammar names, in default priority order.
const (
	GrammarExtended = "extended"
	GrammarTracking = "tracking"
	GrammarCombined = "combined"
)

// Grammar is one named access log line format.
type Grammar struct {
	Name    string
	pattern *regexp.Regexp
	extract func(m []string) fields
}

// Match applies the grammar to line. The bool is false when the line does not
// fit the grammar or one of its fields cannot be decoded.
func (g Grammar) Match(line string, loc *time.Location) (Record, bool) {
	m := g.pattern.FindStringSubmatch(line)
	if m == nil {
		return Record{}, false
	}
	f := g.extract(m)
	return f.record(g.Name, loc)
}

// fields holds the raw captures of a grammar before decoding.
type fields struct {
	remote      string
	timestamp   string
	request     string
	status      string
	bytes       string
	referer     string
	agent       string
	forwarded   string
	requestTime string
	upstream    string
	headers     [8]string // accept-language, accept-encoding, connection, upgrade, sec-fetch-{dest,mode,site,user}
}

// extendedRegex: combined + forwarded-for + real-ip + upstream timings + header echoes.
var extendedRegex = regexp.MustCompile(`^(\S+) \S+ \S+ \[([^\]]+)\] "([^"]*)" (\d{3}) (\d+|-) "([^"]*)" "([^"]*)" "([^"]*)" "([^"]*)" rt=(\S+) uct="([^"]*)" uht="([^"]*)" urt="([^"]*)" ua="([^"]*)" us="([^"]*)"$`)

// trackingRegex: combined + forwarded-for + request time + header echoes, no upstream timing.
var trackingRegex = regexp.MustCompile(`^(\S+) \S+ \S+ \[([^\]]+)\] "([^"]*)" (\d{3}) (\d+|-) "([^"]*)" "([^"]*)" "([^"]*)" (\S+) - (\S+) (\S+) (\S+) (\S+) (\S+) (\S+) (\S+) (\S+)$`)

// combinedRegex matches the plain nginx combined log format.
var combinedRegex = regexp.MustCompile(`^(\S+) \S+ \S+ \[([^\]]+)\] "([^"]*)" (\d{3}) (\d+|-) "([^"]*)" "([^"]*)"$`)

// requestRegex decomposes "METHOD PATH HTTP/VERSION".
var requestRegex = regexp.MustCompile(`^(\S+) (\S+) (HTTP/\S+)$`)

// DefaultGrammars returns the built-in grammars in priority order.
func DefaultGrammars() []Grammar {
	return []Grammar{
		{
			Name:    GrammarExtended,
			pattern: extendedRegex,
			extract: func(m []string) fields {
				return fields{
					remote:      m[1],
					timestamp:   m[2],
					request:     m[3],
					status:      m[4],
					bytes:       m[5],
					referer:     m[6],
					agent:       m[7],
					forwarded:   m[8],
					requestTime: m[10],
					upstream:    m[13],
				}
			},
		},
		{
			Name:    GrammarTracking,
			pattern: trackingRegex,
			extract: func(m []string) fields {
				f := fields{
					remote:      m[1],
					timestamp:   m[2],
					request:     m[3],
					status:      m[4],
					bytes:       m[5],
					referer:     m[6],
					agent:       m[7],
					forwarded:   m[8],
					requestTime: m[9],
				}
				copy(f.headers[:], m[10:18])
				return f
			},
		},
		{
			Name:    GrammarCombined,
			pattern: combinedRegex,
			extract: func(m []string) fields {
				return fields{
					remote:    m[1],
					timestamp: m[2],
					request:   m[3],
					status:    m[4],
					bytes:     m[5],
					referer:   m[6],
					agent:     m[7],
				}
			},
		},
	}
}

func (f fields) record(grammar string, loc *time.Location) (Record, bool) {
	req := requestRegex.FindStringSubmatch(f.request)
	if req == nil {
		return Record{}, false
	}
	ts, err := ParseTimestamp(f.timestamp, loc)
	if err != nil {
		return Record{}, false
	}
	status, err := strconv.Atoi(f.status)
	if err != nil {
		return Record{}, false
	}
	var bytes int64
	if f.bytes != "-" {
		if bytes, err = strconv.ParseInt(f.bytes, 10, 64); err != nil {
			return Record{}, false
		}
	}

	return Record{
		Time:                 ts,
		Address:              ResolveAddress(f.remote, f.forwarded),
		RemoteAddr:           f.remote,
		Method:               req[1],
		Path:                 req[2],
		Protocol:             req[3],
		Status:               status,
		Bytes:                bytes,
		Referer:              dash(f.referer),
		UserAgent:            dash(f.agent),
		RequestTime:          seconds(f.requestTime),
		UpstreamResponseTime: seconds(f.upstream),
		AcceptLanguage:       dash(f.headers[0]),
		AcceptEncoding:       dash(f.headers[1]),
		Connection:           dash(f.headers[2]),
		Upgrade:              dash(f.headers[3]),
		SecFetchDest:         dash(f.headers[4]),
		SecFetchMode:         dash(f.headers[5]),
		SecFetchSite:         dash(f.headers[6]),
		SecFetchUser:         dash(f.headers[7]),
		Grammar:              grammar,
	}, true
}

// dash maps nginx's "-" placeholder to the empty string.
func dash(s string) string {
	if s == "-" {
		return ""
	}
	return s
}

// seconds decodes an nginx timing field. Upstream timings may list several
// comma separated values when nginx retried; the first is kept.
func seconds(s string) float64 {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, ','); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}

// ResolveAddress returns the real client address: the first entry of the
// forwarded-for header when present, otherwise the socket address.
// An IPv4-mapped IPv6 prefix is stripped.
func ResolveAddress(remote, forwarded string) string {
	addr := remote
	if f := strings.TrimSpace(forwarded); f != "" && f != "-" && !strings.EqualFold(f, "unknown") {
		if first := strings.TrimSpace(strings.Split(f, ",")[0]); first != "" {
			addr = first
		}
	}
	if len(addr) > 7 && strings.EqualFold(addr[:7], "::ffff:") {
		addr = addr[7:]
	}
	if addr == "" {
		return "unknown"
	}
	return addr
}
