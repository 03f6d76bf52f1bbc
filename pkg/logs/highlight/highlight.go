// Package highlight annotates log text with style spans using a fixed,
// ordered rule set. It is pure: the same input always produces the same
// spans, and spans never overlap.
package highlight

import "regexp"

// Category identifies the kind of text a span covers. The paint layer maps
// categories to concrete styles; this package never deals in colors.
type Category uint8

const (
	CatNone Category = iota
	CatQuoted
	CatTimestamp
	CatLevelError
	CatLevelWarn
	CatLevelInfo
	CatLevelDebug
	CatLevelTrace
	CatURL
	CatEmail
	CatPath
	CatUUID
	CatMAC
	CatIP
	CatHex
	CatHTTPMethod
	CatHTTPStatus
	CatKey
	CatSize
	CatDuration
	CatBool
	CatNull
	CatNumber
	CatJSONKey
	CatJSONString
	CatJSONNumber
	CatJSONBool
	CatJSONNull
	CatPunct
	CatMarker
)

// Span is a half-open byte range [Start, End) over the input text.
type Span struct {
	Start int
	End   int
	Cat   Category
}

// MaxScan bounds how many bytes of a line are scanned for patterns. Text
// past the bound renders unstyled so pathological lines stay cheap.
var MaxScan = 4096

// Rule is one ordered pattern. Earlier rules claim character positions
// first; later rules only style positions still unclaimed.
type Rule struct {
	Name  string
	Cat   Category
	re    *regexp.Regexp
	group int // submatch index that is claimed; 0 claims the whole match
}

var rules = []Rule{
	{"double_quoted", CatQuoted, regexp.MustCompile(`"(?:[^"\\]|\\.)*"`), 0},
	{"single_quoted", CatQuoted, regexp.MustCompile(`'(?:[^'\\]|\\.)*'`), 0},
	{"timestamp_iso", CatTimestamp, regexp.MustCompile(`\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}(?:[.,]\d+)?(?:Z|[+-]\d{2}:?\d{2})?`), 0},
	{"timestamp_syslog", CatTimestamp, regexp.MustCompile(`\b[A-Z][a-z]{2} +\d{1,2} \d{2}:\d{2}:\d{2}\b`), 0},
	{"timestamp_bare", CatTimestamp, regexp.MustCompile(`\b\d{2}:\d{2}:\d{2}(?:[.,]\d+)?\b`), 0},
	{"level_error", CatLevelError, regexp.MustCompile(`(?i)\b(?:error|err|fatal|critical|crit|panic|failed|failure|fail)\b`), 0},
	{"level_warn", CatLevelWarn, regexp.MustCompile(`(?i)\b(?:warning|warn)\b`), 0},
	{"level_info", CatLevelInfo, regexp.MustCompile(`(?i)\b(?:info|notice)\b`), 0},
	{"level_debug", CatLevelDebug, regexp.MustCompile(`(?i)\bdebug\b`), 0},
	{"level_trace", CatLevelTrace, regexp.MustCompile(`(?i)\b(?:trace|verbose)\b`), 0},
	{"url", CatURL, regexp.MustCompile(`\bhttps?://[^\s"'<>]+`), 0},
	{"email", CatEmail, regexp.MustCompile(`\b[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}\b`), 0},
	{"windows_path", CatPath, regexp.MustCompile(`\b[A-Za-z]:\\[^\s"':*?<>|]+`), 0},
	{"unix_path", CatPath, regexp.MustCompile(`(?:^|[\s=(\[])(/[\w./-]+)`), 1},
	{"uuid", CatUUID, regexp.MustCompile(`\b[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}\b`), 0},
	{"mac", CatMAC, regexp.MustCompile(`\b(?:[0-9a-fA-F]{2}:){5}[0-9a-fA-F]{2}\b`), 0},
	{"ipv6", CatIP, regexp.MustCompile(`\b(?:[0-9a-fA-F]{1,4}:){3,7}[0-9a-fA-F]{1,4}\b`), 0},
	{"ipv4", CatIP, regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}(?::\d{1,5})?\b`), 0},
	{"hex_literal", CatHex, regexp.MustCompile(`\b0x[0-9a-fA-F]+\b`), 0},
	{"hash", CatHex, regexp.MustCompile(`\b[0-9a-f]{12,64}\b`), 0},
	{"http_method", CatHTTPMethod, regexp.MustCompile(`\b(?:GET|POST|PUT|DELETE|PATCH|HEAD|OPTIONS|CONNECT|TRACE)\b`), 0},
	{"http_status", CatHTTPStatus, regexp.MustCompile(`(?:^|[\s"])([1-5]\d{2})(?:[\s",;)\]]|$)`), 1},
	{"kv_key", CatKey, regexp.MustCompile(`(?:^|\s)([A-Za-z_][\w.-]*)=`), 1},
	{"size", CatSize, regexp.MustCompile(`(?i)\b\d+(?:\.\d+)?\s?(?:B|KB|KiB|MB|MiB|GB|GiB|TB|TiB)\b`), 0},
	{"duration", CatDuration, regexp.MustCompile(`\b\d+(?:\.\d+)?(?:ns|µs|us|ms|s|m|h)\b`), 0},
	{"bool", CatBool, regexp.MustCompile(`\b(?:true|false)\b`), 0},
	{"null", CatNull, regexp.MustCompile(`(?i)\b(?:null|nil|none)\b`), 0},
	{"number", CatNumber, regexp.MustCompile(`\b\d+(?:\.\d+)?\b`), 0},
}

// Highlight returns the non-overlapping style spans for text, in order.
// Positions are claimed rule by rule: a position styled by an earlier rule
// is never restyled, so quoted regions mask the patterns inside them.
func Highlight(text string) []Span {
	if text == "" {
		return nil
	}
	limit := len(text)
	if limit > MaxScan {
		limit = MaxScan
	}
	scan := text[:limit]

	claimed := make([]Category, limit)
	for _, r := range rules {
		for _, m := range r.re.FindAllStringSubmatchIndex(scan, -1) {
			s, e := m[2*r.group], m[2*r.group+1]
			if s < 0 || e <= s {
				continue
			}
			for i := s; i < e; i++ {
				if claimed[i] == CatNone {
					claimed[i] = r.Cat
				}
			}
		}
	}

	var spans []Span
	for i := 0; i < limit; {
		cat := claimed[i]
		j := i + 1
		for j < limit && claimed[j] == cat {
			j++
		}
		if cat != CatNone {
			spans = append(spans, Span{Start: i, End: j, Cat: cat})
		}
		i = j
	}
	return spans
}
