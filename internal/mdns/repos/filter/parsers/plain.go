package parsers

import (
	"bufio"
	"io"
	"strings"
	"time"

	logpkg "github.com/haukened/rr-mdns/internal/mdns/common/log"
	"github.com/haukened/rr-mdns/internal/mdns/domain"
)

// ParsePlainList parses a newline-delimited list of names into IgnoreRule values.
// Default is exact; leading "*." or "." indicates suffix (apex-inclusive),
// e.g. "*._ipp._tcp.local" hides every IPP printer.
//
// Behavior:
// - Supports comments starting with '#' (inline or whole-line)
// - Instance labels containing dots are written with "\." escapes
// - Skips empty and invalid lines
// - De-duplicates by canonical name and kind, preserving first-seen order
func ParsePlainList(r io.Reader, source string, logger logpkg.Logger, now time.Time) ([]domain.IgnoreRule, error) {
	scanner := bufio.NewScanner(r)

	seen := make(map[string]struct{})
	out := make([]domain.IgnoreRule, 0, 16)
	logger.Debug(map[string]any{"source": source}, "parse_plain_list_start")
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimPrefix(scanner.Text(), "\uFEFF")

		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		if idx := strings.IndexByte(trimmed, '#'); idx >= 0 {
			trimmed = strings.TrimSpace(trimmed[:idx])
		}

		kind := ruleKindFromRaw(trimmed)
		name := normalizeName(trimmed)
		if !isValidName(name) {
			logger.Debug(map[string]any{"line": lineNum, "raw": trimmed, "name": name}, "skip_invalid_name")
			continue
		}

		seenKey := name + "|" + kind.String()
		if _, ok := seen[seenKey]; ok {
			logger.Debug(map[string]any{"line": lineNum, "name": name, "kind": kind.String()}, "skip_duplicate")
			continue
		}

		rule, err := domain.NewIgnoreRule(name, kind, source, now)
		if err != nil {
			logger.Debug(map[string]any{"line": lineNum, "name": name, "error": err.Error()}, "skip_constructor_error")
			continue
		}
		out = append(out, rule)
		seen[seenKey] = struct{}{}
	}

	if err := scanner.Err(); err != nil {
		logger.Debug(map[string]any{"source": source, "error": err.Error()}, "parse_plain_list_scan_error")
		return nil, err
	}
	logger.Debug(map[string]any{"source": source, "count": len(out)}, "parse_plain_list_done")
	return out, nil
}
