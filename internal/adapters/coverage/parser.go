// Package coverage reads the coverage files written by test invocations.
package coverage

import (
	"bufio"
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"go.trai.ch/grid/internal/core/domain"
	"go.trai.ch/zerr"
	"golang.org/x/tools/cover"
)

// Parser implements ports.CoverageParser for LCOV traces and Go cover profiles.
type Parser struct{}

// NewParser creates a Parser.
func NewParser() *Parser {
	return &Parser{}
}

// Parse reads the file at path. A missing file yields an empty report.
func (p *Parser) Parse(path string, format domain.CoverageFormat) (*domain.CoverageReport, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return domain.NewCoverageReport(), nil
		}
		return nil, zerr.With(domain.Classify(domain.ErrCoverageParseFailed, err), "path", path)
	}

	var (
		report *domain.CoverageReport
		err    error
	)
	switch format {
	case domain.CoverageLCOV:
		report, err = parseLCOV(path)
	case domain.CoverageGoCover:
		report, err = parseGoCover(path)
	default:
		return nil, zerr.With(zerr.Wrap(domain.ErrUnknownCoverageFormat, "cannot parse coverage"), "format", string(format))
	}
	if err != nil {
		return nil, zerr.With(zerr.With(err, "path", path), "format", string(format))
	}
	return report, nil
}

// parseLCOV reads SF/DA records. Hits of a line listed in several records add up.
func parseLCOV(path string) (*domain.CoverageReport, error) {
	//nolint:gosec // path comes from the pipeline configuration
	f, err := os.Open(path)
	if err != nil {
		return nil, domain.Classify(domain.ErrCoverageParseFailed, err)
	}
	defer func() { _ = f.Close() }()

	report := domain.NewCoverageReport()
	var file string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		text := strings.TrimSpace(scanner.Text())
		switch {
		case strings.HasPrefix(text, "SF:"):
			file = strings.TrimPrefix(text, "SF:")
		case text == "end_of_record":
			file = ""
		case strings.HasPrefix(text, "DA:"):
			if file == "" {
				return nil, lcovError("DA record outside of SF record", lineNo)
			}
			fields := strings.Split(strings.TrimPrefix(text, "DA:"), ",")
			if len(fields) < 2 {
				return nil, lcovError("malformed DA record", lineNo)
			}
			line, err := strconv.Atoi(fields[0])
			if err != nil || line < 1 {
				return nil, lcovError("invalid line number", lineNo)
			}
			hits, err := parseHits(fields[1])
			if err != nil {
				return nil, lcovError("invalid hit count", lineNo)
			}
			// The report is fresh and never sealed.
			_ = report.Record(file, line, hits)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, domain.Classify(domain.ErrCoverageParseFailed, err)
	}
	return report, nil
}

// parseHits accepts integer counts and the float counts some generators emit.
func parseHits(s string) (uint64, error) {
	if n, err := strconv.ParseUint(s, 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 {
		return 0, strconv.ErrSyntax
	}
	return uint64(f), nil
}

func lcovError(msg string, line int) error {
	return zerr.With(zerr.Wrap(domain.ErrCoverageParseFailed, msg), "line", line)
}

// parseGoCover maps profile blocks onto lines. A line covered by several blocks keeps the
// highest count.
func parseGoCover(path string) (*domain.CoverageReport, error) {
	profiles, err := cover.ParseProfiles(path)
	if err != nil {
		return nil, domain.Classify(domain.ErrCoverageParseFailed, err)
	}

	report := domain.NewCoverageReport()
	for _, p := range profiles {
		lines := make(map[int]uint64)
		for _, b := range p.Blocks {
			for l := b.StartLine; l <= b.EndLine; l++ {
				hits := uint64(max(b.Count, 0))
				if cur, ok := lines[l]; !ok || hits > cur {
					lines[l] = hits
				}
			}
		}
		for l, hits := range lines {
			_ = report.Record(p.FileName, l, hits)
		}
	}
	return report, nil
}
