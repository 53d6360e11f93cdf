package fs

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"sentry/internal/domain"
)

// maxLineBytes bounds a single log line. Longer lines fail the load.
const maxLineBytes = 1 << 20

// ExpandPaths resolves pattern to a sorted list of regular files. A pattern
// without glob metacharacters must name an existing file.
func ExpandPaths(pattern string) ([]string, error) {
	if pattern == "" {
		return nil, fmt.Errorf("empty input path")
	}

	if !hasMeta(pattern) {
		info, err := os.Stat(pattern)
		if err != nil {
			return nil, fmt.Errorf("input %s: %w", pattern, err)
		}
		if info.IsDir() {
			return nil, fmt.Errorf("input %s is a directory, use a glob such as %s/**/*.log", pattern, pattern)
		}
		return []string{pattern}, nil
	}

	matches, err := doublestar.FilepathGlob(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %s: %w", pattern, err)
	}

	files := make([]string, 0, len(matches))
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil || info.IsDir() {
			continue
		}
		files = append(files, m)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no files match %s", pattern)
	}
	sort.Strings(files)
	return files, nil
}

func hasMeta(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[{")
}

// LoadLines reads every non-blank line from the files matching pattern, in
// file order then line order. Lines are trimmed of surrounding whitespace.
func LoadLines(pattern string) ([]string, error) {
	paths, err := ExpandPaths(pattern)
	if err != nil {
		return nil, err
	}

	var lines []string
	for _, path := range paths {
		fileLines, err := readLines(path)
		if err != nil {
			return nil, err
		}
		lines = append(lines, fileLines...)
	}
	return lines, nil
}

// LoadRecords is LoadLines with positions assigned after blank lines are dropped.
func LoadRecords(pattern string) ([]domain.Record, error) {
	lines, err := LoadLines(pattern)
	if err != nil {
		return nil, err
	}
	records := make([]domain.Record, len(lines))
	for i, line := range lines {
		records[i] = domain.Record{Position: i, Text: line}
	}
	return records, nil
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return lines, nil
}
