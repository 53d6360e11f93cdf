package sink

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"sentry/internal/domain"
	"sentry/internal/metrics"
)

// TimeLayout is the wall-clock format of the timestamp column.
const TimeLayout = "15:04:05"

// Header is the fixed column schema of the result stream.
var Header = []string{"timestamp", "score", "is_threat", "log", "analysis"}

// CSVSink appends result rows to a CSV file. Every row is encoded in memory
// and written with a single write on an O_APPEND descriptor, so a concurrent
// reader sees either the whole row or none of it.
type CSVSink struct {
	mu    sync.Mutex
	path  string
	file  *os.File
	fsync bool
	last  time.Time
}

type Option func(*CSVSink)

// WithFsync syncs the file after every row.
func WithFsync(enabled bool) Option {
	return func(s *CSVSink) {
		s.fsync = enabled
	}
}

// OpenCSV opens the stream at path. With reset the file is truncated and the
// header rewritten; otherwise rows are appended and the header is written only
// if the file is new or empty.
func OpenCSV(path string, reset bool, opts ...Option) (*CSVSink, error) {
	flags := os.O_CREATE | os.O_WRONLY | os.O_APPEND
	if reset {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open result stream %s: %w", path, err)
	}

	s := &CSVSink{path: path, file: f}
	for _, opt := range opts {
		opt(s)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat result stream %s: %w", path, err)
	}
	if info.Size() == 0 {
		if err := s.write(Header); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to write header to %s: %w", path, err)
		}
	}

	return s, nil
}

// Append writes one row. Timestamps earlier than the previous row are raised
// to it so the stream stays ordered when the wall clock steps back.
func (s *CSVSink) Append(row domain.ResultRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return fmt.Errorf("result stream %s is closed", s.path)
	}

	ts := row.Timestamp
	if ts.Before(s.last) {
		ts = s.last
	}
	s.last = ts

	record := []string{
		ts.Format(TimeLayout),
		strconv.FormatFloat(row.Score, 'f', 4, 64),
		strconv.FormatBool(row.IsThreat),
		singleLine(row.Log),
		singleLine(row.Analysis),
	}
	if err := s.write(record); err != nil {
		return fmt.Errorf("failed to append to %s: %w", s.path, err)
	}
	metrics.RowsAppended.Inc()
	return nil
}

// singleLine keeps every row on one physical line, so a reader can tell a
// complete row by its trailing newline.
func singleLine(s string) string {
	if !strings.ContainsAny(s, "\r\n") {
		return s
	}
	return strings.Join(strings.Fields(strings.NewReplacer("\r", " ", "\n", " ").Replace(s)), " ")
}

func (s *CSVSink) write(record []string) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(record); err != nil {
		return err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}

	if _, err := s.file.Write(buf.Bytes()); err != nil {
		return err
	}
	if s.fsync {
		return s.file.Sync()
	}
	return nil
}

func (s *CSVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

// ReadRows parses the stream at path. A positive limit keeps only the last
// limit rows. Timestamps carry only the time of day. Bytes after the last
// newline belong to a row still being written and are ignored.
func ReadRows(path string, limit int) ([]domain.ResultRow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	data = data[:bytes.LastIndexByte(data, '\n')+1]

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = len(Header)

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header of %s: %w", path, err)
	}
	for i, col := range Header {
		if header[i] != col {
			return nil, fmt.Errorf("%s: unexpected column %q at %d, want %q", path, header[i], i, col)
		}
	}

	var rows []domain.ResultRow
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		row, err := parseRow(record)
		if err != nil {
			line, _ := r.FieldPos(0)
			return nil, fmt.Errorf("%s line %d: %w", path, line, err)
		}
		rows = append(rows, row)
	}

	if limit > 0 && len(rows) > limit {
		rows = rows[len(rows)-limit:]
	}
	return rows, nil
}

func parseRow(record []string) (domain.ResultRow, error) {
	ts, err := time.Parse(TimeLayout, record[0])
	if err != nil {
		return domain.ResultRow{}, fmt.Errorf("bad timestamp: %w", err)
	}
	score, err := strconv.ParseFloat(record[1], 64)
	if err != nil {
		return domain.ResultRow{}, fmt.Errorf("bad score: %w", err)
	}
	isThreat, err := strconv.ParseBool(record[2])
	if err != nil {
		return domain.ResultRow{}, fmt.Errorf("bad is_threat: %w", err)
	}
	return domain.ResultRow{
		Timestamp: ts,
		Score:     score,
		IsThreat:  isThreat,
		Log:       record[3],
		Analysis:  record[4],
	}, nil
}

// Status is the liveness of a result stream as seen by a polling reader.
type Status struct {
	Active    bool
	LastWrite time.Time
	Age       time.Duration
}

func (s Status) String() string {
	if s.Active {
		return "ACTIVE"
	}
	return "IDLE"
}

// Liveness reports the stream as active when it was modified within idle of now.
func Liveness(path string, idle time.Duration, now time.Time) (Status, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Status{}, err
	}
	age := now.Sub(info.ModTime())
	if age < 0 {
		age = 0
	}
	return Status{
		Active:    age <= idle,
		LastWrite: info.ModTime(),
		Age:       age,
	}, nil
}
