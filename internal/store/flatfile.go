package store

import (
	"context"
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"asv-survey/internal/survey"
)

var baseColumns = []string{"date", "time", "latitude", "longitude", "timestamp", "asvid", "sonde_serials"}

// FlatFile appends records to <dir>/<mission>.csv. A header row is written
// whenever the parameter columns change.
type FlatFile struct {
	path string

	mu      sync.Mutex
	f       *os.File
	w       *csv.Writer
	columns []string
	rows    int
	bytes   int64
}

func OpenFlatFile(dir, mission string) (*FlatFile, error) {
	if mission == "" {
		return nil, fmt.Errorf("store flat file: mission is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, mission+".csv")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("store flat file open %s: %w", path, err)
	}
	var size int64
	if st, err := f.Stat(); err == nil {
		size = st.Size()
	}
	return &FlatFile{path: path, f: f, w: csv.NewWriter(f), bytes: size}, nil
}

func (ff *FlatFile) Name() string { return "csv" }
func (ff *FlatFile) Path() string { return ff.path }

func (ff *FlatFile) Save(_ context.Context, r survey.Record) error {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	if ff.f == nil {
		return fmt.Errorf("store flat file closed")
	}

	names := r.ParamNames()
	cols := append(slices.Clone(baseColumns), names...)
	if !slices.Equal(cols, ff.columns) {
		if err := ff.w.Write(cols); err != nil {
			return err
		}
		ff.columns = cols
	}

	row := []string{
		r.Date,
		r.Time,
		strconv.FormatFloat(r.Latitude, 'f', 7, 64),
		strconv.FormatFloat(r.Longitude, 'f', 7, 64),
		r.Timestamp.Format(time.RFC3339Nano),
		r.Metadata.VehicleID,
		strings.Join(r.Metadata.SondeSerials, ";"),
	}
	for _, n := range names {
		row = append(row, strconv.FormatFloat(r.Params[n], 'f', -1, 64))
	}
	if err := ff.w.Write(row); err != nil {
		return err
	}
	ff.w.Flush()
	if err := ff.w.Error(); err != nil {
		return fmt.Errorf("store flat file write: %w", err)
	}
	ff.rows++
	if st, err := ff.f.Stat(); err == nil {
		ff.bytes = st.Size()
	}
	return nil
}

// Stats is a human-readable summary for logs and the status API.
func (ff *FlatFile) Stats() string {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	return fmt.Sprintf("%s rows=%s size=%s", ff.path, humanize.Comma(int64(ff.rows)), humanize.Bytes(uint64(ff.bytes)))
}

func (ff *FlatFile) Close() error {
	ff.mu.Lock()
	if ff.f == nil {
		ff.mu.Unlock()
		return nil
	}
	ff.w.Flush()
	err := ff.f.Close()
	ff.f = nil
	ff.mu.Unlock()
	log.Printf("store: closed %s", ff.Stats())
	return err
}
