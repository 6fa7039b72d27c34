package repositories

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tropicaldog17/pricestore/internal/models"
)

// DefaultIndexInterval is how many records separate two sparse index samples.
const DefaultIndexInterval = 32

// indexEntry maps the date of every interval-th record to its byte offset.
type indexEntry struct {
	date   time.Time
	offset int64
}

// seek returns the offset of the last sampled record dated on or before date,
// or 0 when the date precedes every sample.
func seek(entries []indexEntry, date time.Time) int64 {
	i := sort.Search(len(entries), func(i int) bool {
		return entries[i].date.After(date)
	})
	if i == 0 {
		return 0
	}
	return entries[i-1].offset
}

func formatIndexLine(e indexEntry) string {
	return e.date.Format(models.DateLayout) + " " + strconv.FormatInt(e.offset, 10) + "\n"
}

// readIndexFile loads a companion index. A missing file yields (nil, nil).
func readIndexFile(path string) ([]indexEntry, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var entries []indexEntry
	sc := bufio.NewScanner(bytes.NewReader(data))
	for n := 1; sc.Scan(); n++ {
		parts := strings.Fields(sc.Text())
		if len(parts) != 2 {
			return nil, fmt.Errorf("index line %d: expected 2 fields", n)
		}
		d, err := time.Parse(models.DateLayout, parts[0])
		if err != nil {
			return nil, fmt.Errorf("index line %d: %w", n, err)
		}
		off, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil || off < 0 {
			return nil, fmt.Errorf("index line %d: bad offset %q", n, parts[1])
		}
		if len(entries) > 0 {
			prev := entries[len(entries)-1]
			if !d.After(prev.date) || off <= prev.offset {
				return nil, fmt.Errorf("index line %d: not increasing", n)
			}
		}
		entries = append(entries, indexEntry{date: d, offset: off})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func encodeIndex(entries []indexEntry) []byte {
	var b strings.Builder
	for _, e := range entries {
		b.WriteString(formatIndexLine(e))
	}
	return []byte(b.String())
}

func sameIndex(a, b []indexEntry) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].offset != b[i].offset || !a[i].date.Equal(b[i].date) {
			return false
		}
	}
	return true
}

// writeFileAtomic replaces path with data through a synced temp file and a rename,
// so readers of path see either the old or the new content.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*"+tmpSuffix)
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return err
	}
	return syncDir(dir)
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}
