package bulk

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strconv"
	"strings"
)

// ErrIndexFormat is returned when an index line cannot be parsed.
var ErrIndexFormat = errors.New("bulk: malformed index line")

// ErrIndexOrder is returned when index offsets are not monotonically
// increasing.
var ErrIndexOrder = errors.New("bulk: index offsets out of order")

// Entry is one index record: a member name and its starting byte offset
// within the bulk file.
type Entry struct {
	Name   string
	Offset int64
}

// Index is a parsed archive index. Entry order matches the physical order
// of members in the bulk file.
type Index struct {
	entries []Entry
	byName  map[string]int
}

// ReadIndex parses a plain-text index: one "<name> <offset>" line per member.
func ReadIndex(r io.Reader) (*Index, error) {
	ix := &Index{byName: make(map[string]int)}
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		name, offField, ok := strings.Cut(line, " ")
		if !ok || name == "" {
			return nil, fmt.Errorf("%w: %q", ErrIndexFormat, line)
		}
		offset, err := strconv.ParseInt(offField, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrIndexFormat, line)
		}
		if n := len(ix.entries); n > 0 && offset <= ix.entries[n-1].Offset {
			return nil, fmt.Errorf("%w: %q", ErrIndexOrder, line)
		}
		ix.byName[name] = len(ix.entries)
		ix.entries = append(ix.entries, Entry{Name: name, Offset: offset})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("bulk: read index: %w", err)
	}
	return ix, nil
}

// Len returns the number of members recorded in the index.
func (ix *Index) Len() int { return len(ix.entries) }

// Entries returns the index records in bulk-file order.
// The returned slice must not be modified.
func (ix *Index) Entries() []Entry { return ix.entries }

// Lookup returns the entry for the named member.
func (ix *Index) Lookup(name string) (Entry, bool) {
	i, ok := ix.byName[name]
	if !ok {
		return Entry{}, false
	}
	return ix.entries[i], true
}

// Span returns the byte range [start, start+length) of member i within a
// bulk file of the given total size. The last member extends to end of file.
func (ix *Index) Span(i int, size int64) (start, length int64) {
	start = ix.entries[i].Offset
	end := size
	if i+1 < len(ix.entries) {
		end = ix.entries[i+1].Offset
	}
	return start, end - start
}

// Extract reads the named member's bytes out of the bulk file.
func (ix *Index) Extract(r io.ReaderAt, size int64, name string) ([]byte, error) {
	i, ok := ix.byName[name]
	if !ok {
		return nil, fmt.Errorf("bulk: member %s: %w", name, fs.ErrNotExist)
	}
	start, length := ix.Span(i, size)
	buf := make([]byte, length)
	if _, err := r.ReadAt(buf, start); err != nil {
		return nil, fmt.Errorf("bulk: read member %s: %w", name, err)
	}
	return buf, nil
}
