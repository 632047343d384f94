package book

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OrbitalEnterprises/evekit-source-mdtools/interval"
)

var day = time.Date(2016, 8, 31, 0, 0, 0, 0, time.UTC)

// writeSnapshot creates a raw snapshot file for region at the given capture
// offset into the day, returning its rows (header excluded).
func writeSnapshot(t *testing.T, dir string, region int64, offset time.Duration, rows ...string) []string {
	t.Helper()
	captured := day.Add(offset)
	name := fmt.Sprintf("contracts_%d_%d.csv", region, captured.UnixMilli())
	content := "contractID,price,volume\n"
	for _, row := range rows {
		content += row + "\n"
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	return rows
}

// decodeBook gunzips a member and parses the line-oriented book payload into
// per-slot (targetMillis, rows) pairs.
func decodeBook(t *testing.T, data []byte) (targets []int64, rows [][]string) {
	t.Helper()
	zr, err := gzip.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer zr.Close()

	sc := bufio.NewScanner(zr)
	readInt := func() int64 {
		require.True(t, sc.Scan())
		v, err := strconv.ParseInt(sc.Text(), 10, 64)
		require.NoError(t, err)
		return v
	}

	count := readInt()
	for i := int64(0); i < count; i++ {
		targets = append(targets, readInt())
		n := readInt()
		slotRows := make([]string, 0, n)
		for j := int64(0); j < n; j++ {
			require.True(t, sc.Scan())
			slotRows = append(slotRows, sc.Text())
		}
		rows = append(rows, slotRows)
	}
	require.False(t, sc.Scan())
	return targets, rows
}

func TestDiscoverRegions(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeSnapshot(t, dir, 10000043, 10*time.Minute, "1,2,3")
	writeSnapshot(t, dir, 10000002, 50*time.Minute, "4,5,6")
	writeSnapshot(t, dir, 10000002, 10*time.Minute, "7,8,9")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README"), []byte("ignored"), 0o644))

	regions, err := DiscoverRegions(dir)
	require.NoError(t, err)
	require.Len(t, regions, 2)

	assert.Equal(t, int64(10000002), regions[0].ID)
	assert.Equal(t, int64(10000043), regions[1].ID)

	// Snapshots sorted ascending by capture time.
	require.Len(t, regions[0].Snapshots, 2)
	assert.True(t, regions[0].Snapshots[0].Captured.Before(regions[0].Snapshots[1].Captured))
}

func TestAssembleBook(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	early := writeSnapshot(t, dir, 10000002, 10*time.Minute, "100,5.0,10", "101,6.5,3")
	late := writeSnapshot(t, dir, 10000002, 50*time.Minute, "100,5.1,9")

	regions, err := DiscoverRegions(dir)
	require.NoError(t, err)
	require.Len(t, regions, 1)

	m, err := Assemble(context.Background(), regions[0], day, day.Add(24*time.Hour), 30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "contracts_10000002_20160831_30.book.gz", m.Name)

	targets, rows := decodeBook(t, m.Data)
	require.Len(t, targets, 48)

	// Target times walk the grid in 30-minute steps.
	for i, target := range targets {
		assert.Equal(t, day.Add(time.Duration(i+1)*30*time.Minute).UnixMilli(), target)
	}

	// First slot carries the 00:10 capture, the rest the 00:50 capture.
	assert.Equal(t, early, rows[0])
	for i := 1; i < 48; i++ {
		assert.Equal(t, late, rows[i], "slot %d", i)
	}
}

func TestAssembleMissingSlots(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	rows := writeSnapshot(t, dir, 10000002, 40*time.Minute, "1,1.0,1")

	regions, err := DiscoverRegions(dir)
	require.NoError(t, err)

	m, err := Assemble(context.Background(), regions[0], day, day.Add(24*time.Hour), 30*time.Minute)
	require.NoError(t, err)

	_, got := decodeBook(t, m.Data)
	assert.Empty(t, got[0], "slot before first capture must carry no rows")
	assert.Equal(t, rows, got[1])
}

func TestAssembleEmptyRegion(t *testing.T) {
	t.Parallel()

	_, err := Assemble(context.Background(), Region{ID: 10000002}, day, day.Add(24*time.Hour), 30*time.Minute)
	require.ErrorIs(t, err, ErrNoSnapshots)
}

func TestAssembleBadStep(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeSnapshot(t, dir, 10000002, 10*time.Minute, "1,1.0,1")
	regions, err := DiscoverRegions(dir)
	require.NoError(t, err)

	_, err = Assemble(context.Background(), regions[0], day, day.Add(24*time.Hour), 7*time.Minute)
	require.ErrorIs(t, err, interval.ErrStep)
}

func TestMemberName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "contracts_10000002_20160831_30.book.gz",
		MemberName(10000002, day, 30*time.Minute))
}
