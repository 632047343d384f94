package items

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day = time.Date(2016, 8, 31, 0, 0, 0, 0, time.UTC)

func writeItems(t *testing.T, dir string, contract int64, rows ...string) {
	t.Helper()
	name := fmt.Sprintf("items_%d_%d.csv", contract, day.UnixMilli())
	content := "itemID,typeID,quantity\n"
	for _, row := range rows {
		content += row + "\n"
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func gunzip(t *testing.T, data []byte) []byte {
	t.Helper()
	zr, err := gzip.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer zr.Close()
	out, err := io.ReadAll(zr)
	require.NoError(t, err)
	return out
}

func TestCollateSortsByID(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeItems(t, dir, 91000300, "3,34,100")
	writeItems(t, dir, 91000100, "1,34,100")
	writeItems(t, dir, 91000200, "2,35,50")

	members, err := Collate(context.Background(), dir, day)
	require.NoError(t, err)
	require.Len(t, members, 3)

	assert.Equal(t, "items_91000100_20160831.csv.gz", members[0].Name)
	assert.Equal(t, "items_91000200_20160831.csv.gz", members[1].Name)
	assert.Equal(t, "items_91000300_20160831.csv.gz", members[2].Name)
}

func TestCollateStripsHeader(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeItems(t, dir, 91000100, "1,34,100", "2,35,50")

	members, err := Collate(context.Background(), dir, day)
	require.NoError(t, err)
	require.Len(t, members, 1)

	assert.Equal(t, "1,34,100\n2,35,50\n", string(gunzip(t, members[0].Data)))
}

func TestCollateDuplicateContract(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeItems(t, dir, 91000100, "1,34,100")
	sub := filepath.Join(dir, "extra")
	require.NoError(t, os.Mkdir(sub, 0o755))
	writeItems(t, sub, 91000100, "2,35,50")

	_, err := Collate(context.Background(), dir, day)
	require.ErrorIs(t, err, ErrDuplicateContract)
}

func TestCollateEmptyDir(t *testing.T) {
	t.Parallel()

	members, err := Collate(context.Background(), t.TempDir(), day)
	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestCollateHeaderOnlyFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	name := fmt.Sprintf("items_91000100_%d.csv", day.UnixMilli())
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("itemID,typeID,quantity\n"), 0o644))

	members, err := Collate(context.Background(), dir, day)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Empty(t, gunzip(t, members[0].Data))
}

func TestMemberName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "items_91000100_20160831.csv.gz", MemberName(91000100, day))
}
