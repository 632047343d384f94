package fname

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestID(t *testing.T) {
	t.Parallel()

	id, err := ID("items_91000234_1472601600000.csv")
	require.NoError(t, err)
	assert.Equal(t, int64(91000234), id)

	id, err = ID("/some/tree/contracts_10000002_1472601600000.csv")
	require.NoError(t, err)
	assert.Equal(t, int64(10000002), id)
}

func TestCaptured(t *testing.T) {
	t.Parallel()

	captured, err := Captured("contracts_10000002_1472601600000.csv")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2016, 8, 31, 0, 0, 0, 0, time.UTC), captured)
}

func TestMalformed(t *testing.T) {
	t.Parallel()

	for _, name := range []string{
		"noseparators",
		"items_notanumber_1472601600000.csv",
		"contracts_10000002.csv", // no timestamp field
		"items__123.csv",
	} {
		_, err := ID(name)
		if err == nil {
			_, err = Captured(name)
		}
		assert.ErrorIs(t, err, ErrMalformed, "name %q", name)
	}
}
