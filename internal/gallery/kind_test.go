package gallery

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseKind(t *testing.T) {
	kind, err := ParseKind(" Carousel ")
	require.NoError(t, err)
	require.Equal(t, Carousel, kind)

	kind, err = ParseKind("masonry")
	require.NoError(t, err)
	require.Equal(t, Masonry, kind)

	_, err = ParseKind("grid")
	require.ErrorIs(t, err, ErrUnknownKind)
}

func TestKindCapacity(t *testing.T) {
	require.Equal(t, 5, Carousel.Capacity())
	require.Equal(t, 40, Masonry.Capacity())
	require.Zero(t, Kind("grid").Capacity())
	require.Equal(t, "gallery.masonry", Masonry.Stream())
}

func TestProgressPercent(t *testing.T) {
	require.Zero(t, Progress{}.Percent())
	require.InDelta(t, 50, Progress{TotalBytes: 10, TransferredBytes: 5}.Percent(), 0.001)
	require.InDelta(t, 100, Progress{TotalBytes: 10, TransferredBytes: 12}.Percent(), 0.001)

	var tr progressTracker
	tr.begin(10)
	tr.begin(5)
	tr.advance(4)
	require.Equal(t, Progress{TotalBytes: 15, TransferredBytes: 4, ActiveJobs: 2}, tr.snapshot())
	tr.end()
	require.Equal(t, 1, tr.snapshot().ActiveJobs)
	tr.end()
	require.Equal(t, Progress{}, tr.snapshot())
}
