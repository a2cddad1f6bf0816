package metrics

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clockdb/buffer"
	"clockdb/storage"
)

func TestCollector(t *testing.T) {
	t.Parallel()

	bm, err := buffer.New(2)
	require.NoError(t, err)
	f, err := storage.Create(filepath.Join(t.TempDir(), "pages"))
	require.NoError(t, err)
	defer f.Close()

	id, _, err := bm.AllocateNewPage(f)
	require.NoError(t, err)
	require.NoError(t, bm.ReleasePage(f, id, true))
	_, err = bm.FetchPage(f, id)
	require.NoError(t, err)

	c := NewCollector(bm)
	c.AddFile(f)
	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(c))

	expected := `
# HELP clockdb_buffer_frames Number of frames in the buffer pool.
# TYPE clockdb_buffer_frames gauge
clockdb_buffer_frames 2
# HELP clockdb_buffer_frames_in_state Frames by state.
# TYPE clockdb_buffer_frames_in_state gauge
clockdb_buffer_frames_in_state{state="dirty"} 1
clockdb_buffer_frames_in_state{state="pinned"} 1
clockdb_buffer_frames_in_state{state="valid"} 1
# HELP clockdb_buffer_hits_total Page fetches served from the pool.
# TYPE clockdb_buffer_hits_total counter
clockdb_buffer_hits_total 1
# HELP clockdb_file_page_writes_total Pages written to a file.
# TYPE clockdb_file_page_writes_total counter
clockdb_file_page_writes_total{file="pages"} 2
`
	err = testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"clockdb_buffer_frames", "clockdb_buffer_frames_in_state",
		"clockdb_buffer_hits_total", "clockdb_file_page_writes_total")
	assert.NoError(t, err)
	assert.Equal(t, 11, testutil.CollectAndCount(c), "nine pool metrics and two per file")

	require.NoError(t, bm.ReleasePage(f, id, false))
}
