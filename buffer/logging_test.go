package buffer_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"clockdb/buffer"
	"clockdb/internal/base"
	"clockdb/logger"
	"clockdb/storage"
)

func TestManagerLogging(t *testing.T) {
	t.Parallel()

	f, err := storage.Create(filepath.Join(t.TempDir(), "logged"))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = f.Close()
	})
	ids := make([]base.PageID, 4)
	for i := range ids {
		ids[i], _, err = f.AllocatePage()
		require.NoError(t, err)
	}

	core, logs := observer.New(zap.InfoLevel)
	m, err := buffer.New(2, buffer.WithLogger(logger.NewZap(zap.New(core)).Named("buffer")))
	require.NoError(t, err)

	page, err := m.FetchPage(f, ids[0])
	require.NoError(t, err)
	page.PutUint32(0, 7)
	require.NoError(t, m.ReleasePage(f, ids[0], true))
	_, err = m.FetchPage(f, ids[1])
	require.NoError(t, err)
	require.NoError(t, m.ReleasePage(f, ids[1], false))

	// Evicts the dirty page, then the clean one.
	for _, id := range ids[2:] {
		_, err = m.FetchPage(f, id)
		require.NoError(t, err)
	}
	s := m.Stats()
	assert.Equal(t, uint64(2), s.Evictions)
	assert.Equal(t, uint64(1), s.Writebacks)

	_, err = m.FetchPage(f, ids[0])
	require.ErrorIs(t, err, buffer.ErrBufferExceeded)

	require.NoError(t, m.ReleasePage(f, ids[2], true))
	require.NoError(t, m.ReleasePage(f, ids[3], false))
	require.NoError(t, m.DisposePage(f, ids[3]))
	require.NoError(t, m.FlushFile(f))
	require.NoError(t, m.Close())

	assert.Zero(t, logs.FilterLevelExact(zap.ErrorLevel).Len(), "%v", logs.FilterLevelExact(zap.ErrorLevel).All())
	warns := logs.FilterMessage("no evictable frame")
	require.Equal(t, 1, warns.Len())
	assert.Equal(t, "buffer", warns.All()[0].LoggerName)
}
