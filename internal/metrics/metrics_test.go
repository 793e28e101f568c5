package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.AssetsSaved(3)
	m.AssetsRecycled(2)
	m.RecycleFailed(1)
	m.AssetsPurged(2, 24)
	m.SecurityRejected()
	m.BinObserved(5, 100)
	m.BinObserved(4, 90)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.AssetsSavedTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.AssetsRecycledTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RecycleFailedTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.PurgedFilesTotal))
	assert.Equal(t, 24.0, testutil.ToFloat64(m.PurgedBytesTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SecurityRejectedTotal))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.BinFiles))
	assert.Equal(t, 90.0, testutil.ToFloat64(m.BinBytes))
}

func TestMetrics_SeparateRegistries(t *testing.T) {
	a := New()
	b := New()
	a.AssetsSaved(1)

	assert.Equal(t, 0.0, testutil.ToFloat64(b.AssetsSavedTotal))
}

func TestMetrics_WriteTextfile(t *testing.T) {
	m := New()
	m.AssetsRecycled(7)

	path := filepath.Join(t.TempDir(), "qnote.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "qnote_assets_recycled_total 7"), string(data))

	n, err := testutil.GatherAndCount(m.Registry())
	require.NoError(t, err)
	assert.Equal(t, 8, n)
}

func TestMetrics_WriteTextfile_BadDir(t *testing.T) {
	m := New()
	err := m.WriteTextfile(filepath.Join(t.TempDir(), "missing", "qnote.prom"))
	assert.Error(t, err)
}
