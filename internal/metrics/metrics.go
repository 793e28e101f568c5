// Package metrics exports service counters in the Prometheus text format.
// qnote is a short-lived CLI, so instead of serving /metrics it writes a
// textfile for the node_exporter textfile collector after each command.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"qnote/internal/qn"
)

// Metrics holds the qnote collectors in a private registry.
type Metrics struct {
	registry *prometheus.Registry

	AssetsSavedTotal      prometheus.Counter // qnote_assets_saved_total
	AssetsRecycledTotal   prometheus.Counter // qnote_assets_recycled_total
	RecycleFailedTotal    prometheus.Counter // qnote_recycle_failures_total
	PurgedFilesTotal      prometheus.Counter // qnote_bin_purged_files_total
	PurgedBytesTotal      prometheus.Counter // qnote_bin_purged_bytes_total
	SecurityRejectedTotal prometheus.Counter // qnote_security_rejections_total

	BinFiles prometheus.Gauge // qnote_bin_files
	BinBytes prometheus.Gauge // qnote_bin_bytes
}

var _ qn.Metrics = (*Metrics)(nil)

// New creates and registers all collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		AssetsSavedTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "qnote_assets_saved_total",
			Help: "Assets saved into the live tree",
		}),
		AssetsRecycledTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "qnote_assets_recycled_total",
			Help: "Assets moved into the recycle bin",
		}),
		RecycleFailedTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "qnote_recycle_failures_total",
			Help: "Assets that could not be moved into the recycle bin",
		}),
		PurgedFilesTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "qnote_bin_purged_files_total",
			Help: "Recycled files permanently deleted",
		}),
		PurgedBytesTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "qnote_bin_purged_bytes_total",
			Help: "Bytes of recycled files permanently deleted",
		}),
		SecurityRejectedTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "qnote_security_rejections_total",
			Help: "Inputs rejected as path traversal attempts",
		}),
		BinFiles: f.NewGauge(prometheus.GaugeOpts{
			Name: "qnote_bin_files",
			Help: "Files in the recycle bin at the last scan",
		}),
		BinBytes: f.NewGauge(prometheus.GaugeOpts{
			Name: "qnote_bin_bytes",
			Help: "Bytes in the recycle bin at the last scan",
		}),
	}
}

// Registry exposes the registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) AssetsSaved(n int)    { m.AssetsSavedTotal.Add(float64(n)) }
func (m *Metrics) AssetsRecycled(n int) { m.AssetsRecycledTotal.Add(float64(n)) }
func (m *Metrics) RecycleFailed(n int)  { m.RecycleFailedTotal.Add(float64(n)) }
func (m *Metrics) SecurityRejected()    { m.SecurityRejectedTotal.Inc() }

func (m *Metrics) AssetsPurged(files int, bytes int64) {
	m.PurgedFilesTotal.Add(float64(files))
	m.PurgedBytesTotal.Add(float64(bytes))
}

func (m *Metrics) BinObserved(files int, bytes int64) {
	m.BinFiles.Set(float64(files))
	m.BinBytes.Set(float64(bytes))
}

// WriteTextfile atomically writes the current values to path.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}
