package qn

// Metrics receives counters and gauges from the service.
type Metrics interface {
	AssetsSaved(n int)
	AssetsRecycled(n int)
	RecycleFailed(n int)
	AssetsPurged(files int, bytes int64)
	SecurityRejected()
	// BinObserved publishes the result of a recycle bin scan.
	BinObserved(files int, bytes int64)
}

// NopMetrics discards everything.
type NopMetrics struct{}

func (NopMetrics) AssetsSaved(int)         {}
func (NopMetrics) AssetsRecycled(int)      {}
func (NopMetrics) RecycleFailed(int)       {}
func (NopMetrics) AssetsPurged(int, int64) {}
func (NopMetrics) SecurityRejected()       {}
func (NopMetrics) BinObserved(int, int64)  {}
