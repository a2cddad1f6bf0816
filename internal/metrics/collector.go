package metrics

import (
	"path/filepath"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"clockdb/buffer"
	"clockdb/storage"
)

const namespace = "clockdb"

// PoolSource reports buffer pool statistics. *buffer.Manager implements it.
type PoolSource interface {
	Stats() buffer.Stats
}

// FileSource reports I/O statistics of a paged file.
type FileSource interface {
	Name() string
	Stats() storage.Stats
}

// Collector exports buffer pool occupancy and counters, and per-file I/O
// counters, each time it is scraped.
type Collector struct {
	pool PoolSource

	mu    sync.Mutex
	files []FileSource

	frames     *prometheus.Desc
	occupancy  *prometheus.Desc
	hits       *prometheus.Desc
	misses     *prometheus.Desc
	evictions  *prometheus.Desc
	writebacks *prometheus.Desc
	exhausted  *prometheus.Desc
	pageReads  *prometheus.Desc
	pageWrites *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

func NewCollector(pool PoolSource) *Collector {
	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, labels, nil)
	}
	return &Collector{
		pool:       pool,
		frames:     desc("buffer_frames", "Number of frames in the buffer pool."),
		occupancy:  desc("buffer_frames_in_state", "Frames by state.", "state"),
		hits:       desc("buffer_hits_total", "Page fetches served from the pool."),
		misses:     desc("buffer_misses_total", "Page fetches that read from disk."),
		evictions:  desc("buffer_evictions_total", "Valid frames chosen as clock victims."),
		writebacks: desc("buffer_writebacks_total", "Dirty pages written back on eviction or flush."),
		exhausted:  desc("buffer_exhausted_total", "Victim searches that found every frame pinned."),
		pageReads:  desc("file_page_reads_total", "Pages read from a file.", "file"),
		pageWrites: desc("file_page_writes_total", "Pages written to a file.", "file"),
	}
}

// AddFile adds per-file I/O counters for f to the collector.
func (c *Collector) AddFile(f FileSource) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.files = append(c.files, f)
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.frames, c.occupancy, c.hits, c.misses, c.evictions,
		c.writebacks, c.exhausted, c.pageReads, c.pageWrites,
	} {
		ch <- d
	}
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.pool.Stats()
	ch <- prometheus.MustNewConstMetric(c.frames, prometheus.GaugeValue, float64(s.NumFrames))
	ch <- prometheus.MustNewConstMetric(c.occupancy, prometheus.GaugeValue, float64(s.Valid), "valid")
	ch <- prometheus.MustNewConstMetric(c.occupancy, prometheus.GaugeValue, float64(s.Pinned), "pinned")
	ch <- prometheus.MustNewConstMetric(c.occupancy, prometheus.GaugeValue, float64(s.Dirty), "dirty")
	ch <- prometheus.MustNewConstMetric(c.hits, prometheus.CounterValue, float64(s.Hits))
	ch <- prometheus.MustNewConstMetric(c.misses, prometheus.CounterValue, float64(s.Misses))
	ch <- prometheus.MustNewConstMetric(c.evictions, prometheus.CounterValue, float64(s.Evictions))
	ch <- prometheus.MustNewConstMetric(c.writebacks, prometheus.CounterValue, float64(s.Writebacks))
	ch <- prometheus.MustNewConstMetric(c.exhausted, prometheus.CounterValue, float64(s.Exhausted))

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, f := range c.files {
		fs := f.Stats()
		name := filepath.Base(f.Name())
		ch <- prometheus.MustNewConstMetric(c.pageReads, prometheus.CounterValue, float64(fs.Reads), name)
		ch <- prometheus.MustNewConstMetric(c.pageWrites, prometheus.CounterValue, float64(fs.Writes), name)
	}
}
