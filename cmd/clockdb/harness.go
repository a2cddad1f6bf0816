package main

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"slices"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"clockdb"
	"clockdb/buffer"
	"clockdb/internal/metrics"
	"clockdb/logger"
	"clockdb/relation"
	"clockdb/storage"
)

// Records mirror a C struct {int i; double d; char s[64]} with the key at
// offset 0.
const (
	recordSize = 80
	keyOffset  = 0
)

type rangeCheck struct {
	low    clockdb.Key
	lowOp  clockdb.Operator
	high   clockdb.Key
	highOp clockdb.Operator
}

var rangeChecks = []rangeCheck{
	{25, clockdb.GT, 40, clockdb.LT},
	{20, clockdb.GTE, 35, clockdb.LTE},
	{-3, clockdb.GT, 3, clockdb.LT},
	{996, clockdb.GT, 1001, clockdb.LT},
	{0, clockdb.GT, 1, clockdb.LT},
	{300, clockdb.GT, 400, clockdb.LT},
	{3000, clockdb.GTE, 4000, clockdb.LT},
}

// expected returns how many of the keys 0..n-1 fall in the range.
func (rc rangeCheck) expected(n int) int {
	lo, hi := int(rc.low), int(rc.high)
	if rc.lowOp == clockdb.GT {
		lo++
	}
	if rc.highOp == clockdb.LT {
		hi--
	}
	lo, hi = max(lo, 0), min(hi, n-1)
	return max(hi-lo+1, 0)
}

func (rc rangeCheck) String() string {
	return fmt.Sprintf("%d %s %d %s", rc.low, rc.lowOp, rc.high, rc.highOp)
}

type harness struct {
	cfg       *Config
	log       *zap.Logger
	bm        *buffer.Manager
	collector *metrics.Collector
	indexOpts []clockdb.IndexOption
	fileOpts  []storage.Option
}

// Run executes every configured order plus the empty-tree checks against a
// single buffer pool.
func Run(cfg *Config, zl *zap.Logger) error {
	fileOpts, err := cfg.storageOptions()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return err
	}

	log := logger.NewZap(zl)
	bm, err := buffer.New(cfg.Frames, buffer.WithLogger(log.Named("buffer")))
	if err != nil {
		return err
	}
	h := &harness{
		cfg:       cfg,
		log:       zl,
		bm:        bm,
		collector: metrics.NewCollector(bm),
		fileOpts:  fileOpts,
		indexOpts: []clockdb.IndexOption{clockdb.WithLogger(log.Named("index")), clockdb.WithStorageOptions(fileOpts...)},
	}
	if cfg.LeafCapacity > 0 {
		h.indexOpts = append(h.indexOpts, clockdb.WithLeafCapacity(cfg.LeafCapacity))
	}
	if cfg.NodeCapacity > 0 {
		h.indexOpts = append(h.indexOpts, clockdb.WithNodeCapacity(cfg.NodeCapacity))
	}

	var errs []error
	for _, order := range cfg.Orders {
		if err := h.runOrder(order); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", order, err))
		}
	}
	if err := h.runEmpty(); err != nil {
		errs = append(errs, fmt.Errorf("empty: %w", err))
	}

	if cfg.DumpFrames {
		errs = append(errs, bm.Dump(os.Stdout))
	}
	if cfg.MetricsFile != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(h.collector)
		errs = append(errs, prometheus.WriteToTextfile(cfg.MetricsFile, reg))
	}
	s := bm.Stats()
	zl.Info("buffer pool",
		zap.Int("frames", s.NumFrames),
		zap.Uint64("hits", s.Hits),
		zap.Uint64("misses", s.Misses),
		zap.Uint64("evictions", s.Evictions),
		zap.Float64("hit_ratio", s.HitRatio()),
	)
	errs = append(errs, bm.Close())
	return errors.Join(errs...)
}

func makeRecord(i int32) []byte {
	rec := make([]byte, recordSize)
	binary.LittleEndian.PutUint32(rec[0:], uint32(i))
	binary.LittleEndian.PutUint64(rec[8:], math.Float64bits(float64(i)))
	copy(rec[16:], fmt.Sprintf("%05d string record", i))
	return rec
}

func keyOrder(order string, n int, seed uint64) []int32 {
	keys := make([]int32, n)
	for i := range keys {
		keys[i] = int32(i)
	}
	switch order {
	case "backward":
		slices.Reverse(keys)
	case "random":
		rng := rand.New(rand.NewPCG(seed, uint64(n)))
		rng.Shuffle(n, func(i, j int) { keys[i], keys[j] = keys[j], keys[i] })
	}
	return keys
}

// createRelation replaces any relation and index left by an earlier run.
func (h *harness) createRelation(name string, keys []int32) (*relation.Relation, error) {
	for _, f := range []string{name, clockdb.IndexName(name, keyOffset)} {
		if storage.Exists(f) {
			if err := storage.Remove(f); err != nil {
				return nil, err
			}
		}
	}
	rel, err := relation.Create(h.bm, name, recordSize, h.fileOpts...)
	if err != nil {
		return nil, err
	}
	for _, k := range keys {
		if _, err := rel.Insert(makeRecord(k)); err != nil {
			return nil, errors.Join(err, rel.Close())
		}
	}
	return rel, nil
}

func (h *harness) addFile(f storage.File) {
	if fs, ok := f.(metrics.FileSource); ok {
		h.collector.AddFile(fs)
	}
}

func (h *harness) runOrder(order string) (err error) {
	name := filepath.Join(h.cfg.DataDir, h.cfg.Relation+"_"+order)
	rel, err := h.createRelation(name, keyOrder(order, h.cfg.RelationSize, h.cfg.Seed))
	if err != nil {
		return err
	}
	h.addFile(rel.File())
	defer func() {
		err = errors.Join(err, rel.Close(), storage.Remove(name))
	}()

	ix, err := clockdb.Open(h.bm, name, keyOffset, clockdb.Integer, rel.NewScanner(), h.indexOpts...)
	if err != nil {
		return err
	}
	h.addFile(ix.File())
	defer func() {
		err = errors.Join(err, ix.Close(), storage.Remove(ix.Name()))
	}()

	for _, rc := range rangeChecks {
		if err := h.checkRange(ix, rel, rc); err != nil {
			return err
		}
	}
	return h.checkErrors(ix)
}

func (h *harness) checkRange(ix *clockdb.Index, rel *relation.Relation, rc rangeCheck) error {
	rids, err := ix.Scan(rc.low, rc.lowOp, rc.high, rc.highOp)
	if err != nil {
		return fmt.Errorf("scan %s: %w", rc, err)
	}
	if want := rc.expected(h.cfg.RelationSize); len(rids) != want {
		return fmt.Errorf("scan %s: got %d records, want %d", rc, len(rids), want)
	}

	prev := int64(math.MinInt64)
	for _, rid := range rids {
		rec, err := rel.Get(rid)
		if err != nil {
			return fmt.Errorf("scan %s: fetch %s: %w", rc, rid, err)
		}
		k := int64(int32(binary.LittleEndian.Uint32(rec[keyOffset:])))
		if k <= prev {
			return fmt.Errorf("scan %s: key %d after %d", rc, k, prev)
		}
		prev = k
	}
	h.log.Info("scan checked", zap.Stringer("range", rc), zap.Int("records", len(rids)))
	return nil
}

// checkErrors exercises scan misuse, which must fail without side effects.
func (h *harness) checkErrors(ix *clockdb.Index) error {
	expect := func(what string, err, want error) error {
		if !errors.Is(err, want) {
			return fmt.Errorf("%s: got %v, want %v", what, err, want)
		}
		return nil
	}
	_, _, nextErr := ix.ScanNext()
	return errors.Join(
		expect("end scan before start", ix.EndScan(), clockdb.ErrScanNotInitialized),
		expect("scan next before start", nextErr, clockdb.ErrScanNotInitialized),
		expect("low operator LTE", ix.StartScan(2, clockdb.LTE, 5, clockdb.LTE), clockdb.ErrBadOpcodes),
		expect("high operator GTE", ix.StartScan(2, clockdb.GTE, 5, clockdb.GTE), clockdb.ErrBadOpcodes),
		expect("inverted range", ix.StartScan(5, clockdb.GTE, 2, clockdb.LTE), clockdb.ErrBadScanRange),
	)
}

// runEmpty checks that every range over an index of an empty relation
// reports no such key.
func (h *harness) runEmpty() (err error) {
	name := filepath.Join(h.cfg.DataDir, h.cfg.Relation+"_empty")
	rel, err := h.createRelation(name, nil)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, rel.Close(), storage.Remove(name))
	}()

	ix, err := clockdb.Open(h.bm, name, keyOffset, clockdb.Integer, rel.NewScanner(), h.indexOpts...)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, ix.Close(), storage.Remove(ix.Name()))
	}()

	for _, rc := range rangeChecks {
		if err := ix.StartScan(rc.low, rc.lowOp, rc.high, rc.highOp); !errors.Is(err, clockdb.ErrNoSuchKey) {
			return fmt.Errorf("scan %s on empty index: got %v, want %v", rc, err, clockdb.ErrNoSuchKey)
		}
	}
	h.log.Info("empty index checked", zap.Int("ranges", len(rangeChecks)))
	return nil
}
