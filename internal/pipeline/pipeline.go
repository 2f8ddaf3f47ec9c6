// Package pipeline implements the check run: gather candidates from all
// sources, filter, exclude already-delivered grants, rank, render, deliver,
// and only then commit the new fingerprints to history.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"grantwatch/internal/grant"
	"grantwatch/internal/render"
	"grantwatch/internal/source"
	"grantwatch/internal/store"
	"grantwatch/metrics"
)

// Runner states, surfaced on the ops endpoint.
const (
	StateIdle       = "idle"
	StateGathering  = "gathering"
	StateFiltering  = "filtering"
	StateDeduping   = "deduping"
	StateRanking    = "ranking"
	StateRendering  = "rendering"
	StateDelivering = "delivering"
	StatePersisting = "persisting"
)

// Run log status values.
const (
	StatusSuccess = "SUCCESS"
	StatusNoNew   = "NO_NEW"
	StatusFailed  = "FAILED"
)

var (
	// ErrAlreadyRunning rejects a re-entrant run. Overlapping runs would both
	// see the same history snapshot and double-deliver.
	ErrAlreadyRunning = errors.New("check already running")
	// ErrNoDestination fails a run before gathering when no delivery target
	// is configured.
	ErrNoDestination = errors.New("no delivery destination configured")
	// ErrDeliveryFailed wraps transport errors; the run commits nothing and
	// the same candidates are retried next time.
	ErrDeliveryFailed = errors.New("delivery failed")
)

// Deliverer sends rendered message blocks to the destination, in order.
type Deliverer interface {
	Deliver(ctx context.Context, blocks []string) error
}

// Options configures a Runner.
type Options struct {
	Keywords           []string
	PriorityDirections []string
	WorkDir            string
	SourceTimeout      time.Duration
}

// Result summarizes one run.
type Result struct {
	Candidates int
	Qualified  int
	Delivered  int
}

// Report file names under the work dir.
const (
	CSVReportName  = "grants_report.csv"
	HTMLReportName = "grants_report.html"
)

// Runner orchestrates check runs. At most one run is in flight at a time.
type Runner struct {
	st        *store.Store
	sources   []source.Source
	deliverer Deliverer
	met       *metrics.Metrics
	opts      Options

	running atomic.Bool
	state   atomic.Value // string
	now     func() time.Time
}

// New builds a Runner. deliverer may be nil, in which case every run fails
// fast with ErrNoDestination.
func New(st *store.Store, sources []source.Source, deliverer Deliverer, met *metrics.Metrics, opts Options) *Runner {
	if opts.SourceTimeout <= 0 {
		opts.SourceTimeout = 20 * time.Second
	}
	r := &Runner{
		st:        st,
		sources:   sources,
		deliverer: deliverer,
		met:       met,
		opts:      opts,
		now:       time.Now,
	}
	r.state.Store(StateIdle)
	return r
}

// State reports the current run phase.
func (r *Runner) State() string {
	return r.state.Load().(string)
}

// ReportPaths returns where the last run's report files live.
func (r *Runner) ReportPaths() (csvPath, htmlPath string) {
	return filepath.Join(r.opts.WorkDir, CSVReportName), filepath.Join(r.opts.WorkDir, HTMLReportName)
}

// Run executes one check. It returns the number of newly delivered grants.
// Zero new grants is a normal, successful run; nothing is sent and the
// renderer is not invoked.
func (r *Runner) Run(ctx context.Context, trigger string) (Result, error) {
	if !r.running.CompareAndSwap(false, true) {
		return Result{}, ErrAlreadyRunning
	}
	defer func() {
		r.state.Store(StateIdle)
		r.running.Store(false)
	}()

	if r.deliverer == nil {
		return Result{}, ErrNoDestination
	}

	startedAt := r.now()
	log.Printf("run start: trigger=%s", trigger)

	th, err := r.st.LoadThresholds(ctx)
	if err != nil {
		log.Printf("run: load thresholds: %v (using defaults)", err)
		th = grant.Thresholds{MinAmount: store.DefaultMinAmount, MinDeadlineDays: store.DefaultMinDeadlineDays}
	}

	r.state.Store(StateGathering)
	candidates := r.gather(ctx)
	res := Result{Candidates: len(candidates)}

	r.state.Store(StateFiltering)
	var qualified []grant.Record
	for _, rec := range candidates {
		if !grant.Relevant(rec, r.opts.Keywords) {
			continue
		}
		if grant.Qualifies(rec, th) {
			qualified = append(qualified, rec)
		}
	}
	res.Qualified = len(qualified)
	log.Printf("run: filtered %d of %d candidates", len(qualified), len(candidates))

	r.state.Store(StateDeduping)
	seen, err := r.st.Snapshot(ctx)
	if err != nil {
		// Losing dedup state degrades to "everything is new"; duplicate
		// notifications beat silently dropped ones.
		log.Printf("run: history unavailable: %v (treating all as new)", err)
		seen = map[string]bool{}
	}
	var fresh []grant.Record
	var entries []store.HistoryEntry
	for _, rec := range qualified {
		fp, err := grant.Fingerprint(rec)
		if err != nil {
			log.Printf("run: dropping invalid record from %s: %v", rec.SourceName, err)
			continue
		}
		if seen[fp] {
			continue
		}
		seen[fp] = true // dedupe within the run too
		fresh = append(fresh, rec)
		entries = append(entries, store.HistoryEntry{
			Fingerprint: fp,
			Title:       rec.Title,
			Organizer:   rec.Organizer,
			AmountText:  rec.AmountText,
			RecordedAt:  startedAt,
		})
	}

	if len(fresh) == 0 {
		if err := r.st.AppendRunLog(ctx, store.RunLog{
			RunAt: startedAt, CandidatesFound: res.Candidates, NewCount: 0, Status: StatusNoNew,
		}); err != nil {
			log.Printf("run: append run log: %v", err)
		}
		r.met.RecordRun(0, nil)
		log.Printf("run done: no new grants")
		return res, nil
	}

	r.state.Store(StateRanking)
	ranked := grant.Order(fresh, r.opts.PriorityDirections)

	r.state.Store(StateRendering)
	blocks := render.Blocks(ranked, th, startedAt)
	r.writeReports(ranked, startedAt)

	r.state.Store(StateDelivering)
	if err := r.deliverer.Deliver(ctx, blocks); err != nil {
		// No commit: the same candidates are retried on the next run.
		if logErr := r.st.AppendRunLog(ctx, store.RunLog{
			RunAt: startedAt, CandidatesFound: res.Candidates, NewCount: 0, Status: StatusFailed,
		}); logErr != nil {
			log.Printf("run: append run log: %v", logErr)
		}
		r.met.RecordRun(0, err)
		return res, fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}

	r.state.Store(StatePersisting)
	if err := r.st.CommitBatch(ctx, entries, store.RunLog{
		RunAt: startedAt, CandidatesFound: res.Candidates, NewCount: len(fresh), Status: StatusSuccess,
	}); err != nil {
		// Delivery already happened; the next run re-delivers these.
		log.Printf("run: history commit failed: %v (duplicates possible next run)", err)
	}

	res.Delivered = len(fresh)
	r.met.RecordRun(res.Delivered, nil)
	log.Printf("run done: delivered %d new grants", res.Delivered)
	return res, nil
}

// gather polls all sources concurrently, each under its own timeout. A
// failing source contributes zero records and a warning.
func (r *Runner) gather(ctx context.Context) []grant.Record {
	var (
		mu  sync.Mutex
		all []grant.Record
		wg  sync.WaitGroup
	)
	for _, src := range r.sources {
		wg.Add(1)
		go func(src source.Source) {
			defer wg.Done()
			srcCtx, cancel := context.WithTimeout(ctx, r.opts.SourceTimeout)
			defer cancel()
			records, err := src.Gather(srcCtx)
			if err != nil {
				log.Printf("run: source %s unavailable: %v", src.Name(), err)
				r.met.RecordSourceFailure()
				return
			}
			mu.Lock()
			all = append(all, records...)
			mu.Unlock()
			log.Printf("run: source %s contributed %d records", src.Name(), len(records))
		}(src)
	}
	wg.Wait()
	return all
}

func (r *Runner) writeReports(ranked []grant.Ranked, now time.Time) {
	csvPath, htmlPath := r.ReportPaths()
	if err := os.WriteFile(csvPath, render.Table(ranked), 0o644); err != nil {
		log.Printf("run: write csv report: %v", err)
	}
	if err := os.WriteFile(htmlPath, render.Document(ranked, now), 0o644); err != nil {
		log.Printf("run: write html report: %v", err)
	}
}
