package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"grantwatch/internal/grant"
	"grantwatch/internal/source"
	"grantwatch/internal/store"
	"grantwatch/metrics"
)

type fakeSource struct {
	name    string
	records []grant.Record
	err     error
}

func (f *fakeSource) Name() string  { return f.name }
func (f *fakeSource) Curated() bool { return false }
func (f *fakeSource) Gather(ctx context.Context) ([]grant.Record, error) {
	return f.records, f.err
}

type fakeDeliverer struct {
	calls  int
	blocks [][]string
	err    error
}

func (f *fakeDeliverer) Deliver(ctx context.Context, blocks []string) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	f.blocks = append(f.blocks, blocks)
	return nil
}

func newTestRunner(t *testing.T, sources []source.Source, d Deliverer) (*Runner, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "grants.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	r := New(st, sources, d, metrics.New(), Options{
		Keywords:           []string{"грант", "конкурс"},
		PriorityDirections: []string{"Цифровые технологии"},
		WorkDir:            t.TempDir(),
		SourceTimeout:      5 * time.Second,
	})
	return r, st
}

func polledRecord(title string, amount int64) grant.Record {
	return grant.Record{
		Title:           title,
		Organizer:       "РНФ",
		AmountText:      "Уточняется",
		AnnualAmountMin: amount,
		DeadlineDays:    -1,
		Origin:          grant.OriginPolled,
		SourceName:      "rscf.ru",
	}
}

func TestRunDeliversCatalogAndConverges(t *testing.T) {
	catalog, err := source.NewCatalog("")
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	d := &fakeDeliverer{}
	r, _ := newTestRunner(t, []source.Source{catalog}, d)

	res, err := r.Run(context.Background(), "test")
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if res.Delivered != 12 {
		t.Fatalf("expected all 12 catalog grants delivered, got %d", res.Delivered)
	}
	if d.calls != 1 {
		t.Fatalf("expected one delivery, got %d", d.calls)
	}

	// Same candidates, populated history: nothing new, nothing sent.
	res, err = r.Run(context.Background(), "test")
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if res.Delivered != 0 {
		t.Fatalf("second run should deliver nothing, got %d", res.Delivered)
	}
	if d.calls != 1 {
		t.Fatalf("renderer/deliverer must not run with zero new grants")
	}
	if r.State() != StateIdle {
		t.Fatalf("runner should return to idle, got %s", r.State())
	}
}

func TestDeliveryFailureCommitsNothing(t *testing.T) {
	src := &fakeSource{name: "test", records: []grant.Record{
		polledRecord("Открыт конкурс грантов А", 10_000_000),
		polledRecord("Открыт конкурс грантов Б", 20_000_000),
	}}
	d := &fakeDeliverer{err: errors.New("telegram down")}
	r, st := newTestRunner(t, []source.Source{src}, d)

	_, err := r.Run(context.Background(), "test")
	if !errors.Is(err, ErrDeliveryFailed) {
		t.Fatalf("expected ErrDeliveryFailed, got %v", err)
	}
	seen, err := st.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(seen) != 0 {
		t.Fatalf("failed delivery must not commit fingerprints, got %d", len(seen))
	}

	// A later run with a working transport re-delivers the full set.
	d.err = nil
	res, err := r.Run(context.Background(), "test")
	if err != nil {
		t.Fatalf("retry run: %v", err)
	}
	if res.Delivered != 2 {
		t.Fatalf("retry should deliver the full original set, got %d", res.Delivered)
	}
}

// blockingDeliverer parks inside Deliver until released, keeping a run in
// flight long enough for a second invocation to race it.
type blockingDeliverer struct {
	entered chan struct{}
	release chan struct{}
}

func (d *blockingDeliverer) Deliver(ctx context.Context, blocks []string) error {
	close(d.entered)
	<-d.release
	return nil
}

func TestRunRejectsConcurrentInvocation(t *testing.T) {
	src := &fakeSource{name: "test", records: []grant.Record{
		polledRecord("Открыт конкурс грантов", 10_000_000),
	}}
	d := &blockingDeliverer{entered: make(chan struct{}), release: make(chan struct{})}
	r, _ := newTestRunner(t, []source.Source{src}, d)

	done := make(chan error, 1)
	go func() {
		_, err := r.Run(context.Background(), "first")
		done <- err
	}()
	<-d.entered

	if _, err := r.Run(context.Background(), "second"); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("overlapping run must be rejected, got %v", err)
	}

	close(d.release)
	if err := <-done; err != nil {
		t.Fatalf("first run: %v", err)
	}

	// With the first run finished the guard is released again.
	if _, err := r.Run(context.Background(), "third"); err != nil {
		t.Fatalf("run after completion: %v", err)
	}
}

func TestHistoryReadFailureTreatsAllAsNew(t *testing.T) {
	src := &fakeSource{name: "test", records: []grant.Record{
		polledRecord("Открыт конкурс грантов А", 10_000_000),
		polledRecord("Открыт конкурс грантов Б", 20_000_000),
	}}
	d := &fakeDeliverer{}
	r, st := newTestRunner(t, []source.Source{src}, d)
	st.Close()

	// Losing the history must degrade to duplicate notifications, never to a
	// refused run: everything is treated as new and delivered.
	res, err := r.Run(context.Background(), "test")
	if err != nil {
		t.Fatalf("run must survive an unreadable history: %v", err)
	}
	if res.Delivered != 2 {
		t.Fatalf("expected the full candidate set delivered, got %d", res.Delivered)
	}
	if d.calls != 1 {
		t.Fatalf("expected one delivery, got %d", d.calls)
	}
}

func TestZeroNewIsSuccessWithoutDelivery(t *testing.T) {
	d := &fakeDeliverer{}
	r, st := newTestRunner(t, []source.Source{&fakeSource{name: "empty"}}, d)

	res, err := r.Run(context.Background(), "test")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Delivered != 0 || d.calls != 0 {
		t.Fatalf("empty run must not deliver: delivered=%d calls=%d", res.Delivered, d.calls)
	}
	stats, err := st.Stats(context.Background())
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.LastRunStatus != StatusNoNew {
		t.Fatalf("expected %s run log, got %s", StatusNoNew, stats.LastRunStatus)
	}
}

func TestSourceFailureDoesNotAbortRun(t *testing.T) {
	good := &fakeSource{name: "good", records: []grant.Record{polledRecord("Новый грант", 10_000_000)}}
	bad := &fakeSource{name: "bad", err: errors.New("timeout")}
	d := &fakeDeliverer{}
	r, _ := newTestRunner(t, []source.Source{bad, good}, d)

	res, err := r.Run(context.Background(), "test")
	if err != nil {
		t.Fatalf("run should survive a failing source: %v", err)
	}
	if res.Delivered != 1 {
		t.Fatalf("expected the healthy source's record delivered, got %d", res.Delivered)
	}
}

func TestInvalidRecordDropped(t *testing.T) {
	src := &fakeSource{name: "test", records: []grant.Record{
		{Title: "", AnnualAmountMin: 50_000_000, DeadlineDays: -1, Origin: grant.OriginStatic},
		polledRecord("Грант с названием", 10_000_000),
	}}
	d := &fakeDeliverer{}
	r, _ := newTestRunner(t, []source.Source{src}, d)

	res, err := r.Run(context.Background(), "test")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Delivered != 1 {
		t.Fatalf("record without title must be dropped, delivered=%d", res.Delivered)
	}
}

func TestKeywordGateRunsBeforeAmountCheck(t *testing.T) {
	// A rich but irrelevant polled item never reaches the amount filter.
	src := &fakeSource{name: "news", records: []grant.Record{
		polledRecord("Состоялась конференция кафедры", 50_000_000),
	}}
	d := &fakeDeliverer{}
	r, _ := newTestRunner(t, []source.Source{src}, d)

	res, err := r.Run(context.Background(), "test")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Delivered != 0 || d.calls != 0 {
		t.Fatalf("non-matching polled record must be discarded, delivered=%d", res.Delivered)
	}
}

func TestThresholdChangeAdmitsRecord(t *testing.T) {
	src := &fakeSource{name: "test", records: []grant.Record{
		polledRecord("Малый грант на конкурс", 3_000_000),
	}}
	d := &fakeDeliverer{}
	r, st := newTestRunner(t, []source.Source{src}, d)
	ctx := context.Background()

	res, err := r.Run(ctx, "test")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Delivered != 0 {
		t.Fatalf("3M record under 5M threshold must be excluded, got %d", res.Delivered)
	}

	if err := st.SaveThresholds(ctx, grant.Thresholds{MinAmount: 3_000_000, MinDeadlineDays: 14}); err != nil {
		t.Fatalf("save thresholds: %v", err)
	}
	res, err = r.Run(ctx, "test")
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if res.Delivered != 1 {
		t.Fatalf("lowered threshold should admit the record, got %d", res.Delivered)
	}
}

func TestNoDestinationFailsFast(t *testing.T) {
	src := &fakeSource{name: "test", records: []grant.Record{polledRecord("Грант", 10_000_000)}}
	r, _ := newTestRunner(t, []source.Source{src}, nil)

	_, err := r.Run(context.Background(), "test")
	if !errors.Is(err, ErrNoDestination) {
		t.Fatalf("expected ErrNoDestination, got %v", err)
	}
}

func TestReportsWrittenOnDelivery(t *testing.T) {
	src := &fakeSource{name: "test", records: []grant.Record{polledRecord("Грант на проект", 10_000_000)}}
	d := &fakeDeliverer{}
	r, _ := newTestRunner(t, []source.Source{src}, d)

	if _, err := r.Run(context.Background(), "test"); err != nil {
		t.Fatalf("run: %v", err)
	}
	csvPath, htmlPath := r.ReportPaths()
	for _, path := range []string{csvPath, htmlPath} {
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("report %s missing: %v", path, err)
		}
		if len(data) == 0 {
			t.Fatalf("report %s is empty", path)
		}
	}
}
