package pipeline

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/image-compressor/internal/model"
)

func TestMain(m *testing.M) {
	zlog.Init()
	m.Run()
}

var errTransition = errors.New("transition refused")

// memStore mirrors the repository contract in memory.
type memStore struct {
	mu       sync.Mutex
	requests map[uuid.UUID]model.RequestStatus
	images   map[uuid.UUID]map[string]model.Image
	history  []model.RequestStatus
}

func newMemStore(id uuid.UUID, rows []model.Row) *memStore {
	s := &memStore{
		requests: map[uuid.UUID]model.RequestStatus{id: model.RequestPending},
		images:   map[uuid.UUID]map[string]model.Image{id: {}},
	}
	for _, r := range rows {
		for _, u := range r.InputURLs {
			s.images[id][u] = model.Image{RequestID: id, InputURL: u, Status: model.ImagePending}
		}
	}
	return s
}

func (s *memStore) SetRequestStatus(_ context.Context, id uuid.UUID, status model.RequestStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.requests[id]
	if !ok {
		return errors.New("not found")
	}
	if !current.CanTransition(status) {
		return fmt.Errorf("%w: %s -> %s", errTransition, current, status)
	}
	s.requests[id] = status
	s.history = append(s.history, status)
	return nil
}

func (s *memStore) SetImageStatus(_ context.Context, id uuid.UUID, inputURL string, status model.ImageStatus, outputURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	img, ok := s.images[id][inputURL]
	if !ok {
		return errors.New("image not found")
	}
	img.Status = status
	img.OutputURL = outputURL
	s.images[id][inputURL] = img
	return nil
}

func (s *memStore) status(id uuid.UUID) model.RequestStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[id]
}

func (s *memStore) imageStatus(id uuid.UUID, u string) model.ImageStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.images[id][u].Status
}

func (s *memStore) allImagesCompleted(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, img := range s.images[id] {
		if img.Status != model.ImageCompleted {
			return false
		}
	}
	return true
}

type fakeTransformer struct {
	failOn map[string]bool
	calls  []string
}

func (f *fakeTransformer) Compress(_ context.Context, url string) (string, error) {
	f.calls = append(f.calls, url)
	if f.failOn[url] {
		return "", errors.New("fetch failed")
	}
	return "https://cdn.example/c/" + fmt.Sprint(len(f.calls)) + ".jpg", nil
}

type fakeReporter struct {
	rows  []model.ResultRow
	calls int
	err   error
}

func (f *fakeReporter) Generate(_ context.Context, _ uuid.UUID, rows []model.ResultRow) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	f.rows = rows
	return "https://cdn.example/reports/out.csv", nil
}

type fakeNotifier struct {
	calls []string
}

func (f *fakeNotifier) Notify(_ context.Context, id uuid.UUID, outputURL string) {
	f.calls = append(f.calls, id.String()+" "+outputURL)
}

type harness struct {
	id          uuid.UUID
	store       *memStore
	transformer *fakeTransformer
	reporter    *fakeReporter
	notifier    *fakeNotifier
	pipeline    *Pipeline
}

func newHarness(rows []model.Row, mode Mode, failOn ...string) *harness {
	id := uuid.New()
	h := &harness{
		id:          id,
		store:       newMemStore(id, rows),
		transformer: &fakeTransformer{failOn: map[string]bool{}},
		reporter:    &fakeReporter{},
		notifier:    &fakeNotifier{},
	}
	for _, u := range failOn {
		h.transformer.failOn[u] = true
	}
	h.pipeline = New(h.store, h.transformer, h.reporter, h.notifier, mode)
	return h
}

func TestRunSingleRowCompletes(t *testing.T) {
	rows := []model.Row{{SerialNumber: "1", Name: "SKU1", InputURLs: []string{"https://a.example/1.jpg"}}}
	h := newHarness(rows, FailFast)

	if err := h.pipeline.Run(context.Background(), h.id, rows); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := h.store.status(h.id); got != model.RequestCompleted {
		t.Fatalf("expected completed, got %s", got)
	}
	if !h.store.allImagesCompleted(h.id) {
		t.Fatalf("completed request has unfinished images")
	}
	if len(h.reporter.rows) != 1 {
		t.Fatalf("expected 1 report row, got %d", len(h.reporter.rows))
	}
	if len(h.notifier.calls) != 1 {
		t.Fatalf("expected notifier to be called once, got %d", len(h.notifier.calls))
	}

	wantHistory := []model.RequestStatus{model.RequestProcessing, model.RequestCompleted}
	if !reflect.DeepEqual(h.store.history, wantHistory) {
		t.Fatalf("unexpected status history %v", h.store.history)
	}
}

func TestRunBuildsConsolidatedRowsInOrder(t *testing.T) {
	rows := []model.Row{
		{SerialNumber: "1", Name: "SKU1", InputURLs: []string{"https://a.example/1.jpg", "https://a.example/2.jpg"}},
		{SerialNumber: "2", Name: "SKU2", InputURLs: []string{"https://a.example/3.jpg"}},
	}
	h := newHarness(rows, FailFast)

	if err := h.pipeline.Run(context.Background(), h.id, rows); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantCalls := []string{"https://a.example/1.jpg", "https://a.example/2.jpg", "https://a.example/3.jpg"}
	if !reflect.DeepEqual(h.transformer.calls, wantCalls) {
		t.Fatalf("unexpected call order %v", h.transformer.calls)
	}

	want := []model.ResultRow{
		{
			SerialNumber: "1", Name: "SKU1",
			InputURLs:  []string{"https://a.example/1.jpg", "https://a.example/2.jpg"},
			OutputURLs: []string{"https://cdn.example/c/1.jpg", "https://cdn.example/c/2.jpg"},
		},
		{
			SerialNumber: "2", Name: "SKU2",
			InputURLs:  []string{"https://a.example/3.jpg"},
			OutputURLs: []string{"https://cdn.example/c/3.jpg"},
		},
	}
	if !reflect.DeepEqual(h.reporter.rows, want) {
		t.Fatalf("unexpected report rows:\n got  %#v\n want %#v", h.reporter.rows, want)
	}
}

func TestRunFailFastStopsAtFirstFailure(t *testing.T) {
	rows := []model.Row{
		{SerialNumber: "1", Name: "SKU1", InputURLs: []string{"https://a.example/1.jpg", "https://a.example/2.jpg"}},
		{SerialNumber: "2", Name: "SKU2", InputURLs: []string{"https://a.example/3.jpg"}},
	}
	h := newHarness(rows, FailFast, "https://a.example/1.jpg")

	if err := h.pipeline.Run(context.Background(), h.id, rows); err == nil {
		t.Fatalf("expected error")
	}

	if got := h.store.status(h.id); got != model.RequestFailed {
		t.Fatalf("expected failed, got %s", got)
	}
	if len(h.transformer.calls) != 1 {
		t.Fatalf("expected only the first url to be attempted, got %v", h.transformer.calls)
	}
	if got := h.store.imageStatus(h.id, "https://a.example/1.jpg"); got != model.ImageFailed {
		t.Fatalf("expected failing image to be marked failed, got %s", got)
	}
	if got := h.store.imageStatus(h.id, "https://a.example/3.jpg"); got != model.ImagePending {
		t.Fatalf("expected row 2 to stay pending, got %s", got)
	}
	if h.reporter.calls != 0 || len(h.notifier.calls) != 0 {
		t.Fatalf("expected no report and no notification on failure")
	}
}

func TestRunIsolateAttemptsEveryImage(t *testing.T) {
	rows := []model.Row{
		{SerialNumber: "1", Name: "SKU1", InputURLs: []string{"https://a.example/1.jpg"}},
		{SerialNumber: "2", Name: "SKU2", InputURLs: []string{"https://a.example/2.jpg"}},
	}
	h := newHarness(rows, Isolate, "https://a.example/1.jpg")

	if err := h.pipeline.Run(context.Background(), h.id, rows); err == nil {
		t.Fatalf("expected error")
	}

	if len(h.transformer.calls) != 2 {
		t.Fatalf("expected every url to be attempted, got %v", h.transformer.calls)
	}
	if got := h.store.imageStatus(h.id, "https://a.example/2.jpg"); got != model.ImageCompleted {
		t.Fatalf("expected sibling image to complete, got %s", got)
	}
	if got := h.store.status(h.id); got != model.RequestFailed {
		t.Fatalf("expected failed, got %s", got)
	}
	if h.reporter.calls != 0 || len(h.notifier.calls) != 0 {
		t.Fatalf("expected no report and no notification on failure")
	}
}

func TestRunReportFailureFailsRequest(t *testing.T) {
	rows := []model.Row{{SerialNumber: "1", Name: "SKU1", InputURLs: []string{"https://a.example/1.jpg"}}}
	h := newHarness(rows, FailFast)
	h.reporter.err = errors.New("bucket unavailable")

	if err := h.pipeline.Run(context.Background(), h.id, rows); err == nil {
		t.Fatalf("expected error")
	}
	if got := h.store.status(h.id); got != model.RequestFailed {
		t.Fatalf("expected failed, got %s", got)
	}
	if len(h.notifier.calls) != 0 {
		t.Fatalf("expected no notification")
	}
}

func TestRunEmptyRequestCompletes(t *testing.T) {
	h := newHarness(nil, FailFast)

	if err := h.pipeline.Run(context.Background(), h.id, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := h.store.status(h.id); got != model.RequestCompleted {
		t.Fatalf("expected completed, got %s", got)
	}
	if h.reporter.calls != 1 {
		t.Fatalf("expected an empty report to be generated")
	}
}

func TestRunRefusesTerminalRequest(t *testing.T) {
	rows := []model.Row{{SerialNumber: "1", Name: "SKU1", InputURLs: []string{"https://a.example/1.jpg"}}}
	h := newHarness(rows, FailFast)
	h.store.requests[h.id] = model.RequestCompleted

	err := h.pipeline.Run(context.Background(), h.id, rows)
	if !errors.Is(err, errTransition) {
		t.Fatalf("expected transition error, got %v", err)
	}
	if len(h.transformer.calls) != 0 {
		t.Fatalf("expected no work for a terminal request")
	}
	if got := h.store.status(h.id); got != model.RequestCompleted {
		t.Fatalf("terminal status must not change, got %s", got)
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{in: "", want: FailFast},
		{in: "fail_fast", want: FailFast},
		{in: " Isolate ", want: Isolate},
		{in: "retry", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("ParseMode(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Fatalf("ParseMode(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
