package queue

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"

	taraerrors "github.com/belfastkeyboard/TARA/internal/errors"
	"github.com/belfastkeyboard/TARA/internal/layout"
	"github.com/belfastkeyboard/TARA/internal/logging"
	"github.com/belfastkeyboard/TARA/internal/ocr"
	"github.com/belfastkeyboard/TARA/internal/pipeline"
	"github.com/belfastkeyboard/TARA/internal/storage"
)

type fakeRunner struct {
	result *pipeline.Result
	err    error
	block  bool
	got    *pipeline.Request
}

func (r *fakeRunner) Process(ctx context.Context, req *pipeline.Request) (*pipeline.Result, error) {
	r.got = req
	if req.Progress != nil {
		req.Progress(1, 1)
	}
	if r.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return r.result, r.err
}

type recordedJobs struct {
	mu      sync.Mutex
	updates []storage.JobUpdate
}

func (j *recordedJobs) UpdateJobStatus(ctx context.Context, update *storage.JobUpdate) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.updates = append(j.updates, *update)
	return nil
}

func (j *recordedJobs) statuses() []string {
	var out []string
	for _, u := range j.updates {
		out = append(out, u.Status)
	}
	return out
}

type recordedTracker struct {
	events  []string
	details map[string]interface{}
}

func (t *recordedTracker) MarkProcessing(ctx context.Context, jobID string) error {
	t.events = append(t.events, "processing")
	return nil
}

func (t *recordedTracker) MarkCompleted(ctx context.Context, jobID string, result map[string]interface{}) error {
	t.events = append(t.events, "completed")
	t.details = result
	return nil
}

func (t *recordedTracker) MarkFailed(ctx context.Context, jobID string, details map[string]interface{}) error {
	t.events = append(t.events, "failed")
	t.details = details
	return nil
}

func (t *recordedTracker) Progress(ctx context.Context, jobID string, done, total int) error {
	t.events = append(t.events, "progress")
	return nil
}

func newTestHandler(t *testing.T, runner Runner, timeout time.Duration) (*Handler, *recordedJobs, *recordedTracker) {
	t.Helper()
	jobs := &recordedJobs{}
	tracker := &recordedTracker{}
	h, err := NewHandler(&HandlerConfig{
		Runner:            runner,
		Jobs:              jobs,
		Tracker:           tracker,
		ProcessingTimeout: timeout,
		Logger:            logging.Nop(),
	})
	if err != nil {
		t.Fatal(err)
	}
	return h, jobs, tracker
}

func newTask(t *testing.T, p *Payload) *asynq.Task {
	t.Helper()
	task, err := NewDigitizeTask(p)
	if err != nil {
		t.Fatal(err)
	}
	return task
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestPayloadRoundTrip(t *testing.T) {
	p := DefaultPayload("/scans/book.pdf")
	task := newTask(t, p)

	if task.Type() != TaskTypeDigitize {
		t.Errorf("Type() = %q", task.Type())
	}
	if p.JobID == "" {
		t.Fatal("job ID not assigned")
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(task.Payload(), &raw); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"jobId", "path", "mode", "cropFlags", "scanFlags", "spellcheck"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("payload missing %q", key)
		}
	}

	got, err := ParsePayload(task.Payload())
	if err != nil {
		t.Fatal(err)
	}
	req, err := got.Request()
	if err != nil {
		t.Fatal(err)
	}
	if req.JobID != p.JobID || req.Path != "/scans/book.pdf" || req.Mode != pipeline.ModeAll {
		t.Errorf("request = %+v", req)
	}
	if req.Options.CropFlags != layout.CropRunningHeader|layout.CropPageNumber {
		t.Errorf("CropFlags = %v", req.Options.CropFlags)
	}
	if req.Options.ScanFlags != ocr.AllFlags || !req.Options.Spellcheck {
		t.Errorf("options = %+v", req.Options)
	}
}

func TestParsePayloadDefaults(t *testing.T) {
	testCases := []struct {
		name       string
		data       string
		spellcheck bool
		scanFlags  ocr.Flags
	}{
		{"path only", `{"path":"/scans/notes.txt"}`, true, ocr.AllFlags},
		{"explicit off", `{"path":"/scans/notes.txt","spellcheck":false,"scanFlags":0}`, false, 0},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := ParsePayload([]byte(tc.data))
			if err != nil {
				t.Fatal(err)
			}
			req, err := p.Request()
			if err != nil {
				t.Fatal(err)
			}
			if req.Mode != pipeline.ModeAll || req.Options.Spellcheck != tc.spellcheck || req.Options.ScanFlags != tc.scanFlags {
				t.Errorf("request = %+v", req)
			}
			if p.JobID == "" {
				t.Error("expected a generated job ID")
			}
		})
	}
}

func TestParsePayloadErrors(t *testing.T) {
	testCases := []struct {
		name string
		data string
	}{
		{"not json", "{"},
		{"no path", `{"jobId":"j"}`},
		{"bad mode", `{"path":"/a.pdf","mode":"ocr"}`},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParsePayload([]byte(tc.data)); err == nil {
				t.Error("ParsePayload() should fail")
			}
		})
	}
}

func TestRetryDelay(t *testing.T) {
	testCases := []struct {
		n    int
		want time.Duration
	}{
		{0, 5 * time.Second},
		{1, 10 * time.Second},
		{2, 20 * time.Second},
		{3, 40 * time.Second},
		{4, 60 * time.Second},
		{100, 60 * time.Second},
	}
	for _, tc := range testCases {
		if got := RetryDelay(tc.n, nil, nil); got != tc.want {
			t.Errorf("RetryDelay(%d) = %v, want %v", tc.n, got, tc.want)
		}
	}
}

func TestHandlerCompleted(t *testing.T) {
	runner := &fakeRunner{result: &pipeline.Result{
		TextPath:         "/scans/book.txt",
		SpellcheckedPath: "/scans/book spellchecked.txt",
		Pages:            3,
		Paragraphs:       12,
	}}
	h, jobs, tracker := newTestHandler(t, runner, time.Minute)

	p := DefaultPayload("/scans/book.pdf")
	p.JobID = "job-1"
	if err := h.ProcessTask(context.Background(), newTask(t, p)); err != nil {
		t.Fatalf("ProcessTask() error = %v", err)
	}

	if runner.got.JobID != "job-1" || runner.got.Progress == nil {
		t.Errorf("request = %+v", runner.got)
	}
	if got := jobs.statuses(); !equal(got, []string{storage.StatusProcessing, storage.StatusCompleted}) {
		t.Errorf("statuses = %v", got)
	}
	if jobs.updates[0].Source != "/scans/book.pdf" || jobs.updates[0].Mode != "all" {
		t.Errorf("first update = %+v", jobs.updates[0])
	}
	if !equal(tracker.events, []string{"processing", "progress", "completed"}) {
		t.Errorf("tracker events = %v", tracker.events)
	}
	outputs, _ := tracker.details["outputs"].([]string)
	if len(outputs) != 2 || tracker.details["pages"] != 3 {
		t.Errorf("result details = %v", tracker.details)
	}
}

func TestHandlerFailures(t *testing.T) {
	testCases := []struct {
		name      string
		err       error
		skipRetry bool
		code      taraerrors.ErrorCode
	}{
		{"not found", taraerrors.NewNotFoundError("/scans/missing.pdf"), true, taraerrors.ErrorNotFound},
		{"type mismatch", taraerrors.NewTypeMismatchError("/a.doc", ".doc", []string{".pdf"}), true, taraerrors.ErrorTypeMismatch},
		{"empty set", taraerrors.NewEmptySetError("files", "/scans"), true, taraerrors.ErrorEmptySet},
		{"segment timeout", taraerrors.NewTimeoutError("/scans/book.pdf", 3, time.Minute, nil), true, taraerrors.ErrorTimeout},
		{"ocr failure", taraerrors.NewOCRFailedError("/a/1.jpg", stderrors.New("engine")), false, taraerrors.ErrorOCRFailed},
		{"plain", stderrors.New("disk full"), false, ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			h, jobs, tracker := newTestHandler(t, &fakeRunner{err: tc.err}, time.Minute)

			err := h.ProcessTask(context.Background(), newTask(t, DefaultPayload("/scans/book.pdf")))
			if err == nil {
				t.Fatal("ProcessTask() should fail")
			}
			if got := stderrors.Is(err, asynq.SkipRetry); got != tc.skipRetry {
				t.Errorf("SkipRetry = %v, want %v", got, tc.skipRetry)
			}

			last := jobs.updates[len(jobs.updates)-1]
			if last.Status != storage.StatusFailed || last.ErrorCode != string(tc.code) {
				t.Errorf("last update = %+v", last)
			}
			if tracker.events[len(tracker.events)-1] != "failed" {
				t.Errorf("tracker events = %v", tracker.events)
			}
			if tc.code != "" && tracker.details["error_code"] != string(tc.code) {
				t.Errorf("details = %v", tracker.details)
			}
			if _, ok := tracker.details["processingTime"]; !ok {
				t.Errorf("details missing processingTime: %v", tracker.details)
			}
		})
	}
}

func TestHandlerTimeout(t *testing.T) {
	h, jobs, _ := newTestHandler(t, &fakeRunner{block: true}, 20*time.Millisecond)

	err := h.ProcessTask(context.Background(), newTask(t, DefaultPayload("/scans/book.pdf")))
	if !taraerrors.HasCode(err, taraerrors.ErrorTimeout) {
		t.Fatalf("ProcessTask() error = %v, want TIMEOUT", err)
	}
	if !stderrors.Is(err, asynq.SkipRetry) {
		t.Error("a job that hit its deadline should not be retried")
	}
	if last := jobs.updates[len(jobs.updates)-1]; last.ErrorCode != string(taraerrors.ErrorTimeout) {
		t.Errorf("last update = %+v", last)
	}
}

func TestHandlerBadPayload(t *testing.T) {
	runner := &fakeRunner{}
	h, jobs, _ := newTestHandler(t, runner, time.Minute)

	err := h.ProcessTask(context.Background(), asynq.NewTask(TaskTypeDigitize, []byte(`{"jobId":"x"}`)))
	if !stderrors.Is(err, asynq.SkipRetry) {
		t.Errorf("ProcessTask() error = %v, want SkipRetry", err)
	}
	if runner.got != nil || len(jobs.updates) != 0 {
		t.Error("invalid payload reached the pipeline")
	}
}

func TestNewHandlerRequiresRunner(t *testing.T) {
	if _, err := NewHandler(&HandlerConfig{}); err == nil {
		t.Error("NewHandler() without runner should fail")
	}
}

func TestNewConsumerValidation(t *testing.T) {
	h, _, _ := newTestHandler(t, &fakeRunner{}, time.Minute)
	testCases := []struct {
		name string
		cfg  ConsumerConfig
	}{
		{"no redis", ConsumerConfig{QueueName: "q", Handler: h}},
		{"no queue", ConsumerConfig{RedisURL: "redis://localhost:6379", Handler: h}},
		{"no handler", ConsumerConfig{RedisURL: "redis://localhost:6379", QueueName: "q"}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewConsumer(&tc.cfg); err == nil {
				t.Error("NewConsumer() should fail")
			}
		})
	}
}

func TestConsumerStatistics(t *testing.T) {
	h, _, _ := newTestHandler(t, &fakeRunner{}, time.Minute)
	c, err := NewConsumer(&ConsumerConfig{
		RedisURL:  "redis://localhost:6379/0",
		QueueName: "tara:test",
		Handler:   h,
		Logger:    logging.Nop(),
	})
	if err != nil {
		t.Fatal(err)
	}

	stats := c.GetStatistics()
	if stats["queue"] != "tara:test" || stats["concurrency"] != 1 {
		t.Errorf("GetStatistics() = %v", stats)
	}
}

func TestAsynqLogger(t *testing.T) {
	var buf bytes.Buffer
	l := newAsynqLogger(logging.NewLoggerTo(&buf, "queue"))

	l.Info("scheduler ", "started")
	l.Warn("lease expired")

	out := buf.String()
	for _, want := range []string{`msg="scheduler started"`, "level=WARN", "component=queue", "source=asynq"} {
		if !strings.Contains(out, want) {
			t.Errorf("asynq log output %q missing %q", out, want)
		}
	}
}

func TestStatusTracker(t *testing.T) {
	url := os.Getenv("TARA_TEST_REDIS_URL")
	if url == "" {
		t.Skipf("TARA_TEST_REDIS_URL not set")
	}
	ctx := context.Background()
	queueName := "tara:test:" + time.Now().Format("150405.000000")

	tracker, err := NewStatusTracker(ctx, url, queueName)
	if err != nil {
		t.Skipf("Redis unavailable: %v", err)
	}
	defer tracker.Close()
	defer tracker.client.Del(ctx,
		queueName+":processing", queueName+":completed", queueName+":failed",
		queueName+":results", queueName+":errors",
	)

	if err := tracker.MarkProcessing(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	if err := tracker.MarkProcessing(ctx, "b"); err != nil {
		t.Fatal(err)
	}
	if err := tracker.MarkCompleted(ctx, "a", map[string]interface{}{"pages": 2}); err != nil {
		t.Fatal(err)
	}
	if err := tracker.MarkFailed(ctx, "b", map[string]interface{}{"error_code": "NOT_FOUND"}); err != nil {
		t.Fatal(err)
	}

	stats, err := tracker.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats["processing"] != 0 || stats["completed"] != 1 || stats["failed"] != 1 {
		t.Errorf("Stats() = %v", stats)
	}

	res, err := tracker.Result(ctx, "b")
	if err != nil || res["error_code"] != "NOT_FOUND" {
		t.Errorf("Result(b) = %v, %v", res, err)
	}
	if _, err := tracker.Result(ctx, "missing"); !stderrors.Is(err, storage.ErrNotFound) {
		t.Errorf("Result(missing) error = %v", err)
	}
}
