package trace

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/me/coopsched/pkg/model"
)

func seedRun(t *testing.T, st *SQLiteStore, events int) *model.Run {
	t.Helper()
	ctx := context.Background()
	run := sampleRun()
	if err := st.CreateRun(ctx, run); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	batch := make([]model.Event, events)
	for i := range batch {
		batch[i] = model.Event{RunID: run.ID, Seq: int64(i + 1), Tick: uint64(i), TaskIndex: i % 3, StateAfter: "BLOCKED", At: time.Now()}
	}
	if err := st.AppendEvents(ctx, batch); err != nil {
		t.Fatalf("AppendEvents: %v", err)
	}
	return run
}

func TestExportRun(t *testing.T) {
	st := testStore(t)
	// More than one page of events.
	run := seedRun(t, st, exportPage+7)

	var buf bytes.Buffer
	n, err := ExportRun(context.Background(), st, run.ID, &buf)
	if err != nil {
		t.Fatalf("ExportRun: %v", err)
	}
	if n != exportPage+7 {
		t.Errorf("exported %d events, want %d", n, exportPage+7)
	}

	sc := bufio.NewScanner(&buf)
	var lines []exportRecord
	for sc.Scan() {
		var rec exportRecord
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			t.Fatalf("line %d: %v", len(lines)+1, err)
		}
		lines = append(lines, rec)
	}
	if len(lines) != n+1 {
		t.Fatalf("got %d lines, want %d", len(lines), n+1)
	}
	if lines[0].Kind != "run" || lines[0].Run.ID != run.ID {
		t.Errorf("first line = %+v, want run header", lines[0])
	}
	last := lines[len(lines)-1]
	if last.Kind != "event" || last.Event.Seq != int64(n) {
		t.Errorf("last line = %+v, want event seq %d", last, n)
	}
}

func TestExportRun_NotFound(t *testing.T) {
	st := testStore(t)
	_, err := ExportRun(context.Background(), st, "run_missing", io.Discard)
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrNotFound {
		t.Errorf("ExportRun(missing) error = %v, want NOT_FOUND", err)
	}
}

func TestParseS3URL(t *testing.T) {
	tests := []struct {
		raw     string
		want    S3Target
		wantErr bool
	}{
		{"s3://traces/blinky/run.jsonl", S3Target{"traces", "blinky/run.jsonl"}, false},
		{"s3://traces/blinky/", S3Target{"traces", "blinky/run_1.jsonl"}, false},
		{"s3://traces", S3Target{"traces", "run_1.jsonl"}, false},
		{"s3:///key", S3Target{}, true},
		{"https://traces/key", S3Target{}, true},
	}
	for _, tt := range tests {
		got, err := ParseS3URL(tt.raw, "run_1")
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseS3URL(%q) error = %v, wantErr %v", tt.raw, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseS3URL(%q) = %+v, want %+v", tt.raw, got, tt.want)
		}
	}
}

func TestUploadRun(t *testing.T) {
	var (
		mu     sync.Mutex
		method string
		path   string
		body   []byte
	)
	fake := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		mu.Lock()
		method, path, body = r.Method, r.URL.Path, data
		mu.Unlock()
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	}))
	defer fake.Close()

	dir := t.TempDir()
	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")
	t.Setenv("AWS_CONFIG_FILE", filepath.Join(dir, "config"))
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", filepath.Join(dir, "credentials"))
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")

	st := testStore(t)
	run := seedRun(t, st, 3)
	ctx := context.Background()

	up, err := NewS3Uploader(ctx, S3Config{Region: "us-east-1", Endpoint: fake.URL})
	if err != nil {
		t.Fatalf("NewS3Uploader: %v", err)
	}
	target, _ := ParseS3URL("s3://traces/blinky/", run.ID)
	n, err := UploadRun(ctx, st, run.ID, up, target)
	if err != nil {
		t.Fatalf("UploadRun: %v", err)
	}
	if n != 3 {
		t.Errorf("uploaded %d events, want 3", n)
	}

	mu.Lock()
	defer mu.Unlock()
	if method != http.MethodPut {
		t.Errorf("method = %s, want PUT", method)
	}
	if want := "/traces/blinky/" + run.ID + ".jsonl"; path != want {
		t.Errorf("path = %s, want %s", path, want)
	}
	if !strings.Contains(string(body), run.ID) {
		t.Errorf("uploaded body does not mention run: %q", body)
	}
}
