package gdrive

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"google.golang.org/api/option"

	"github.com/sjawhar/ghost-interviewer/internal/interview"
)

type driveRequest struct {
	method string
	path   string
	body   string
}

func newTestExporter(t *testing.T, status int) (*Exporter, func() []driveRequest) {
	t.Helper()

	var mu sync.Mutex
	var requests []driveRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		requests = append(requests, driveRequest{method: r.Method, path: r.URL.Path, body: string(body)})
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status >= 300 {
			_, _ = fmt.Fprint(w, `{"error": {"code": 403, "message": "forbidden"}}`)
			return
		}
		_, _ = fmt.Fprint(w, `{"id": "doc-1"}`)
	}))
	t.Cleanup(srv.Close)

	render := func(iv interview.Interview, r interview.Report) string {
		return fmt.Sprintf("# %s scored %.1f", iv.CandidateName, r.OverallScore)
	}
	e, err := newExporter(context.Background(), "folder-1", render,
		option.WithEndpoint(srv.URL+"/drive/v3/"),
		option.WithoutAuthentication(),
	)
	if err != nil {
		t.Fatalf("newExporter failed: %v", err)
	}

	return e, func() []driveRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]driveRequest(nil), requests...)
	}
}

func TestExportCreatesThenUpdates(t *testing.T) {
	e, requests := newTestExporter(t, http.StatusOK)
	iv := interview.Interview{ID: "iv-1", CandidateName: "Ada", Role: "SRE"}
	report := interview.Report{InterviewID: "iv-1", OverallScore: 8}

	id, err := e.Export(context.Background(), iv, report)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if id != "doc-1" {
		t.Fatalf("expected doc-1, got %q", id)
	}
	if err := e.Archive(context.Background(), iv, report); err != nil {
		t.Fatalf("Archive failed: %v", err)
	}

	got := requests()
	if len(got) != 2 {
		t.Fatalf("expected 2 drive requests, got %d", len(got))
	}
	if got[0].method != http.MethodPost || !strings.HasSuffix(got[0].path, "/files") {
		t.Fatalf("expected create, got %s %s", got[0].method, got[0].path)
	}
	for _, want := range []string{"folder-1", docMimeType, "Interview report - Ada - SRE (iv-1)", "# Ada scored 8.0"} {
		if !strings.Contains(got[0].body, want) {
			t.Fatalf("create body missing %q:\n%s", want, got[0].body)
		}
	}
	if got[1].method != http.MethodPatch || !strings.HasSuffix(got[1].path, "/files/doc-1") {
		t.Fatalf("expected update of doc-1, got %s %s", got[1].method, got[1].path)
	}
}

func TestExportReturnsDriveError(t *testing.T) {
	e, _ := newTestExporter(t, http.StatusForbidden)
	iv := interview.Interview{ID: "iv-1", CandidateName: "Ada", Role: "SRE"}

	if err := e.Archive(context.Background(), iv, interview.Report{}); err == nil {
		t.Fatal("expected drive error")
	}
	if len(e.fileIDs) != 0 {
		t.Fatal("failed create should not record a file id")
	}
}

func TestNewExporterRequiresFolder(t *testing.T) {
	if _, err := newExporter(context.Background(), " ", nil, option.WithoutAuthentication()); err == nil {
		t.Fatal("expected error for empty folder id")
	}
}

func TestNewExporterMissingCredentials(t *testing.T) {
	if _, err := NewExporter(context.Background(), t.TempDir()+"/missing.json", "folder-1", nil); err == nil {
		t.Fatal("expected error for missing credentials file")
	}
}
