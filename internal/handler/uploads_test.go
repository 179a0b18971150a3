package handler

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/waflens/waflens/internal/ingest"
)

type fakePipeline struct {
	ingested   []string
	reindexRes *ingest.Result
	reindexErr error
}

func (f *fakePipeline) IngestFile(_ context.Context, filename string, content []byte) (*ingest.Result, error) {
	f.ingested = append(f.ingested, filename)
	return &ingest.Result{
		Filename: filename,
		Checksum: ingest.Checksum(content),
		Status:   ingest.StatusSuccess,
		Total:    1,
		Inserted: 1,
	}, nil
}

func (f *fakePipeline) ReindexByChecksum(context.Context, string) (*ingest.Result, error) {
	return f.reindexRes, f.reindexErr
}

func (f *fakePipeline) ReindexByID(context.Context, uuid.UUID) (*ingest.Result, error) {
	return f.reindexRes, f.reindexErr
}

func multipartBody(t *testing.T, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for name, content := range files {
		fw, err := w.CreateFormFile("files", name)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := fw.Write([]byte(content)); err != nil {
			t.Fatalf("write form file: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &buf, w.FormDataContentType()
}

func TestUpload_ProcessesEachFile(t *testing.T) {
	fake := &fakePipeline{}
	h := &UploadHandler{Pipeline: fake, MaxFileBytes: 1 << 20}

	body, contentType := multipartBody(t, map[string]string{
		"a.ndjson": `{"RayID": "r1", "Datetime": "2024-02-17T10:00:00Z"}`,
		"b.ndjson": `{"RayID": "r2", "Datetime": "2024-02-17T10:01:00Z"}`,
	})
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/uploads", body)
	req.Header.Set(echo.HeaderContentType, contentType)
	rec := httptest.NewRecorder()

	if err := h.Upload(e.NewContext(req, rec)); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(fake.ingested) != 2 {
		t.Fatalf("expected both files ingested, got %v", fake.ingested)
	}
}

func TestUpload_OversizedFileIsIsolated(t *testing.T) {
	fake := &fakePipeline{}
	h := &UploadHandler{Pipeline: fake, MaxFileBytes: 8}

	body, contentType := multipartBody(t, map[string]string{
		"huge.ndjson": strings.Repeat("x", 64),
	})
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/uploads", body)
	req.Header.Set(echo.HeaderContentType, contentType)
	rec := httptest.NewRecorder()

	if err := h.Upload(e.NewContext(req, rec)); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with per-file error, got %d", rec.Code)
	}
	if len(fake.ingested) != 0 {
		t.Fatal("oversized file must not reach the pipeline")
	}
	if !strings.Contains(rec.Body.String(), "byte limit") {
		t.Fatalf("expected size error in response, got %s", rec.Body.String())
	}
}

func TestUpload_NoFiles(t *testing.T) {
	h := &UploadHandler{Pipeline: &fakePipeline{}}
	body, contentType := multipartBody(t, nil)
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/uploads", body)
	req.Header.Set(echo.HeaderContentType, contentType)
	rec := httptest.NewRecorder()

	if err := h.Upload(e.NewContext(req, rec)); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func reindexRequestRec(t *testing.T, h *UploadHandler, payload string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/reindex", strings.NewReader(payload))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	if err := h.Reindex(e.NewContext(req, rec)); err != nil {
		t.Fatalf("reindex: %v", err)
	}
	return rec
}

func TestReindex_StatusMapping(t *testing.T) {
	cases := []struct {
		name     string
		payload  string
		err      error
		wantCode int
	}{
		{"unknown checksum", `{"checksum": "abc"}`, ingest.ErrNotFound, http.StatusNotFound},
		{"not retrievable", `{"checksum": "abc"}`, ingest.ErrNotRetrievable, http.StatusUnprocessableEntity},
		{"missing reference", `{}`, nil, http.StatusBadRequest},
		{"bad file id", `{"file_id": "not-a-uuid"}`, nil, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := &UploadHandler{Pipeline: &fakePipeline{reindexErr: tc.err}}
			rec := reindexRequestRec(t, h, tc.payload)
			if rec.Code != tc.wantCode {
				t.Fatalf("expected %d, got %d (%s)", tc.wantCode, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestReindex_Success(t *testing.T) {
	h := &UploadHandler{Pipeline: &fakePipeline{
		reindexRes: &ingest.Result{Status: ingest.StatusSuccess, Inserted: 5},
	}}
	rec := reindexRequestRec(t, h, `{"checksum": "abc"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"inserted":5`) {
		t.Fatalf("expected stats in body, got %s", rec.Body.String())
	}
}
