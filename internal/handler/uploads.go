package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/waflens/waflens/internal/ingest"
	"github.com/waflens/waflens/internal/repository"
	"github.com/waflens/waflens/internal/response"
)

// Ingestor is the pipeline surface the upload handler needs.
type Ingestor interface {
	IngestFile(ctx context.Context, filename string, content []byte) (*ingest.Result, error)
	ReindexByChecksum(ctx context.Context, checksum string) (*ingest.Result, error)
	ReindexByID(ctx context.Context, id uuid.UUID) (*ingest.Result, error)
}

// UploadHandler handles file ingestion and reindex requests.
type UploadHandler struct {
	Pipeline     Ingestor
	UploadRepo   *repository.UploadRepository
	MaxFileBytes int64
}

type reindexRequest struct {
	Checksum string `json:"checksum"`
	FileID   string `json:"file_id"`
}

// Upload ingests every file in the multipart form field "files",
// sequentially (POST /api/uploads). A failure on one file is reported
// in that file's result and does not abort its siblings.
func (h *UploadHandler) Upload(c echo.Context) error {
	form, err := c.MultipartForm()
	if err != nil {
		return response.BadRequest(c, "invalid multipart form", err.Error())
	}
	files := form.File["files"]
	if len(files) == 0 {
		return response.BadRequest(c, "no files provided", "multipart field 'files' is required")
	}

	results := make([]*ingest.Result, 0, len(files))
	for _, fh := range files {
		results = append(results, h.ingestOne(c.Request().Context(), fh))
	}
	return response.OK(c, map[string]any{"results": results}, "")
}

func (h *UploadHandler) ingestOne(ctx context.Context, fh *multipart.FileHeader) *ingest.Result {
	if h.MaxFileBytes > 0 && fh.Size > h.MaxFileBytes {
		return &ingest.Result{
			Filename: fh.Filename,
			Status:   ingest.StatusError,
			Errors:   []string{fmt.Sprintf("file exceeds the %d byte limit", h.MaxFileBytes)},
		}
	}
	f, err := fh.Open()
	if err != nil {
		return &ingest.Result{
			Filename: fh.Filename,
			Status:   ingest.StatusError,
			Errors:   []string{"open file: " + err.Error()},
		}
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		return &ingest.Result{
			Filename: fh.Filename,
			Status:   ingest.StatusError,
			Errors:   []string{"read file: " + err.Error()},
		}
	}

	res, err := h.Pipeline.IngestFile(ctx, fh.Filename, content)
	if err != nil {
		return &ingest.Result{
			Filename: fh.Filename,
			Status:   ingest.StatusError,
			Errors:   []string{err.Error()},
		}
	}
	return res
}

// Reindex replays a stored file from its retained raw content
// (POST /api/reindex). Accepts {"checksum": ...} or {"file_id": ...}.
func (h *UploadHandler) Reindex(c echo.Context) error {
	var req reindexRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, "invalid JSON body", err.Error())
	}

	var (
		res *ingest.Result
		err error
	)
	switch {
	case req.Checksum != "":
		res, err = h.Pipeline.ReindexByChecksum(c.Request().Context(), req.Checksum)
	case req.FileID != "":
		id, parseErr := uuid.Parse(req.FileID)
		if parseErr != nil {
			return response.BadRequest(c, "invalid file_id", parseErr.Error())
		}
		res, err = h.Pipeline.ReindexByID(c.Request().Context(), id)
	default:
		return response.BadRequest(c, "missing reference", "either 'checksum' or 'file_id' is required")
	}

	if err != nil {
		switch {
		case errors.Is(err, ingest.ErrNotFound):
			return response.NotFound(c, "unknown file", err.Error())
		case errors.Is(err, ingest.ErrNotRetrievable):
			return response.UnprocessableEntity(c, "raw content not retrievable", err.Error())
		default:
			return response.InternalError(c, "reindex failed", err.Error())
		}
	}
	return response.OK(c, res, "")
}

// List returns all ingested files (GET /api/uploads).
func (h *UploadHandler) List(c echo.Context) error {
	list, err := h.UploadRepo.List(c.Request().Context())
	if err != nil {
		return response.InternalError(c, "list uploads failed", err.Error())
	}
	out := make([]map[string]any, 0, len(list))
	for _, up := range list {
		out = append(out, map[string]any{
			"file_id":     up.ID.String(),
			"filename":    up.Filename,
			"checksum":    up.Checksum,
			"size":        up.Size,
			"uploaded_at": up.UploadedAt,
			"retained":    up.RawKey != "",
			"total":       up.Total,
			"inserted":    up.Inserted,
			"deduped":     up.Deduped,
		})
	}
	return response.OK(c, map[string]any{"uploads": out}, "")
}
