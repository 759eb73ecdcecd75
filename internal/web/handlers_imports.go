package web

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/JonMunkholm/saleimport/internal/core"
	"github.com/JonMunkholm/saleimport/internal/importer"
	"github.com/JonMunkholm/saleimport/internal/sheet"
)

// multipartMemory is how much of an upload is held in memory before the
// rest spills to a temp file.
const multipartMemory = 8 << 20

// importResponse is the JSON body of a finished import. errors carries each
// failure as {row, kind, message}; messages carries the same failures as
// display strings ("row 3: quantity must be at least 1, got 0"), in order.
type importResponse struct {
	*importer.Result
	Messages []string `json:"messages"`
}

// handleImportSales runs a bulk import of the uploaded file and returns an
// importResponse. Row-level problems are in the result, so a run that saved
// nothing still answers 200.
func (s *Server) handleImportSales(w http.ResponseWriter, r *http.Request) {
	reader, filename, cleanup, ok := s.uploadedSheet(w, r)
	if !ok {
		return
	}
	defer cleanup()

	ctx := WithRequestMetadata(r.Context(), r)
	result, err := s.service.RunImport(ctx, filename, reader)
	if err != nil {
		respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, importResponse{Result: result, Messages: result.Messages()})
}

// handlePreviewImport validates the uploaded file and reports what an import
// would create, without writing.
func (s *Server) handlePreviewImport(w http.ResponseWriter, r *http.Request) {
	reader, filename, cleanup, ok := s.uploadedSheet(w, r)
	if !ok {
		return
	}
	defer cleanup()

	preview, err := s.service.PreviewImport(WithRequestMetadata(r.Context(), r), filename, reader)
	if err != nil {
		respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, preview)
}

// uploadedSheet opens the multipart "file" field as a row reader. When ok is
// false the error response has already been written.
func (s *Server) uploadedSheet(w http.ResponseWriter, r *http.Request) (reader importer.RowReader, filename string, cleanup func(), ok bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.service.MaxFileSize())

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			respondError(w, r, fmt.Errorf("%w: limit is %d bytes", core.ErrFileTooLarge, s.service.MaxFileSize()))
			return nil, "", nil, false
		}
		respondError(w, r, fmt.Errorf("%w: %v", core.ErrNoFile, err))
		return nil, "", nil, false
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		r.MultipartForm.RemoveAll()
		respondError(w, r, core.ErrNoFile)
		return nil, "", nil, false
	}
	cleanup = func() {
		file.Close()
		r.MultipartForm.RemoveAll()
	}

	reader, err = sheet.ForFile(header.Filename, file)
	if err != nil {
		cleanup()
		respondError(w, r, err)
		return nil, "", nil, false
	}
	return reader, header.Filename, cleanup, true
}

// handleListImports returns the import history, newest first.
func (s *Server) handleListImports(w http.ResponseWriter, r *http.Request) {
	runs, err := s.service.ImportHistory(r.Context(), parseIntParam(r, "limit", 50))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

// handleGetImport returns one recorded run.
func (s *Server) handleGetImport(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	run, err := s.service.GetImportRun(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// handleActiveImports lists runs in progress and the slot usage.
func (s *Server) handleActiveImports(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"imports": s.service.ActiveImports(),
		"limiter": s.service.LimiterStatus(),
	})
}
