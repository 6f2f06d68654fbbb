package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/pavel-fokin/dropcode/internal/content"
)

// multipartMemory is how much of a multipart body is kept in memory before
// spilling to temporary files.
const multipartMemory = 32 << 20

type codeResponse struct {
	Code string `json:"code"`
}

type purgeResponse struct {
	Message         string `json:"message"`
	FilesDeleted    bool   `json:"filesDeleted"`
	DatabaseCleared bool   `json:"databaseCleared"`
}

func uploadText(svc *content.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Content string `json:"content"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			if isTooLarge(err) {
				writeError(w, http.StatusRequestEntityTooLarge, "Request entity too large")
				return
			}
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		rec, err := svc.UploadText(r.Context(), req.Content)
		if err != nil {
			slog.ErrorContext(r.Context(), "Text upload failed", "error", err)
			writeError(w, http.StatusInternalServerError, "Error uploading text")
			return
		}

		writeJSON(w, http.StatusOK, codeResponse{Code: rec.Code})
	}
}

func uploadFile(svc *content.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			if isTooLarge(err) {
				writeError(w, http.StatusRequestEntityTooLarge, "Request entity too large")
				return
			}
			writeError(w, http.StatusBadRequest, "No file uploaded")
			return
		}
		defer r.MultipartForm.RemoveAll()

		file, header, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, "No file uploaded")
			return
		}
		defer file.Close()

		rec, err := svc.UploadFile(r.Context(), &content.UploadRequest{
			Filename: header.Filename,
			Content:  file,
		})
		if err != nil {
			slog.ErrorContext(r.Context(), "File upload failed", "error", err, "filename", header.Filename)
			writeError(w, http.StatusInternalServerError, "Error uploading file")
			return
		}

		writeJSON(w, http.StatusOK, codeResponse{Code: rec.Code})
	}
}

func getContent(svc *content.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := r.PathValue("code")

		rec, err := svc.Get(r.Context(), code)
		if err != nil {
			if errors.Is(err, content.ErrNotFound) {
				writeError(w, http.StatusNotFound, "Content not found")
				return
			}
			slog.ErrorContext(r.Context(), "Get content failed", "error", err, "code", code)
			writeError(w, http.StatusInternalServerError, "Error retrieving content")
			return
		}

		writeJSON(w, http.StatusOK, rec)
	}
}

func download(svc *content.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := r.PathValue("code")

		rec, blob, err := svc.Download(r.Context(), code)
		switch {
		case errors.Is(err, content.ErrNotFound):
			writeError(w, http.StatusNotFound, "Content not found")
			return
		case errors.Is(err, content.ErrNotAFile):
			writeError(w, http.StatusBadRequest, "Content is not a file")
			return
		case errors.Is(err, content.ErrBlobNotFound):
			slog.WarnContext(r.Context(), "Blob missing for file record", "code", code)
			writeError(w, http.StatusNotFound, "File not found")
			return
		case err != nil:
			slog.ErrorContext(r.Context(), "Download failed", "error", err, "code", code)
			writeError(w, http.StatusInternalServerError, "Error downloading file")
			return
		}
		defer blob.Close()

		file := rec.Payload.(content.File)
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Disposition", contentDisposition(file.Filename))
		http.ServeContent(w, r, "", blob.ModTime, blob)
	}
}

func deleteAll(svc *content.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := svc.PurgeAll(r.Context())
		if err != nil {
			slog.ErrorContext(r.Context(), "Delete all failed", "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error":   "Failed to delete all content",
				"message": err.Error(),
			})
			return
		}

		slog.InfoContext(r.Context(), "Deleted all content",
			"records_deleted", result.RecordsDeleted,
			"blob_errors", result.BlobErrors,
		)
		writeJSON(w, http.StatusOK, purgeResponse{
			Message:         "Successfully deleted all content",
			FilesDeleted:    true,
			DatabaseCleared: true,
		})
	}
}

// contentDisposition forces a save-as download under the original name.
func contentDisposition(filename string) string {
	escaped := encodeExtValue(filename)
	return fmt.Sprintf(`attachment; filename="%s"; filename*=UTF-8''%s`, escaped, escaped)
}

// encodeExtValue percent-encodes every byte of s that is not an RFC 5987
// attr-char.
func encodeExtValue(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isAttrChar(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0f])
	}
	return b.String()
}

func isAttrChar(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	return strings.IndexByte("!#$&+-.^_`|~", c) >= 0
}
