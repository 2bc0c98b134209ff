package server

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/SystemGuard-official/docparse/internal/common"
	"github.com/SystemGuard-official/docparse/internal/models"
)

// maxMultipartMemory bounds the in-memory portion of multipart form parsing;
// anything past this spills to temp files, handled transparently by net/http.
const maxMultipartMemory = 32 << 20

// registerRoutes sets up every endpoint of §6's HTTP surface plus the
// supplemented /ws/jobs live event stream.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ocr", s.handleSubmit(models.KindOCR, models.LaneNormal))
	mux.HandleFunc("/ocr/priority", s.handleSubmit(models.KindOCR, models.LanePriority))
	mux.HandleFunc("/ocr/status/", s.handleStatus(models.KindOCR))
	mux.HandleFunc("/ocr/queue/status", s.handleQueueStatus(models.KindOCR))

	mux.HandleFunc("/parse", s.handleSubmit(models.KindFormParse, models.LaneNormal))
	mux.HandleFunc("/parse/priority", s.handleSubmit(models.KindFormParse, models.LanePriority))
	mux.HandleFunc("/parse/status/", s.handleStatus(models.KindFormParse))
	mux.HandleFunc("/parse/queue/status", s.handleQueueStatus(models.KindFormParse))

	mux.HandleFunc("/gpu/status", s.handleGPUStatus)
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/version", s.handleVersion)
	mux.HandleFunc("/ws/jobs", s.app.Events.ServeWS)
}

// kindPath returns the URL path segment (§6's "ocr" or "parse") for a kind —
// form_parse is addressed as "parse" on the wire, unlike its models.Kind value.
func kindPath(kind models.Kind) string {
	if kind == models.KindFormParse {
		return "parse"
	}
	return "ocr"
}

// handleSubmit implements POST /<kind>[/priority]: validates the multipart
// upload, persists a pending record, enqueues the descriptor, and starts the
// pool on first submission (§4.D, §6, §7.1).
func (s *Server) handleSubmit(kind models.Kind, lane models.Lane) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !RequireMethod(w, r, http.MethodPost) {
			return
		}

		pool := s.app.PoolFor(kind)
		if pool == nil {
			WriteJSON(w, http.StatusServiceUnavailable, map[string]any{
				"success": false,
				"message": fmt.Sprintf("%s engine is not deployed", kind),
			})
			return
		}

		upload := s.app.Config.Upload
		r.Body = http.MaxBytesReader(w, r.Body, upload.MaxFileSizeBytes+(1<<20))

		if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
			WriteJSON(w, http.StatusBadRequest, map[string]any{
				"success": false,
				"message": "failed to parse multipart form: " + err.Error(),
			})
			return
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			WriteJSON(w, http.StatusBadRequest, map[string]any{
				"success": false,
				"message": "file is required",
			})
			return
		}
		defer file.Close()

		if err := validateUpload(header, upload); err != nil {
			WriteJSON(w, http.StatusBadRequest, map[string]any{
				"success": false,
				"message": err.Error(),
			})
			return
		}

		payload, err := io.ReadAll(file)
		if err != nil {
			WriteJSON(w, http.StatusBadRequest, map[string]any{
				"success": false,
				"message": "failed to read uploaded file",
			})
			return
		}
		if int64(len(payload)) > upload.MaxFileSizeBytes {
			WriteJSON(w, http.StatusBadRequest, map[string]any{
				"success": false,
				"message": "file exceeds maximum size",
			})
			return
		}

		var prompt string
		if kind == models.KindFormParse {
			prompt = r.FormValue("llm_prompt")
		}

		jobID := uuid.New().String()
		desc := &models.JobDescriptor{
			ID:       jobID,
			Kind:     kind,
			Lane:     lane,
			Filename: header.Filename,
			Payload:  payload,
			Prompt:   prompt,
		}

		if err := pool.Submit(r.Context(), desc); err != nil {
			WriteJSON(w, http.StatusInternalServerError, map[string]any{
				"success": false,
				"message": "failed to submit job: " + err.Error(),
			})
			return
		}

		WriteJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"job_id":  jobID,
			"message": "job submitted",
		})
	}
}

// validateUpload applies §7.1's validation order: extension, then declared
// MIME type, then size — all checked before any state record is created.
func validateUpload(header *multipart.FileHeader, cfg common.UploadConfig) error {
	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !containsFold(cfg.AllowedExtensions, ext) {
		return fmt.Errorf("file extension %q is not allowed", ext)
	}

	if contentType := header.Header.Get("Content-Type"); contentType != "" {
		if !containsFold(cfg.AllowedMimeTypes, contentType) {
			return fmt.Errorf("mime type %q is not allowed", contentType)
		}
	}

	if header.Size > cfg.MaxFileSizeBytes {
		return fmt.Errorf("file size %d bytes exceeds maximum of %d bytes", header.Size, cfg.MaxFileSizeBytes)
	}

	return nil
}

func containsFold(list []string, want string) bool {
	for _, v := range list {
		if strings.EqualFold(v, want) {
			return true
		}
	}
	return false
}

// handleStatus implements GET /<kind>/status/{job_id} (§6).
func (s *Server) handleStatus(kind models.Kind) http.HandlerFunc {
	prefix := fmt.Sprintf("/%s/status/", kindPath(kind))
	return func(w http.ResponseWriter, r *http.Request) {
		if !RequireMethod(w, r, http.MethodGet) {
			return
		}

		jobID := strings.TrimPrefix(r.URL.Path, prefix)
		if jobID == "" {
			WriteJSON(w, http.StatusBadRequest, map[string]any{
				"success": false,
				"message": "job_id is required",
			})
			return
		}

		rec, err := s.app.Store.Get(r.Context(), jobID)
		if err != nil {
			// Transient store failure (§7.4): the worker already did its
			// in-memory work, so this read failure doesn't mean the job
			// doesn't exist — report a degraded status, not 404.
			WriteJSON(w, http.StatusOK, map[string]any{
				"success": false,
				"status":  "error",
				"message": "job state store temporarily unavailable",
			})
			return
		}
		if rec == nil {
			WriteJSON(w, http.StatusNotFound, map[string]any{
				"success": false,
				"message": "Job ID not found",
			})
			return
		}

		resp := map[string]any{
			"success":  rec.Status != models.StatusError,
			"status":   rec.Status,
			"progress": rec.Progress,
		}
		switch rec.Status {
		case models.StatusCompleted:
			if rec.OCRResult != nil {
				resp["result"] = rec.OCRResult
			} else if rec.FormResult != nil {
				resp["result"] = rec.FormResult
			}
			resp["message"] = "job completed"
		case models.StatusError:
			resp["message"] = rec.Error
			resp["result"] = nil
		default:
			resp["message"] = fmt.Sprintf("job is %s", rec.Status)
		}

		WriteJSON(w, http.StatusOK, resp)
	}
}

// handleQueueStatus implements GET /<kind>/queue/status (§6, supplemented
// introspection from ocr_queue.py/forms_queue.py's get_queue_status()).
func (s *Server) handleQueueStatus(kind models.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !RequireMethod(w, r, http.MethodGet) {
			return
		}

		pool := s.app.PoolFor(kind)
		if pool == nil {
			WriteJSON(w, http.StatusServiceUnavailable, map[string]any{
				"success": false,
				"message": fmt.Sprintf("%s engine is not deployed", kind),
			})
			return
		}

		WriteJSON(w, http.StatusOK, pool.Status())
	}
}

// handleGPUStatus implements GET /gpu/status (§6).
func (s *Server) handleGPUStatus(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	WriteJSON(w, http.StatusOK, s.app.Admission.Stats())
}

// handleHealth implements GET /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleVersion implements GET /api/version.
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{
		"version": common.GetVersion(),
		"build":   common.GetBuild(),
		"commit":  common.GetGitCommit(),
	})
}
