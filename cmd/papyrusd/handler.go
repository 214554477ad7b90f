package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	papyrus "github.com/fzimmer/papyrus"
	"github.com/fzimmer/papyrus/ingest"
	"github.com/fzimmer/papyrus/internal/jobs"
)

type handlerDeps struct {
	store       papyrus.Store
	engine      *papyrus.Engine
	pipeline    *ingest.Pipeline
	queue       *jobs.Queue
	logger      *slog.Logger
	uploadLimit int64
}

type server struct {
	handlerDeps
}

func newHandler(deps handlerDeps) http.Handler {
	s := &server{handlerDeps: deps}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /documents", s.handleListDocuments)
	mux.HandleFunc("POST /documents/upload", s.handleUpload)
	mux.HandleFunc("GET /tasks/{id}", s.handleTaskStatus)
	mux.HandleFunc("POST /query", s.handleQuery)

	return cors(mux)
}

// cors allows browser frontends on other origins to call the API directly.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "papyrus"})
}

func (s *server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.store.ListDocuments(r.Context())
	if err != nil {
		s.logger.Error("list documents failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list documents"})
		return
	}
	if docs == nil {
		docs = []papyrus.Document{}
	}
	writeJSON(w, http.StatusOK, docs)
}

type uploadResult struct {
	Filename   string `json:"filename"`
	DocumentID string `json:"document_id"`
	TaskID     string `json:"task_id"`
}

// handleUpload accepts one or more files as multipart form data. Each file
// gets its own document row and ingestion task; the response maps filenames
// to the task IDs to poll.
func (s *server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.uploadLimit)
	if err := r.ParseMultipartForm(s.uploadLimit); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid multipart request"})
		return
	}

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "no files provided"})
		return
	}

	var results []uploadResult
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "failed to read " + fh.Filename})
			return
		}
		content, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "failed to read " + fh.Filename})
			return
		}

		doc := papyrus.Document{
			ID:        papyrus.NewID(),
			Title:     fh.Filename,
			CreatedAt: papyrus.NowUnix(),
		}
		if err := s.store.CreateDocument(r.Context(), doc); err != nil {
			s.logger.Error("create document failed", "filename", fh.Filename, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to register document"})
			return
		}

		filename := fh.Filename
		taskID := s.queue.Submit(func(ctx context.Context) papyrus.IngestReport {
			return s.pipeline.Run(ctx, doc, content, filename)
		})

		results = append(results, uploadResult{
			Filename:   filename,
			DocumentID: doc.ID,
			TaskID:     taskID,
		})
	}

	writeJSON(w, http.StatusAccepted, results)
}

func (s *server) handleTaskStatus(w http.ResponseWriter, r *http.Request) {
	task, ok := s.queue.Status(r.PathValue("id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "task not found"})
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// handleQuery runs retrieval and streams the answer as SSE. Retrieval
// failures happen before the stream starts and produce a JSON error;
// generation failures after headers are sent arrive in-band as an
// "[ERROR] ..." data frame.
func (s *server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req papyrus.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Question == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "question is required"})
		return
	}

	prepared, err := s.engine.Prepare(r.Context(), req)
	if err != nil {
		s.logger.Error("query preparation failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, _ := w.(http.Flusher)

	events := make(chan papyrus.StreamEvent, 16)
	go s.engine.Stream(r.Context(), prepared, events)

	for ev := range events {
		if err := papyrus.WriteSSE(w, ev); err != nil {
			// Client went away; drain so the engine goroutine can finish.
			for range events {
			}
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
