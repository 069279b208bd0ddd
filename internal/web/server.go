package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"document-chat/internal/chat"
	"document-chat/internal/embedding"
	"document-chat/internal/llmservice"
	"document-chat/internal/models"
	"document-chat/internal/parser"
	"document-chat/internal/rag"
	"document-chat/internal/vectorindex"
)

const sessionCookie = "docchat_session"

// Server exposes the chat service over HTTP. All sessions share one index
// handle and every operation on it runs under mu.
type Server struct {
	svc       *chat.Service
	maxUpload int64
	upgrader  websocket.Upgrader
	markdown  goldmark.Markdown

	mu       sync.Mutex
	index    vectorindex.State
	sessions map[string]*chat.Session
}

func NewServer(svc *chat.Service, index vectorindex.State, maxUploadMB int) *Server {
	return &Server{
		svc:       svc,
		maxUpload: int64(maxUploadMB) << 20,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		markdown: goldmark.New(goldmark.WithExtensions(extension.GFM)),
		index:    index,
		sessions: make(map[string]*chat.Session),
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /api/models", s.handleModels)
	mux.HandleFunc("GET /api/history", s.handleHistory)
	mux.HandleFunc("POST /api/documents", s.handleUpload)
	mux.HandleFunc("POST /api/ask", s.handleAsk)
	mux.HandleFunc("GET /api/chat", s.handleChat)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	return mux
}

// ListenAndServe serves until ctx is cancelled
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("Starting web server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info().Msg("Shutting down web server")
		return srv.Shutdown(shutdownCtx)
	}
}

type response struct {
	Status  bool        `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

type askRequest struct {
	Model    string `json:"model"`
	Question string `json:"question"`
}

type source struct {
	Source     string  `json:"source"`
	Page       int     `json:"page"`
	Chunk      int     `json:"chunk"`
	Similarity float32 `json:"similarity"`
}

type answer struct {
	Model   string   `json:"model"`
	Content string   `json:"content"`
	HTML    string   `json:"html"`
	Sources []source `json:"sources"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("Failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, response{Status: false, Message: err.Error()})
}

// statusFor maps service errors onto HTTP status codes
func statusFor(err error) int {
	var genErr *rag.GenerationError
	var embedErr *embedding.Error
	switch {
	case errors.Is(err, chat.ErrNoDocuments), errors.Is(err, vectorindex.ErrEmptyIndex):
		return http.StatusConflict
	case errors.Is(err, llmservice.ErrUnknownModel), errors.Is(err, parser.ErrUnsupportedFormat):
		return http.StatusBadRequest
	case errors.As(err, &genErr), errors.As(err, &embedErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// session returns the caller's session, creating one and setting the cookie
// when needed. Must be called with mu held.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*chat.Session, error) {
	if c, err := r.Cookie(sessionCookie); err == nil {
		if sess, ok := s.sessions[c.Value]; ok {
			sess.Index = s.index
			return sess, nil
		}
	}
	sess, err := s.svc.SessionFor(s.index)
	if err != nil {
		return nil, err
	}
	s.sessions[sess.ID] = sess
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    sess.ID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return sess, nil
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.session(w, r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, response{Status: true, Data: map[string]interface{}{
		"models":   s.svc.Models(),
		"selected": sess.Model,
	}})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.session(w, r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, response{Status: true, Data: sess.History.Messages()})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(s.maxUpload); err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, err)
		return
	}
	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		writeError(w, http.StatusBadRequest, errors.New("no files uploaded"))
		return
	}

	files := make([]chat.File, 0, len(headers))
	for _, h := range headers {
		f, err := h.Open()
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		files = append(files, chat.File{Name: h.Filename, Data: data})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.session(w, r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	report, err := s.svc.Upload(r.Context(), sess, files)
	if err != nil {
		writeJSON(w, statusFor(err), response{Status: false, Message: err.Error(), Data: report})
		return
	}
	s.index = sess.Index
	writeJSON(w, http.StatusOK, response{Status: true, Data: report})
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.session(w, r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	ans, err := s.ask(r.Context(), sess, req)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, response{Status: true, Data: ans})
}

// ask must be called with mu held
func (s *Server) ask(ctx context.Context, sess *chat.Session, req askRequest) (*answer, error) {
	if req.Question == "" {
		return nil, errors.New("question is empty")
	}
	resp, err := s.svc.Ask(ctx, sess, req.Model, req.Question)
	if err != nil {
		return nil, err
	}
	return s.render(resp), nil
}

func (s *Server) render(resp *models.PromptResponse) *answer {
	var buf bytes.Buffer
	if err := s.markdown.Convert([]byte(resp.Content), &buf); err != nil {
		log.Warn().Err(err).Msg("Failed to render answer")
	}
	ans := &answer{Model: resp.Model, Content: resp.Content, HTML: buf.String()}
	for _, m := range resp.Sources {
		ans.Sources = append(ans.Sources, source{
			Source:     m.Chunk.Source,
			Page:       m.Chunk.PageNumber,
			Chunk:      m.Chunk.ChunkID,
			Similarity: m.Similarity,
		})
	}
	return ans
}
