package http

import (
	"encoding/json"
	"errors"
	"html/template"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"strings"

	"visiontriage/internal/core"
	"visiontriage/internal/llm"
	"visiontriage/internal/metrics"
	"visiontriage/internal/session"
	"visiontriage/pkg"
)

// Server bundles together the dependencies required by HTTP handlers.  It
// implements http.Handler so it can be mounted directly or behind a mux.
type Server struct {
	Store     *session.Store
	Consult   *core.ConsultService
	Templates *template.Template
	MaxUpload int64
}

// NewServer constructs a Server.  Templates are loaded from tmplDir, which is
// internal/http/templates relative to the working directory in normal runs.
func NewServer(store *session.Store, consult *core.ConsultService, tmplDir string, maxUpload int64) (*Server, error) {
	tmpl, err := template.ParseGlob(filepath.Join(tmplDir, "*.html"))
	if err != nil {
		return nil, err
	}
	return &Server{
		Store:     store,
		Consult:   consult,
		Templates: tmpl,
		MaxUpload: maxUpload,
	}, nil
}

// ServeHTTP dispatches incoming requests based on the URL path.  Minimal
// routing logic is implemented here to keep dependencies light.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	switch {
	case path == "/" && r.Method == http.MethodGet:
		s.handleIndex(w, r)
		return
	case path == "/healthz" && r.Method == http.MethodGet:
		io.WriteString(w, "ok")
		return
	// Create a new session: POST /api/sessions
	case path == "/api/sessions" && r.Method == http.MethodPost:
		s.handleCreateSession(w, r)
		return
	// Session actions: /api/sessions/{id}[/action]
	case strings.HasPrefix(path, "/api/sessions/"):
		parts := strings.Split(path, "/")
		if len(parts) == 4 && r.Method == http.MethodGet {
			s.handleSessionJSON(w, r, parts[3])
			return
		}
		if len(parts) == 5 && r.Method == http.MethodPost {
			sessionID, action := parts[3], parts[4]
			switch action {
			case "image":
				s.handleUploadImage(w, r, sessionID)
				return
			case "triage":
				s.handleStartTriage(w, r, sessionID)
				return
			case "answers":
				s.handleAnswer(w, r, sessionID)
				return
			case "analysis":
				s.handleRetryAnalysis(w, r, sessionID)
				return
			}
		}
	// Consultation page: GET /consult/sessions/{id}
	case strings.HasPrefix(path, "/consult/sessions/") && r.Method == http.MethodGet:
		parts := strings.Split(path, "/")
		if len(parts) >= 4 {
			s.handleConsultPage(w, r, parts[3])
			return
		}
	}
	http.NotFound(w, r)
}

// handleIndex renders the landing page with the new-consultation button.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if err := s.Templates.ExecuteTemplate(w, "index.html", nil); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// handleCreateSession creates a new anonymous session.  Browser form posts
// are redirected to the consultation page; API clients get a JSON response
// with the session ID and start URL.
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sess := s.Store.Create()
	metrics.SessionsCreated.Inc()
	startURL := "/consult/sessions/" + sess.ID
	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(pkg.CreateSessionResponse{
			SessionID: sess.ID,
			StartURL:  startURL,
		})
		return
	}
	http.Redirect(w, r, startURL, http.StatusSeeOther)
}

// handleConsultPage renders the full consultation page.  Rendering is a pure
// read of session state.
func (s *Server) handleConsultPage(w http.ResponseWriter, r *http.Request, sessionID string) {
	sess, ok := s.Store.Get(sessionID)
	if !ok {
		http.NotFound(w, r)
		return
	}
	sess.Lock()
	view := newConversationView(sess, "")
	sess.Unlock()
	if err := s.Templates.ExecuteTemplate(w, "consult.html", view); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// handleSessionJSON returns the session state as JSON, for API consumers.
func (s *Server) handleSessionJSON(w http.ResponseWriter, r *http.Request, sessionID string) {
	sess, ok := s.Store.Get(sessionID)
	if !ok {
		http.NotFound(w, r)
		return
	}
	sess.Lock()
	conv := &sess.Conversation
	view := pkg.SessionView{
		SessionID:       sess.ID,
		Phase:           conv.Phase().String(),
		HasImage:        conv.Image() != nil,
		Questions:       conv.Questions(),
		CurrentQuestion: conv.CurrentIndex(),
		History:         conv.History(),
		FinalAnalysis:   conv.FinalAnalysis(),
		CreatedAt:       sess.CreatedAt,
	}
	sess.Unlock()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(view)
}

// handleUploadImage accepts a multipart JPEG or PNG upload.  The MIME type is
// detected from the file content, not the client-supplied header.  The first
// upload wins for the session.
func (s *Server) handleUploadImage(w http.ResponseWriter, r *http.Request, sessionID string) {
	sess, ok := s.Store.Get(sessionID)
	if !ok {
		http.NotFound(w, r)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.MaxUpload)
	if err := r.ParseMultipartForm(s.MaxUpload); err != nil {
		http.Error(w, "invalid upload", http.StatusBadRequest)
		return
	}
	file, _, err := r.FormFile("image")
	if err != nil {
		http.Error(w, "missing image field", http.StatusBadRequest)
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "failed to read upload", http.StatusBadRequest)
		return
	}
	mime := http.DetectContentType(data)
	if mime != "image/jpeg" && mime != "image/png" {
		http.Error(w, "only JPEG and PNG images are accepted", http.StatusUnsupportedMediaType)
		return
	}
	sess.Lock()
	sess.Conversation.AttachImage(&pkg.ImageAttachment{Data: data, MIME: mime})
	view := newConversationView(sess, "")
	sess.Unlock()
	s.renderConversation(w, view)
}

// handleStartTriage requests the triage questionnaire from the model.  On a
// gateway or parse failure the session keeps its prior phase and the error is
// shown inline, with the start button still available.
func (s *Server) handleStartTriage(w http.ResponseWriter, r *http.Request, sessionID string) {
	sess, ok := s.Store.Get(sessionID)
	if !ok {
		http.NotFound(w, r)
		return
	}
	sess.Lock()
	err := s.Consult.StartTriage(r.Context(), &sess.Conversation)
	view := newConversationView(sess, userMessage(err))
	done := sess.Conversation.Phase() == core.PhaseComplete
	sess.Unlock()
	if err != nil {
		log.Printf("triage failed for session %s: %v", sessionID, err)
	}
	if done {
		metrics.AnalysesCompleted.Inc()
	}
	s.renderConversation(w, view)
}

// handleAnswer records the option chosen for the current question.  Answering
// the last question triggers the final-analysis call in the same pass.
func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request, sessionID string) {
	sess, ok := s.Store.Get(sessionID)
	if !ok {
		http.NotFound(w, r)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	option := r.FormValue("option")
	if strings.TrimSpace(option) == "" {
		http.Error(w, "empty answer", http.StatusBadRequest)
		return
	}
	sess.Lock()
	err := s.Consult.SubmitAnswer(r.Context(), &sess.Conversation, option)
	if errors.Is(err, core.ErrUnknownOption) || errors.Is(err, core.ErrInvalidPhase) {
		sess.Unlock()
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	view := newConversationView(sess, userMessage(err))
	done := sess.Conversation.Phase() == core.PhaseComplete
	sess.Unlock()
	if err != nil {
		log.Printf("answer failed for session %s: %v", sessionID, err)
	}
	if done {
		metrics.AnalysesCompleted.Inc()
	}
	s.renderConversation(w, view)
}

// handleRetryAnalysis re-attempts the narrative call after a failure left the
// session in analysis-pending.
func (s *Server) handleRetryAnalysis(w http.ResponseWriter, r *http.Request, sessionID string) {
	sess, ok := s.Store.Get(sessionID)
	if !ok {
		http.NotFound(w, r)
		return
	}
	sess.Lock()
	err := s.Consult.GenerateAnalysis(r.Context(), &sess.Conversation)
	if errors.Is(err, core.ErrInvalidPhase) {
		sess.Unlock()
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	view := newConversationView(sess, userMessage(err))
	done := sess.Conversation.Phase() == core.PhaseComplete
	sess.Unlock()
	if err != nil {
		log.Printf("analysis retry failed for session %s: %v", sessionID, err)
	}
	if done {
		metrics.AnalysesCompleted.Inc()
	}
	s.renderConversation(w, view)
}

// renderConversation writes the conversation fragment used by the page and by
// HTMX swaps after each action.
func (s *Server) renderConversation(w http.ResponseWriter, view conversationView) {
	if err := s.Templates.ExecuteTemplate(w, "conversation", view); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// userMessage maps gateway and parse failures to the inline message shown to
// the user.  Unexpected errors fall back to their own text.
func userMessage(err error) string {
	if err == nil {
		return ""
	}
	var transportErr *llm.TransportError
	if errors.As(err, &transportErr) {
		return "The AI service could not be reached. Please try again."
	}
	var parseErr *core.ParseError
	if errors.As(err, &parseErr) {
		return "The AI failed to generate valid triage questions. Please try again."
	}
	return err.Error()
}
