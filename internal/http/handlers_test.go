package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"visiontriage/internal/core"
	"visiontriage/internal/llm"
	"visiontriage/internal/session"
	"visiontriage/pkg"
)

// pngBytes is a minimal payload that http.DetectContentType sniffs as
// image/png.
var pngBytes = []byte("\x89PNG\r\n\x1a\n")

type scriptedClient struct {
	structuredReply string
	structuredErr   error
	narrativeReply  string
	narrativeErr    error
	narrativeCalls  int
}

func (f *scriptedClient) RequestStructured(ctx context.Context, prompt string, image *pkg.ImageAttachment) (string, error) {
	if f.structuredErr != nil {
		return "", f.structuredErr
	}
	return f.structuredReply, nil
}

func (f *scriptedClient) RequestNarrative(ctx context.Context, prompt string, image *pkg.ImageAttachment) (string, error) {
	f.narrativeCalls++
	if f.narrativeErr != nil {
		return "", f.narrativeErr
	}
	return f.narrativeReply, nil
}

func newTestServer(t *testing.T, client llm.Client) *Server {
	t.Helper()
	srv, err := NewServer(session.NewStore(), core.NewConsultService(client), "templates", 8<<20)
	if err != nil {
		t.Fatalf("construct server: %v", err)
	}
	return srv
}

func createSession(t *testing.T, srv *Server) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/sessions", nil)
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("create session: status %d", rec.Code)
	}
	var resp pkg.CreateSessionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	if resp.SessionID == "" {
		t.Fatal("empty session ID")
	}
	return resp.SessionID
}

func uploadImage(t *testing.T, srv *Server, sessionID string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("image", "photo.png")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write(data); err != nil {
		t.Fatal(err)
	}
	mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/api/sessions/"+sessionID+"/image", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func postForm(t *testing.T, srv *Server, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req := httptest.NewRequest(http.MethodPost, path, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func getView(t *testing.T, srv *Server, sessionID string) pkg.SessionView {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/sessions/"+sessionID, nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("get session: status %d", rec.Code)
	}
	var view pkg.SessionView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode session view: %v", err)
	}
	return view
}

func TestFullConsultationFlow(t *testing.T) {
	client := &scriptedClient{
		structuredReply: `{"questions":[{"question_text":"Duration?","options":["<1d","1-3d",">3d"]}]}`,
		narrativeReply:  "## Final analysis text",
	}
	srv := newTestServer(t, client)
	id := createSession(t, srv)

	if rec := uploadImage(t, srv, id, pngBytes); rec.Code != http.StatusOK {
		t.Fatalf("upload: status %d: %s", rec.Code, rec.Body.String())
	}
	if view := getView(t, srv, id); view.Phase != "awaiting_start" || !view.HasImage {
		t.Fatalf("after upload: %+v", view)
	}

	if rec := postForm(t, srv, "/api/sessions/"+id+"/triage", nil); rec.Code != http.StatusOK {
		t.Fatalf("triage: status %d", rec.Code)
	}
	view := getView(t, srv, id)
	if view.Phase != "asking" || len(view.Questions) != 1 || len(view.History) != 0 {
		t.Fatalf("after triage: %+v", view)
	}

	rec := postForm(t, srv, "/api/sessions/"+id+"/answers", url.Values{"option": {"1-3d"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("answer: status %d: %s", rec.Code, rec.Body.String())
	}
	view = getView(t, srv, id)
	if view.Phase != "complete" {
		t.Fatalf("after answer: phase %q", view.Phase)
	}
	if view.FinalAnalysis != "## Final analysis text" {
		t.Errorf("final analysis is %q", view.FinalAnalysis)
	}
	if len(view.History) != 1 || view.History[0] != (pkg.QA{Question: "Duration?", Answer: "1-3d"}) {
		t.Errorf("history is %+v", view.History)
	}
	if client.narrativeCalls != 1 {
		t.Errorf("got %d narrative calls, want 1", client.narrativeCalls)
	}
}

func TestTriageParseFailureIsRetryable(t *testing.T) {
	client := &scriptedClient{structuredReply: "not json"}
	srv := newTestServer(t, client)
	id := createSession(t, srv)
	uploadImage(t, srv, id, pngBytes)

	rec := postForm(t, srv, "/api/sessions/"+id+"/triage", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("triage: status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "failed to generate valid triage questions") {
		t.Errorf("error not surfaced to the user:\n%s", rec.Body.String())
	}
	// The start button is still offered.
	if !strings.Contains(rec.Body.String(), "Start Triage Conversation") {
		t.Error("retry action should still be available")
	}

	view := getView(t, srv, id)
	if view.Phase != "awaiting_start" || len(view.Questions) != 0 {
		t.Fatalf("state must be untouched: %+v", view)
	}
}

func TestTransportFailureMessage(t *testing.T) {
	client := &scriptedClient{
		structuredErr: &llm.TransportError{Kind: "structured", Err: errors.New("boom")},
	}
	srv := newTestServer(t, client)
	id := createSession(t, srv)
	uploadImage(t, srv, id, pngBytes)

	rec := postForm(t, srv, "/api/sessions/"+id+"/triage", nil)
	if !strings.Contains(rec.Body.String(), "could not be reached") {
		t.Errorf("transport failure not surfaced:\n%s", rec.Body.String())
	}
	if view := getView(t, srv, id); view.Phase != "awaiting_start" {
		t.Errorf("phase is %q, want awaiting_start", view.Phase)
	}
}

func TestNarrativeFailureOffersRetry(t *testing.T) {
	client := &scriptedClient{
		structuredReply: `{"questions":[{"question_text":"Q?","options":["yes"]}]}`,
		narrativeErr:    &llm.TransportError{Kind: "narrative", Err: errors.New("timeout")},
	}
	srv := newTestServer(t, client)
	id := createSession(t, srv)
	uploadImage(t, srv, id, pngBytes)
	postForm(t, srv, "/api/sessions/"+id+"/triage", nil)

	rec := postForm(t, srv, "/api/sessions/"+id+"/answers", url.Values{"option": {"yes"}})
	if !strings.Contains(rec.Body.String(), "could not be reached") {
		t.Errorf("narrative failure not surfaced:\n%s", rec.Body.String())
	}
	view := getView(t, srv, id)
	if view.Phase != "analysis_pending" || view.FinalAnalysis != "" {
		t.Fatalf("failure must not pose as an analysis: %+v", view)
	}

	client.narrativeErr = nil
	client.narrativeReply = "recovered"
	if rec := postForm(t, srv, "/api/sessions/"+id+"/analysis", nil); rec.Code != http.StatusOK {
		t.Fatalf("retry: status %d", rec.Code)
	}
	view = getView(t, srv, id)
	if view.Phase != "complete" || view.FinalAnalysis != "recovered" {
		t.Fatalf("retry did not complete: %+v", view)
	}
}

func TestUploadRejectsNonImage(t *testing.T) {
	srv := newTestServer(t, &scriptedClient{})
	id := createSession(t, srv)

	rec := uploadImage(t, srv, id, []byte("just some text, not an image"))
	if rec.Code != http.StatusUnsupportedMediaType {
		t.Errorf("status %d, want 415", rec.Code)
	}
	if view := getView(t, srv, id); view.HasImage {
		t.Error("rejected upload must not be stored")
	}
}

func TestRenderIsIdempotent(t *testing.T) {
	client := &scriptedClient{
		structuredReply: `{"questions":[{"question_text":"Q?","options":["yes","no"]}]}`,
	}
	srv := newTestServer(t, client)
	id := createSession(t, srv)
	uploadImage(t, srv, id, pngBytes)
	postForm(t, srv, "/api/sessions/"+id+"/triage", nil)

	before := getView(t, srv, id)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/consult/sessions/"+id, nil)
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("render %d: status %d", i, rec.Code)
		}
	}
	after := getView(t, srv, id)

	if after.Phase != before.Phase ||
		after.CurrentQuestion != before.CurrentQuestion ||
		len(after.History) != len(before.History) ||
		after.FinalAnalysis != before.FinalAnalysis {
		t.Errorf("re-rendering mutated state:\nbefore %+v\nafter  %+v", before, after)
	}
}

func TestUnknownSessionIs404(t *testing.T) {
	srv := newTestServer(t, &scriptedClient{})

	for _, path := range []string{
		"/api/sessions/nope",
		"/consult/sessions/nope",
	} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s: status %d, want 404", path, rec.Code)
		}
	}
}

func TestAnswerOutsideQuestionIsConflict(t *testing.T) {
	client := &scriptedClient{
		structuredReply: `{"questions":[{"question_text":"Q?","options":["yes","no"]}]}`,
	}
	srv := newTestServer(t, client)
	id := createSession(t, srv)
	uploadImage(t, srv, id, pngBytes)
	postForm(t, srv, "/api/sessions/"+id+"/triage", nil)

	rec := postForm(t, srv, "/api/sessions/"+id+"/answers", url.Values{"option": {"maybe"}})
	if rec.Code != http.StatusConflict {
		t.Errorf("status %d, want 409", rec.Code)
	}
	if view := getView(t, srv, id); len(view.History) != 0 {
		t.Error("rejected answer must not be recorded")
	}
}
