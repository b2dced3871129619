package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/custodia-labs/sitechat/internal/core/domain"
	"github.com/custodia-labs/sitechat/internal/core/ports/driving"
)

// siteNotFoundMessage is shown when a question targets an unknown site
const siteNotFoundMessage = "Site not found. Make sure you are using correct link"

// ErrorResponse represents an API error response
// @Description API error response
type ErrorResponse struct {
	Message string `json:"message" example:"invalid request body"`
}

// StatusResponse represents a simple status response
// @Description Simple status response
type StatusResponse struct {
	Status string `json:"status" example:"ok"`
}

// VersionResponse represents the API version response
// @Description API version response
type VersionResponse struct {
	Version string `json:"version" example:"1.0.0"`
}

// ReadyResponse reports the state of each backing component
// @Description Readiness response
type ReadyResponse struct {
	Status       string               `json:"status" example:"ready"`
	Components   map[string]string    `json:"components"`
	Capabilities *domain.Capabilities `json:"capabilities,omitempty"`
}

// AskRequest is the body of a direct-mode question
// @Description Direct question
type AskRequest struct {
	Question string `json:"question" example:"What does the basic plan cost?"`
}

// ConversationMessage is one client supplied turn
type ConversationMessage struct {
	Role    string `json:"role" example:"user"`
	Content string `json:"content"`
}

// AskStreamRequest is the body of an agentic conversation
// @Description Conversation for streaming answers
type AskStreamRequest struct {
	Messages []ConversationMessage `json:"messages"`
}

// TokenEvent carries one chunk of answer text
type TokenEvent struct {
	Token string `json:"token"`
}

// DoneEvent closes a stream with the full answer
type DoneEvent struct {
	Answer string `json:"answer"`
}

// Health endpoints

// handleHealth godoc
// @Summary      Health check
// @Description  Returns the health status of the API
// @Tags         Health
// @Produce      json
// @Success      200  {object}  StatusResponse
// @Router       /health [get]
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}

// handleReady godoc
// @Summary      Readiness check
// @Description  Checks the database, queue and AI services
// @Tags         Health
// @Produce      json
// @Success      200  {object}  ReadyResponse
// @Failure      503  {object}  ReadyResponse
// @Router       /ready [get]
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	components := make(map[string]string)
	ready := true

	check := func(name string, ping func(context.Context) error) {
		if err := ping(ctx); err != nil {
			components[name] = "unhealthy: " + err.Error()
			ready = false
			return
		}
		components[name] = "healthy"
	}

	if s.db != nil {
		check("database", s.db.Ping)
	}
	if s.taskQueue != nil {
		check("queue", s.taskQueue.Ping)
	}

	// AI services are optional; missing ones do not fail readiness
	if s.aiServices != nil {
		if emb := s.aiServices.EmbeddingService(); emb != nil {
			check("embedding", emb.HealthCheck)
		} else {
			components["embedding"] = "not configured"
		}
		if llm := s.aiServices.LLMService(); llm != nil {
			check("llm", llm.Ping)
		} else {
			components["llm"] = "not configured"
		}
	}

	resp := ReadyResponse{Status: "ready", Components: components}
	if s.aiServices != nil {
		caps := s.aiServices.Capabilities()
		resp.Capabilities = &caps
	}
	if !ready {
		resp.Status = "not ready"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleVersion godoc
// @Summary      Get API version
// @Description  Returns the current API version
// @Tags         Health
// @Produce      json
// @Success      200  {object}  VersionResponse
// @Router       /version [get]
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, VersionResponse{Version: s.version})
}

// Ingestion endpoints

// handleTriggerIngestion godoc
// @Summary      Ingest a site
// @Description  Starts crawling, chunking and embedding a website
// @Tags         Ingestion
// @Accept       json
// @Produce      json
// @Param        request  body      driving.TriggerRequest  true  "Site to ingest"
// @Success      202      {object}  driving.TriggerResponse
// @Failure      400      {object}  ErrorResponse  "Invalid URL or type"
// @Failure      409      {object}  ErrorResponse  "Site already ingested"
// @Failure      500      {object}  ErrorResponse  "Internal server error"
// @Router       /ingestions [post]
func (s *Server) handleTriggerIngestion(w http.ResponseWriter, r *http.Request) {
	var req driving.TriggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := s.ingestionService.Trigger(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrAlreadyExists):
			writeError(w, http.StatusConflict, "site already exists")
		case errors.Is(err, domain.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			log.Printf("trigger ingestion: %v", err)
			writeError(w, http.StatusInternalServerError, "failed to start ingestion")
		}
		return
	}

	writeJSON(w, http.StatusAccepted, resp)
}

// handleGetIngestion godoc
// @Summary      Ingestion status
// @Description  Returns the status of an ingestion instance
// @Tags         Ingestion
// @Produce      json
// @Param        id   path      string  true  "Instance ID"
// @Success      200  {object}  driving.InstanceStatusResponse
// @Failure      404  {object}  ErrorResponse  "Instance not found"
// @Router       /ingestions/{id} [get]
func (s *Server) handleGetIngestion(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	resp, err := s.ingestionService.Status(r.Context(), id)
	if err != nil {
		writeServiceError(w, err, "instance not found", "failed to get ingestion status")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Site endpoints

// handleListSites godoc
// @Summary      List sites
// @Tags         Sites
// @Produce      json
// @Success      200  {array}   domain.Site
// @Failure      500  {object}  ErrorResponse  "Internal server error"
// @Router       /sites [get]
func (s *Server) handleListSites(w http.ResponseWriter, r *http.Request) {
	sites, err := s.siteService.List(r.Context())
	if err != nil {
		log.Printf("list sites: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list sites")
		return
	}

	writeJSON(w, http.StatusOK, sites)
}

// handleGetSite godoc
// @Summary      Get site
// @Description  Returns a site with its pages
// @Tags         Sites
// @Produce      json
// @Param        id   path      string  true  "Site ID"
// @Success      200  {object}  domain.SiteWithPages
// @Failure      404  {object}  ErrorResponse  "Site not found"
// @Router       /sites/{id} [get]
func (s *Server) handleGetSite(w http.ResponseWriter, r *http.Request) {
	site, err := s.siteService.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err, "site not found", "failed to get site")
		return
	}

	writeJSON(w, http.StatusOK, site)
}

// handleDeleteSite godoc
// @Summary      Delete site
// @Description  Deletes a site with its pages and chunks
// @Tags         Sites
// @Param        id   path  string  true  "Site ID"
// @Success      204  "No Content"
// @Failure      404  {object}  ErrorResponse  "Site not found"
// @Router       /sites/{id} [delete]
func (s *Server) handleDeleteSite(w http.ResponseWriter, r *http.Request) {
	if err := s.siteService.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeServiceError(w, err, "site not found", "failed to delete site")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Page endpoints

// handleGetPage godoc
// @Summary      Get page
// @Description  Returns a page with its chunks
// @Tags         Pages
// @Produce      json
// @Param        id   path      string  true  "Page ID"
// @Success      200  {object}  driving.PageView
// @Failure      404  {object}  ErrorResponse  "Page not found"
// @Router       /pages/{id} [get]
func (s *Server) handleGetPage(w http.ResponseWriter, r *http.Request) {
	page, err := s.siteService.GetPage(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err, "page not found", "failed to get page")
		return
	}

	writeJSON(w, http.StatusOK, page)
}

// handleDeletePage godoc
// @Summary      Delete page
// @Tags         Pages
// @Param        id   path  string  true  "Page ID"
// @Success      204  "No Content"
// @Failure      404  {object}  ErrorResponse  "Page not found"
// @Router       /pages/{id} [delete]
func (s *Server) handleDeletePage(w http.ResponseWriter, r *http.Request) {
	if err := s.siteService.DeletePage(r.Context(), r.PathValue("id")); err != nil {
		writeServiceError(w, err, "page not found", "failed to delete page")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Answer endpoints

// handleAsk godoc
// @Summary      Ask a question
// @Description  Answers from context retrieved for the question
// @Tags         Answers
// @Accept       json
// @Produce      json
// @Param        id       path      string      true  "Site ID"
// @Param        request  body      AskRequest  true  "Question"
// @Success      200      {object}  domain.Answer
// @Failure      400      {object}  ErrorResponse  "Missing question"
// @Failure      404      {object}  ErrorResponse  "Site not found"
// @Failure      503      {object}  ErrorResponse  "LLM not configured"
// @Router       /sites/{id}/ask [post]
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	answer, err := s.answerService.Ask(r.Context(), r.PathValue("id"), req.Question)
	if err != nil {
		writeServiceError(w, err, siteNotFoundMessage, "failed to answer question")
		return
	}

	writeJSON(w, http.StatusOK, answer)
}

// handleAskStream godoc
// @Summary      Converse with a site
// @Description  Streams an answer as server-sent events: token events, then done
// @Tags         Answers
// @Accept       json
// @Produce      text/event-stream
// @Param        id       path      string            true  "Site ID"
// @Param        request  body      AskStreamRequest  true  "Conversation"
// @Success      200      {string}  string  "event stream"
// @Failure      400      {object}  ErrorResponse  "Invalid conversation"
// @Failure      404      {object}  ErrorResponse  "Site not found"
// @Router       /sites/{id}/ask/stream [post]
func (s *Server) handleAskStream(w http.ResponseWriter, r *http.Request) {
	var req AskStreamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	messages := make([]domain.ChatMessage, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = domain.ChatMessage{Role: domain.ChatRole(m.Role), Content: m.Content}
	}

	stream := newEventStream(w)
	answer, err := s.answerService.AskStream(r.Context(), r.PathValue("id"), messages, func(token string) error {
		return stream.send("token", TokenEvent{Token: token})
	})
	if err != nil {
		// Nothing written yet: answer with a plain JSON error
		if !stream.started {
			writeServiceError(w, err, siteNotFoundMessage, "failed to answer")
			return
		}
		log.Printf("ask stream: %v", err)
		_ = stream.send("error", ErrorResponse{Message: "failed to answer"})
		return
	}

	_ = stream.send("done", DoneEvent{Answer: answer})
}

// eventStream writes server-sent events. Headers are sent with the first
// event so failures before any output can still use a normal status code.
type eventStream struct {
	w       http.ResponseWriter
	rc      *http.ResponseController
	started bool
}

func newEventStream(w http.ResponseWriter) *eventStream {
	return &eventStream{w: w, rc: http.NewResponseController(w)}
}

func (e *eventStream) send(event string, data any) error {
	if !e.started {
		// Long answers outlive the server write timeout
		_ = e.rc.SetWriteDeadline(time.Time{})
		h := e.w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		e.w.WriteHeader(http.StatusOK)
		e.started = true
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(e.w, "event: %s\ndata: %s\n\n", event, raw); err != nil {
		return err
	}
	return e.rc.Flush()
}

// writeServiceError maps domain errors to status codes
func writeServiceError(w http.ResponseWriter, err error, notFoundMessage, fallback string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, notFoundMessage)
	case errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrAlreadyExists):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrServiceUnavailable):
		writeError(w, http.StatusServiceUnavailable, "AI service is not configured")
	default:
		log.Printf("%s: %v", fallback, err)
		writeError(w, http.StatusInternalServerError, fallback)
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Message: message})
}
