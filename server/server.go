// Package server exposes conversation memory and chat over HTTP and WebSocket.
package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/becomeliminal/nim-memory/chat"
	"github.com/becomeliminal/nim-memory/core"
	"github.com/becomeliminal/nim-memory/memory"
	"github.com/becomeliminal/nim-memory/observability"
)

// Store is the conversation management surface. *memory.Manager implements it.
type Store interface {
	Conversations(ctx context.Context) ([]string, error)
	DeleteConversation(ctx context.Context, conversationID string) error
	Recap(ctx context.Context, conversationID string) ([]core.Turn, error)
	DebugDump() []memory.Record
}

// Chatter runs a conversation turn. *chat.Engine implements it.
type Chatter interface {
	Turn(ctx context.Context, conversationID, model, text string) (string, error)
}

// Server exposes the conversation store and chat engine over HTTP and WebSocket.
type Server struct {
	store          Store
	engine         Chatter
	metrics        *observability.Metrics // Optional
	metricsHandler http.Handler
	upgrader       websocket.Upgrader
}

// Option configures a Server.
type Option func(*Server)

// WithMetricsHandler replaces the default Prometheus handler on /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metricsHandler = h
	}
}

// New creates a Server. metrics may be nil.
func New(store Store, engine Chatter, metrics *observability.Metrics, opts ...Option) *Server {
	s := &Server{
		store:          store,
		engine:         engine,
		metrics:        metrics,
		metricsHandler: observability.MetricsHandler(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router returns the chi router serving every endpoint.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", s.handleHealth)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		s.metricsHandler.ServeHTTP(w, r)
	})

	r.Get("/v1/conversations", s.handleListConversations)
	r.Delete("/v1/conversations/{id}", s.handleDeleteConversation)
	r.Get("/v1/conversations/{id}/recap", s.handleRecap)
	r.Get("/v1/vectors", s.handleVectors)
	r.Post("/v1/chat", s.handleChat)
	r.Get("/v1/ws", s.handleWS)

	return r
}

// ChatRequest is the body of POST /v1/chat and each inbound WebSocket message.
type ChatRequest struct {
	ConversationID string `json:"conversation_id,omitempty"`
	Model          string `json:"model,omitempty"`
	Message        string `json:"message"`
}

// ChatResponse answers a ChatRequest.
type ChatResponse struct {
	ConversationID string `json:"conversation_id"`
	Reply          string `json:"reply"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	ids, err := s.store.Conversations(r.Context())
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "store_unavailable", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"conversations": ids})
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.store.DeleteConversation(r.Context(), id); err != nil {
		respondError(w, http.StatusServiceUnavailable, "store_unavailable", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"deleted": id})
}

func (s *Server) handleRecap(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	turns, err := s.store.Recap(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "store_unavailable", err.Error())
		return
	}
	memories := make([]string, 0, len(turns))
	for _, t := range turns {
		memories = append(memories, t.Content)
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"conversation_id": id,
		"memories":        memories,
	})
}

func (s *Server) handleVectors(w http.ResponseWriter, _ *http.Request) {
	records := s.store.DebugDump()
	if records == nil {
		records = []memory.Record{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"count":   len(records),
		"records": records,
	})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	resp, status, errResp := s.turn(r.Context(), req)
	if errResp != nil {
		respondJSON(w, status, errResp)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	conn.SetReadLimit(1 << 20)
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		s.countWS("inbound")

		var out any
		var req ChatRequest
		if err := json.Unmarshal(data, &req); err != nil {
			out = errorResponse{Error: err.Error(), Code: "invalid_request"}
		} else if resp, _, errResp := s.turn(r.Context(), req); errResp != nil {
			out = errResp
		} else {
			out = resp
		}

		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(out); err != nil {
			log.Printf("[SERVER] WebSocket write failed: %v", err)
			return
		}
		s.countWS("outbound")
	}
}

// turn validates req and runs it, mapping failures to a status and error body.
func (s *Server) turn(ctx context.Context, req ChatRequest) (ChatResponse, int, *errorResponse) {
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		return ChatResponse{}, http.StatusBadRequest, &errorResponse{Error: "message is required", Code: "invalid_request"}
	}
	if req.ConversationID == "" {
		req.ConversationID = memory.NewConversationID()
	}

	reply, err := s.engine.Turn(ctx, req.ConversationID, req.Model, req.Message)
	if err != nil {
		status, code := classify(err)
		log.Printf("[SERVER] Chat turn failed (conversation=%s): %v", req.ConversationID, err)
		return ChatResponse{}, status, &errorResponse{Error: err.Error(), Code: code}
	}
	return ChatResponse{ConversationID: req.ConversationID, Reply: reply}, http.StatusOK, nil
}

func classify(err error) (int, string) {
	var storeErr *memory.StoreError
	switch {
	case errors.Is(err, chat.ErrUnsupportedModel):
		return http.StatusBadRequest, "unsupported_model"
	case errors.As(err, &storeErr):
		return http.StatusServiceUnavailable, "store_unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "backend_timeout"
	default:
		return http.StatusBadGateway, "backend_error"
	}
}

func (s *Server) countWS(direction string) {
	if s.metrics != nil {
		s.metrics.WSMessages.WithLabelValues(direction).Inc()
	}
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
