package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"identity-map-service/internal/app"
	"identity-map-service/internal/domain"
)

// Handler is the thin HTTP facade over the scoring service: decode the
// request, call the core, map the error. Nothing else lives here.
type Handler struct {
	service  *app.Service
	upgrader websocket.Upgrader
}

func NewHandler(service *app.Service) *Handler {
	return &Handler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Register mounts the facade routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/answers", h.handleSubmit)
	mux.HandleFunc("/score", h.handleScore)
	mux.HandleFunc("/distribution", h.handleDistribution)
	mux.HandleFunc("/ws", h.handleFeed)
}

type submitRequest struct {
	UserID  string              `json:"userId"`
	Answers map[string][]string `json:"answers"`
}

type scoreResponse struct {
	UserID   string  `json:"userId"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	AverageX float64 `json:"averageX"`
	AverageY float64 `json:"averageY"`
}

type distributionResponse struct {
	QuestionID   string            `json:"questionId"`
	Respondents  int64             `json:"respondents"`
	Distribution map[string]string `json:"distribution"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if req.UserID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing userId"})
		return
	}

	score, err := h.service.Submit(r.Context(), req.UserID, domain.AnswerSet(req.Answers))
	if err != nil {
		h.writeError(w, err)
		return
	}
	avg, _, err := h.service.GlobalAverage(r.Context())
	if err != nil && !errors.Is(err, domain.ErrAggregateUnavailable) {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, scoreResponse{
		UserID:   req.UserID,
		X:        score.X,
		Y:        score.Y,
		AverageX: avg.X,
		AverageY: avg.Y,
	})
}

func (h *Handler) handleScore(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing userId"})
		return
	}

	score, err := h.service.UserScore(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	avg, _, err := h.service.GlobalAverage(r.Context())
	if err != nil && !errors.Is(err, domain.ErrAggregateUnavailable) {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, scoreResponse{
		UserID:   userID,
		X:        score.X,
		Y:        score.Y,
		AverageX: avg.X,
		AverageY: avg.Y,
	})
}

func (h *Handler) handleDistribution(w http.ResponseWriter, r *http.Request) {
	questionID := r.URL.Query().Get("questionId")
	if questionID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing questionId"})
		return
	}

	dist, err := h.service.Distribution(r.Context(), questionID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, distributionResponse{
		QuestionID:   dist.QuestionID,
		Respondents:  dist.Respondents,
		Distribution: dist.Percentages,
	})
}

// handleFeed streams the running global average over a websocket.
func (h *Handler) handleFeed(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	updates, cancel, err := h.service.Subscribe(r.Context())
	if err != nil {
		_ = conn.WriteJSON(errorResponse{Error: err.Error()})
		return
	}
	defer cancel()

	// The read loop only exists to notice the client going away.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case snap, ok := <-updates:
			if !ok {
				return
			}
			if err := conn.WriteJSON(snap); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		case <-done:
			return
		}
	}
}

// writeError maps core errors onto the facade's status codes: missing user
// or question → 404, rejected answers and unsupported distributions → 422,
// anything else (store unreachable included) → 503.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrUserNotFound), errors.Is(err, domain.ErrQuestionNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrInvalidAnswer), errors.Is(err, domain.ErrUnsupportedDistribution):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrAggregateUnavailable):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	default:
		log.Printf("internal error: %v", err)
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "temporarily unavailable"})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
