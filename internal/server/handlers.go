package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dummi-ai/dummi/internal/models"
	"github.com/dummi-ai/dummi/internal/recommend"
	"github.com/dummi-ai/dummi/internal/storage"
)

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var input models.UserInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if input.UserID == "" {
		s.respondError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	if _, err := s.storage.GetUser(r.Context(), input.UserID); err == nil {
		s.respondError(w, http.StatusBadRequest, "user already exists")
		return
	} else if !errors.Is(err, storage.ErrNotFound) {
		s.logger.Error("user lookup failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	user := &models.UserProfile{
		UserID:     input.UserID,
		Interests:  input.Interests,
		SkillLevel: input.SkillLevel,
	}
	if user.SkillLevel == "" {
		user.SkillLevel = models.SkillBeginner
	}
	if err := s.storage.CreateUser(r.Context(), user); err != nil {
		s.logger.Error("user creation failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusCreated, user)
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.storage.ListUsers(r.Context())
	if err != nil {
		s.logger.Error("user listing failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, users)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	user, err := s.storage.GetUser(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "user not found")
			return
		}
		s.logger.Error("user lookup failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, user)
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var update models.UserUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	user, err := s.storage.GetUser(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "user not found")
			return
		}
		s.logger.Error("user lookup failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if update.Interests != nil {
		user.Interests = update.Interests
	}
	if update.SkillLevel != "" {
		user.SkillLevel = update.SkillLevel
	}
	if err := s.storage.UpdateUser(r.Context(), user); err != nil {
		s.logger.Error("user update failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, user)
}

func (s *Server) handleCreateContent(w http.ResponseWriter, r *http.Request) {
	var input models.ContentInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if input.ContentID == "" || input.Title == "" {
		s.respondError(w, http.StatusBadRequest, "content_id and title are required")
		return
	}
	if _, err := s.storage.GetContent(r.Context(), input.ContentID); err == nil {
		s.respondError(w, http.StatusBadRequest, "content already exists")
		return
	} else if !errors.Is(err, storage.ErrNotFound) {
		s.logger.Error("content lookup failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	item := &models.ContentItem{
		ContentID:   input.ContentID,
		Title:       input.Title,
		Category:    input.Category,
		Tags:        input.Tags,
		Description: input.Description,
	}
	if err := s.storage.CreateContent(r.Context(), item); err != nil {
		s.logger.Error("content creation failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusCreated, item)
}

func (s *Server) handleListContent(w http.ResponseWriter, r *http.Request) {
	items, err := s.storage.ListContent(r.Context())
	if err != nil {
		s.logger.Error("content listing failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, items)
}

func (s *Server) handleGetContent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	item, err := s.storage.GetContent(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "content not found")
			return
		}
		s.logger.Error("content lookup failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, item)
}

func (s *Server) handleListContentByCategory(w http.ResponseWriter, r *http.Request) {
	category := chi.URLParam(r, "category")
	items, err := s.storage.ListContentByCategory(r.Context(), category)
	if err != nil {
		s.logger.Error("content listing failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, items)
}

func (s *Server) handleRecommend(w http.ResponseWriter, r *http.Request) {
	var req models.RecommendationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" {
		s.respondError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	s.logger.Debug("recommendation request", zap.String("user_id", req.UserID), zap.Int("n", req.N))
	resp, err := s.engine.Recommend(r.Context(), &req)
	if err != nil {
		if errors.Is(err, recommend.ErrUserNotFound) {
			s.respondError(w, http.StatusNotFound, "user not found")
			return
		}
		s.logger.Error("recommendation failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleInteract(w http.ResponseWriter, r *http.Request) {
	var input models.InteractionInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if input.UserID == "" || input.ContentID == "" {
		s.respondError(w, http.StatusBadRequest, "user_id and content_id are required")
		return
	}
	if input.InteractionType == "" {
		input.InteractionType = models.InteractionClick
	}
	s.recordInteraction(w, r, &input)
}

// handleFeedback maps coarse feedback onto an interaction event:
// positive becomes a like, negative a skip, anything else a click.
func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var input models.FeedbackInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if input.UserID == "" || input.ContentID == "" {
		s.respondError(w, http.StatusBadRequest, "user_id and content_id are required")
		return
	}
	interactionType := models.InteractionClick
	switch input.FeedbackType {
	case "positive":
		interactionType = models.InteractionLike
	case "negative":
		interactionType = models.InteractionSkip
	}
	s.recordInteraction(w, r, &models.InteractionInput{
		UserID:          input.UserID,
		ContentID:       input.ContentID,
		InteractionType: interactionType,
	})
}

func (s *Server) recordInteraction(w http.ResponseWriter, r *http.Request, input *models.InteractionInput) {
	ctx := r.Context()
	if _, err := s.storage.GetUser(ctx, input.UserID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "user not found")
			return
		}
		s.logger.Error("user lookup failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if _, err := s.storage.GetContent(ctx, input.ContentID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "content not found")
			return
		}
		s.logger.Error("content lookup failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	event := &models.InteractionEvent{
		ID:              uuid.NewString(),
		UserID:          input.UserID,
		ContentID:       input.ContentID,
		Type:            input.InteractionType,
		DurationSeconds: input.DurationSeconds,
		Timestamp:       time.Now().UTC(),
	}
	if err := s.storage.CreateInteraction(ctx, event); err != nil {
		s.logger.Error("interaction recording failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := s.storage.AppendUserHistory(ctx, input.UserID, input.ContentID); err != nil {
		s.logger.Warn("history append failed", zap.String("user_id", input.UserID), zap.Error(err))
	}
	s.respondJSON(w, http.StatusCreated, event)
}

func (s *Server) handleTrain(w http.ResponseWriter, r *http.Request) {
	var req models.TrainingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !req.RegenerateEmbeddings && !req.RetrainCF {
		s.respondError(w, http.StatusBadRequest, "nothing to train")
		return
	}
	s.logger.Debug("training request",
		zap.Bool("regenerate_embeddings", req.RegenerateEmbeddings),
		zap.Bool("retrain_cf", req.RetrainCF))
	resp, err := s.trainer.Train(r.Context(), req.RegenerateEmbeddings, req.RetrainCF)
	if err != nil {
		if errors.Is(err, recommend.ErrBusy) {
			s.respondError(w, http.StatusConflict, "training already in progress")
			return
		}
		s.logger.Error("training failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTrainingStatus(w http.ResponseWriter, r *http.Request) {
	vstats, cfStatus := s.trainer.Status()
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"vector_index": vstats,
		"cf_model":     cfStatus,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
