package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/saint0x/ggchangelog/pkg/changelog"
	"github.com/saint0x/ggchangelog/pkg/models"
	"github.com/saint0x/ggchangelog/pkg/pipeline"
	"github.com/saint0x/ggchangelog/pkg/progress"
)

const (
	maxBodyBytes  = 1 << 20
	sseHeartbeat  = 15 * time.Second
	connectedStep = "Connected"
)

type generateRequest struct {
	Owner     string `json:"owner" validate:"required"`
	Repo      string `json:"repo" validate:"required"`
	StartDate string `json:"startDate,omitempty"`
	EndDate   string `json:"endDate,omitempty"`
}

type generateResponse struct {
	Success    bool                 `json:"success"`
	Changelog  *changelog.Changelog `json:"changelog"`
	Repository *models.Repository   `json:"repository,omitempty"`
	Stats      pipeline.Stats       `json:"stats"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var body generateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	body.Owner = strings.TrimSpace(body.Owner)
	body.Repo = strings.TrimSpace(body.Repo)
	if err := s.validate.Struct(body); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "owner and repo are required"})
			return
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	since, until, err := pipeline.ParseWindow(body.StartDate, body.EndDate)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	// The job outlives a disconnected client; only JobTimeout stops it.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), s.cfg.JobTimeout)
	defer cancel()

	res, err := s.generator.Generate(ctx, pipeline.Request{
		Owner: body.Owner,
		Repo:  body.Repo,
		Since: since,
		Until: until,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, generateResponse{
		Success:    true,
		Changelog:  res.Changelog,
		Repository: res.Repository,
		Stats:      res.Stats,
	})
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	owner := strings.TrimSpace(r.URL.Query().Get("owner"))
	repo := strings.TrimSpace(r.URL.Query().Get("repo"))
	if owner == "" || repo == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "owner and repo query parameters are required"})
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "streaming unsupported"})
		return
	}

	key := pipeline.Request{Owner: owner, Repo: repo}.Key()
	sub := s.progress.Subscribe(key)
	defer s.progress.Unsubscribe(sub)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if err := writeEvent(w, progress.Event{Progress: 0, Step: connectedStep}); err != nil {
		return
	}
	flusher.Flush()

	heartbeat := time.NewTicker(sseHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			s.logger.Debug("Progress stream for %s closed by client", key)
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := writeEvent(w, ev); err != nil {
				return
			}
			flusher.Flush()
			if ev.Terminal() {
				return
			}
		}
	}
}

func writeEvent(w http.ResponseWriter, ev progress.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}
