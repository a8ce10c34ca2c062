package api

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/Taichi-iskw/ytscribe/internal/errors"
	"github.com/Taichi-iskw/ytscribe/internal/model"
	transcriptsvc "github.com/Taichi-iskw/ytscribe/internal/service/transcript"
)

// TranscriptHandler serves the transcript routes
type TranscriptHandler struct {
	service transcriptsvc.Service
}

// NewTranscriptHandler creates a TranscriptHandler
func NewTranscriptHandler(service transcriptsvc.Service) *TranscriptHandler {
	return &TranscriptHandler{service: service}
}

// CreateRequest is the body of POST /transcript
type CreateRequest struct {
	URL string `json:"url"`
}

// CreateResponse is returned by POST /transcript. TranscriptID is empty when
// nothing was stored.
type CreateResponse struct {
	Success      bool            `json:"success"`
	Message      string          `json:"message"`
	TranscriptID string          `json:"transcriptId"`
	VideoID      string          `json:"videoId"`
	Title        string          `json:"title"`
	Transcript   string          `json:"transcript"`
	Segments     []model.Segment `json:"segments"`
	Source       model.Source    `json:"source"`
}

// TranscriptResponse is returned by GET /transcript/:id
type TranscriptResponse struct {
	Success      bool             `json:"success"`
	TranscriptID string           `json:"transcriptId"`
	VideoID      string           `json:"videoId"`
	Title        string           `json:"title"`
	SourceURL    string           `json:"sourceUrl"`
	Transcript   string           `json:"transcript"`
	Segments     []model.Segment  `json:"segments"`
	Source       model.SourceKind `json:"source"`
	CreatedAt    time.Time        `json:"createdAt"`
}

// Create handles POST /transcript and POST /transcript/youtube
func (h *TranscriptHandler) Create(c *fiber.Ctx) error {
	var req CreateRequest
	if err := c.BodyParser(&req); err != nil {
		return errors.Wrap(err, errors.CodeInvalidArg, "invalid request body")
	}
	req.URL = strings.TrimSpace(req.URL)
	if req.URL == "" {
		return errors.New(errors.CodeInvalidArg, "url is required")
	}

	result, err := h.service.CreateTranscript(c.UserContext(), transcriptsvc.Input{URL: req.URL})
	if err != nil {
		return err
	}

	resp := CreateResponse{
		Success:  true,
		Message:  result.Message,
		VideoID:  result.VideoID,
		Source:   result.Source,
		Segments: []model.Segment{},
	}
	if t := result.Transcript; t != nil {
		resp.TranscriptID = t.ID
		resp.Title = t.Title
		resp.Transcript = t.FullText
		if t.Segments != nil {
			resp.Segments = t.Segments
		}
	}
	return c.JSON(resp)
}

// Get handles GET /transcript/:id
func (h *TranscriptHandler) Get(c *fiber.Ctx) error {
	t, err := h.service.GetTranscript(c.UserContext(), c.Params("id"))
	if err != nil {
		if errors.IsCode(err, errors.CodeNotFound) {
			return errors.Wrap(err, errors.CodeNotFound, "Transcript not found")
		}
		return err
	}

	segments := t.Segments
	if segments == nil {
		segments = []model.Segment{}
	}
	return c.JSON(TranscriptResponse{
		Success:      true,
		TranscriptID: t.ID,
		VideoID:      t.VideoID,
		Title:        t.Title,
		SourceURL:    t.SourceURL,
		Transcript:   t.FullText,
		Segments:     segments,
		Source:       t.SourceKind,
		CreatedAt:    t.CreatedAt,
	})
}

// HealthCheck handles GET /health
func HealthCheck(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}
