package handlers

import (
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/mslate/shortlink/internal/middleware"
	"github.com/mslate/shortlink/internal/response"
	"github.com/mslate/shortlink/internal/shortlink"
)

// LinkHandler handles short link creation, listing and resolution.
type LinkHandler struct {
	service *shortlink.Service
}

// NewLinkHandler creates a new link handler
func NewLinkHandler(service *shortlink.Service) *LinkHandler {
	return &LinkHandler{service: service}
}

type createLinkRequest struct {
	LongURL string `json:"long_url"`
}

// HandleCreate handles POST /create (authenticated).
func (h *LinkHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		response.WriteError(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
		return
	}

	var req createLinkRequest
	if err := decodeStrict(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, "Invalid Input", "invalid request body")
		return
	}

	resp, err := h.service.Create(r.Context(), user, req.LongURL)
	if err != nil {
		log.Printf("[shortlink][create] store failure: %v", err)
		response.WriteInternal(w)
		return
	}
	resp.Write(w)
}

// HandleList handles GET /list?page=N (authenticated, staff only).
func (h *LinkHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		response.WriteError(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
		return
	}

	page := 1
	if raw := r.URL.Query().Get("page"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			response.WriteError(w, http.StatusBadRequest, "Invalid Input", "page must be a positive integer")
			return
		}
		page = parsed
	}

	resp, err := h.service.ListAll(r.Context(), user, page)
	if err != nil {
		log.Printf("[shortlink][list] store failure: %v", err)
		response.WriteInternal(w)
		return
	}
	resp.Write(w)
}

// HandleResolve handles GET /{slug}: a permanent redirect to the
// destination on success, the failure envelope otherwise.
func (h *LinkHandler) HandleResolve(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")

	resp, err := h.service.Resolve(r.Context(), slug)
	if err != nil {
		log.Printf("[shortlink][resolve] store failure: %v", err)
		response.WriteInternal(w)
		return
	}
	if resp.Failed() {
		resp.Write(w)
		return
	}

	link, ok := resp.Data.(shortlink.LinkPayload)
	if !ok {
		response.WriteInternal(w)
		return
	}
	http.Redirect(w, r, link.LongURL, http.StatusMovedPermanently)
}
