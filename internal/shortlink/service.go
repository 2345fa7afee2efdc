package shortlink

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mslate/shortlink/internal/model"
	"github.com/mslate/shortlink/internal/repo"
	"github.com/mslate/shortlink/internal/response"
)

// DefaultExpiry is how long a link stays resolvable when no expiry is given.
const DefaultExpiry = 360 * time.Minute

// LinkPayload is the short link representation placed in envelopes.
type LinkPayload struct {
	ID        uuid.UUID `json:"id"`
	ShortURL  string    `json:"shortUrl"`
	LongURL   string    `json:"longUrl"`
	User      uuid.UUID `json:"user"`
	Expiry    time.Time `json:"expiry"`
	CreatedAt time.Time `json:"created"`
}

// Service allocates short link records and resolves slugs to destinations.
// Every resolve re-reads the store; expiry decisions are never cached.
type Service struct {
	links    repo.LinkRepo
	baseURL  string
	pageSize int
}

// NewService creates a new short link service
func NewService(links repo.LinkRepo, baseURL string, pageSize int) *Service {
	if pageSize <= 0 {
		pageSize = 50
	}
	return &Service{
		links:    links,
		baseURL:  strings.TrimRight(baseURL, "/"),
		pageSize: pageSize,
	}
}

// Create persists a new link owned by the user. The store-assigned id is
// the public slug; expiry defaults to creation time plus DefaultExpiry.
func (s *Service) Create(ctx context.Context, owner *model.User, longURL string) (*response.Resp, error) {
	longURL = strings.TrimSpace(longURL)
	if owner == nil || longURL == "" {
		return response.Failure(http.StatusBadRequest, "Invalid Parameters",
			"Both User and LongUrl are required.", nil), nil
	}

	link := &model.ShortLink{
		UserID:  owner.ID,
		LongURL: longURL,
		Expiry:  time.Now().Add(DefaultExpiry),
	}
	if err := s.links.Create(ctx, link); err != nil {
		return nil, err
	}

	log.Printf("[shortlink][create] link %s created for user %s", link.ID, owner.Username)
	return response.OK(http.StatusCreated, "URL shortened successfully.", s.payload(link)), nil
}

// Resolve looks up a slug and returns the destination URL, subject to
// expiry. The destination is normalized with a secure scheme prefix.
func (s *Service) Resolve(ctx context.Context, slug string) (*response.Resp, error) {
	id, err := uuid.Parse(strings.TrimSpace(slug))
	if err != nil {
		return s.notFound(slug), nil
	}

	link, err := s.links.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return s.notFound(slug), nil
		}
		return nil, err
	}

	if !link.Expiry.After(time.Now()) {
		return response.Failure(http.StatusForbidden, "Link Expired",
			fmt.Sprintf("The shortlink %s/%s expired at %s.", s.baseURL, link.ID, link.Expiry.Format(time.RFC1123)),
			map[string]any{"shortUrl": slug}), nil
	}

	payload := s.payload(&link)
	payload.LongURL = NormalizeURL(payload.LongURL)
	return response.OK(http.StatusOK, "Url retrieved successfully.", payload), nil
}

// ListAll returns one page of links, newest first. Staff only.
func (s *Service) ListAll(ctx context.Context, requester *model.User, page int) (*response.Resp, error) {
	if requester == nil || !requester.IsAdmin() {
		return response.Failure(http.StatusUnauthorized, "Permission Denied",
			"Only admins are allowed to access this data.", nil), nil
	}

	if page < 1 {
		page = 1
	}
	links, err := s.links.List(ctx, s.pageSize, (page-1)*s.pageSize)
	if err != nil {
		return nil, err
	}

	results := make([]LinkPayload, 0, len(links))
	for i := range links {
		results = append(results, s.payload(&links[i]))
	}

	return response.OK(http.StatusOK,
		fmt.Sprintf("Items in page #%d retrieved successfully.", page),
		map[string]any{
			"hits":    len(results),
			"results": results,
			"page":    page,
		}), nil
}

func (s *Service) notFound(slug string) *response.Resp {
	return response.Failure(http.StatusNotFound, "Not Found", "Invalid short url.",
		map[string]any{"shortUrl": slug})
}

func (s *Service) payload(link *model.ShortLink) LinkPayload {
	return LinkPayload{
		ID:        link.ID,
		ShortURL:  fmt.Sprintf("%s/%s", s.baseURL, link.ID),
		LongURL:   link.LongURL,
		User:      link.UserID,
		Expiry:    link.Expiry,
		CreatedAt: link.CreatedAt,
	}
}

// NormalizeURL prefixes the destination with https:// when no scheme is
// present. Already-prefixed URLs pass through untouched.
func NormalizeURL(raw string) string {
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return raw
	}
	return "https://" + raw
}
