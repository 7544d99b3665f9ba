package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/laasker/mod-arena-3v3-solo-queue/internal/config"
	"github.com/laasker/mod-arena-3v3-solo-queue/internal/constants"
	"github.com/laasker/mod-arena-3v3-solo-queue/internal/domain"

	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"
)

var ErrCandidateNotFound = errors.New("candidate not found")

// StatusError is a non-2xx answer from the world server.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("world API error: %d (%s)", e.Code, e.URL)
}

// WorldClient talks to the world server that owns characters and arena
// instances.
type WorldClient struct {
	baseURL     string
	apiKey      string
	client      *fasthttp.Client
	logger      zerolog.Logger
	rateLimitMu sync.RWMutex
	rateLimit   RateLimitInfo
}

type RateLimitInfo struct {
	Limit     int `json:"limit"`
	Remaining int `json:"remaining"`

	// seconds until reset
	Reset int `json:"reset"`

	UpdatedAt time.Time `json:"updated_at"`
}

func NewWorldClient(cfg *config.Config, logger zerolog.Logger) *WorldClient {
	return newWorldClient(cfg.WorldAPIURL, cfg.WorldAPIKey, nil, logger)
}

func newWorldClient(baseURL, apiKey string, dial fasthttp.DialFunc, logger zerolog.Logger) *WorldClient {
	return &WorldClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client: &fasthttp.Client{
			MaxConnsPerHost:     100,
			ReadTimeout:         constants.ExternalAPITimeout,
			WriteTimeout:        constants.ExternalAPITimeout,
			MaxIdleConnDuration: 1 * time.Minute,
			Dial:                dial,
		},
		logger: logger.With().Str("component", "world_api").Logger(),
	}
}

func (c *WorldClient) GetRateLimitInfo() RateLimitInfo {
	c.rateLimitMu.RLock()
	defer c.rateLimitMu.RUnlock()
	return c.rateLimit
}

func (c *WorldClient) updateRateLimit(resp *fasthttp.Response) {
	c.rateLimitMu.Lock()
	defer c.rateLimitMu.Unlock()

	if limit := string(resp.Header.Peek("X-Ratelimit-Limit")); limit != "" {
		if val, err := strconv.Atoi(limit); err == nil {
			c.rateLimit.Limit = val
		}
	}
	if remaining := string(resp.Header.Peek("X-Ratelimit-Remaining")); remaining != "" {
		if val, err := strconv.Atoi(remaining); err == nil {
			c.rateLimit.Remaining = val
		}
	}
	if reset := string(resp.Header.Peek("X-Ratelimit-Reset")); reset != "" {
		if val, err := strconv.Atoi(reset); err == nil {
			c.rateLimit.Reset = val
		}
	}
	c.rateLimit.UpdatedAt = time.Now()
}

// FindCandidate resolves a character by id. Offline or unknown characters
// return ErrCandidateNotFound.
func (c *WorldClient) FindCandidate(ctx context.Context, id string) (*domain.Candidate, error) {
	url := fmt.Sprintf("%s/characters/%s", c.baseURL, id)
	res, err := doRequest[CharacterResponse](ctx, c, fasthttp.MethodGet, url, nil)
	var se *StatusError
	if errors.As(err, &se) && se.Code == fasthttp.StatusNotFound {
		return nil, ErrCandidateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch character %s: %w", id, err)
	}
	if !res.Data.Online {
		return nil, ErrCandidateNotFound
	}
	return res.Data.toCandidate(), nil
}

func (c *WorldClient) StartMatch(ctx context.Context, ticket domain.MatchTicket) error {
	url := fmt.Sprintf("%s/arenas", c.baseURL)
	body := newStartMatchRequest(ticket)
	if _, err := doRequest[AckResponse](ctx, c, fasthttp.MethodPost, url, body); err != nil {
		return fmt.Errorf("failed to start match %s: %w", ticket.MatchID, err)
	}
	c.logger.Info().Str("match_id", ticket.MatchID).Int("bracket", ticket.Bracket).Msg("match started on world server")
	return nil
}

func (c *WorldClient) EndMatchUnrated(ctx context.Context, matchID string) error {
	url := fmt.Sprintf("%s/arenas/%s/end", c.baseURL, matchID)
	body := EndMatchRequest{Rated: false, Reason: "incomplete"}
	if _, err := doRequest[AckResponse](ctx, c, fasthttp.MethodPost, url, body); err != nil {
		return fmt.Errorf("failed to end match %s: %w", matchID, err)
	}
	return nil
}

func doRequest[T any](ctx context.Context, client *WorldClient, method, url string, body any) (*T, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(method)
	if client.apiKey != "" {
		req.Header.Set("Authorization", client.apiKey)
	}
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		req.Header.SetContentType("application/json")
		req.SetBody(payload)
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(constants.ExternalAPITimeout)
	}
	if err := client.client.DoDeadline(req, resp, deadline); err != nil {
		return nil, err
	}

	client.updateRateLimit(resp)

	if code := resp.StatusCode(); code < 200 || code >= 300 {
		return nil, &StatusError{Code: code, URL: url}
	}

	var result T
	if len(resp.Body()) == 0 {
		return &result, nil
	}
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

type CharacterResponse struct {
	Status int           `json:"status"`
	Data   CharacterData `json:"data"`
}

type CharacterData struct {
	GUID    string       `json:"guid"`
	Name    string       `json:"name"`
	Level   int          `json:"level"`
	Faction string       `json:"faction"`
	Online  bool         `json:"online"`
	Talents []TalentData `json:"talents"`
}

type TalentData struct {
	Tab  int `json:"tab"`
	Rank int `json:"rank"`
}

func (d CharacterData) toCandidate() *domain.Candidate {
	side := domain.SideA
	if strings.EqualFold(d.Faction, "horde") {
		side = domain.SideB
	}
	talents := make([]domain.TalentInvestment, len(d.Talents))
	for i, t := range d.Talents {
		talents[i] = domain.TalentInvestment{Tree: t.Tab, Rank: t.Rank}
	}
	return &domain.Candidate{
		ID:       d.GUID,
		Name:     d.Name,
		Level:    d.Level,
		HomeSide: side,
		Talents:  talents,
	}
}

type StartMatchRequest struct {
	MatchID string           `json:"match_id"`
	Bracket int              `json:"bracket"`
	Rated   bool             `json:"rated"`
	Teams   []StartMatchTeam `json:"teams"`
}

type StartMatchTeam struct {
	Side    string   `json:"side"`
	TeamID  int64    `json:"team_id"`
	Name    string   `json:"name"`
	Rating  int      `json:"rating"`
	Members []string `json:"members"`
}

func newStartMatchRequest(t domain.MatchTicket) StartMatchRequest {
	req := StartMatchRequest{MatchID: t.MatchID, Bracket: t.Bracket, Rated: t.Rated}
	for side, s := range t.Sides {
		req.Teams = append(req.Teams, StartMatchTeam{
			Side:    domain.Side(side).String(),
			TeamID:  s.TeamID,
			Name:    s.Name,
			Rating:  s.Rating,
			Members: s.Members,
		})
	}
	return req
}

type EndMatchRequest struct {
	Rated  bool   `json:"rated"`
	Reason string `json:"reason"`
}

type AckResponse struct {
	Status int `json:"status"`
}
