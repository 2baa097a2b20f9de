package syncclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/rocketscienceinc/kamisado-backend/internal/apperror"
	"github.com/rocketscienceinc/kamisado-backend/internal/entity"
)

// HTTPCoordinator - the REST API seen as a Coordinator.
type HTTPCoordinator struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewHTTPCoordinator(baseURL, token string, client *http.Client) *HTTPCoordinator {
	if client == nil {
		client = http.DefaultClient
	}

	return &HTTPCoordinator{
		baseURL: baseURL,
		token:   token,
		client:  client,
	}
}

type submitRequest struct {
	ExpectedIndex int  `json:"expected_move_index"`
	Action        *int `json:"action"`
}

type errorResponse struct {
	Kind  apperror.Kind `json:"kind"`
	Error string        `json:"error"`
}

type guestResponse struct {
	PlayerID string `json:"player_id"`
	Token    string `json:"token"`
}

// GuestLogin - obtains a fresh guest identity and its token.
func GuestLogin(ctx context.Context, client *http.Client, baseURL string) (string, string, error) {
	var guest guestResponse

	coordinator := NewHTTPCoordinator(baseURL, "", client)
	if err := coordinator.do(ctx, http.MethodPost, "/auth/guest", nil, &guest); err != nil {
		return "", "", err
	}

	return guest.PlayerID, guest.Token, nil
}

func (that *HTTPCoordinator) Head(ctx context.Context, matchID string) (*entity.Head, error) {
	var head entity.Head
	if err := that.do(ctx, http.MethodGet, "/matches/"+url.PathEscape(matchID)+"/head", nil, &head); err != nil {
		return nil, err
	}

	return &head, nil
}

func (that *HTTPCoordinator) Submit(ctx context.Context, matchID string, expectedIndex int, action *int) (*entity.Move, error) {
	var move entity.Move

	body := submitRequest{ExpectedIndex: expectedIndex, Action: action}
	if err := that.do(ctx, http.MethodPost, "/matches/"+url.PathEscape(matchID)+"/moves", body, &move); err != nil {
		return nil, err
	}

	return &move, nil
}

func (that *HTTPCoordinator) CreateMatch(ctx context.Context, clock *entity.ClockConfig) (*entity.Match, error) {
	var match entity.Match

	body := struct {
		Clock *entity.ClockConfig `json:"clock,omitempty"`
	}{Clock: clock}
	if err := that.do(ctx, http.MethodPost, "/matches", body, &match); err != nil {
		return nil, err
	}

	return &match, nil
}

func (that *HTTPCoordinator) JoinMatch(ctx context.Context, matchID string) (*entity.Match, error) {
	var match entity.Match
	if err := that.do(ctx, http.MethodPost, "/matches/"+url.PathEscape(matchID)+"/join", nil, &match); err != nil {
		return nil, err
	}

	return &match, nil
}

// do - rejections come back as the taxonomy error of their kind, so errors.Is works across the wire.
func (that *HTTPCoordinator) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}

		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, that.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if that.token != "" {
		req.Header.Set("Authorization", "Bearer "+that.token)
	}

	resp, err := that.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call coordinator: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var rejected errorResponse
		if err = json.NewDecoder(resp.Body).Decode(&rejected); err != nil || rejected.Kind == "" {
			return fmt.Errorf("coordinator answered %s", resp.Status)
		}

		return fmt.Errorf("%w: %s", apperror.FromKind(rejected.Kind), rejected.Error)
	}

	if err = json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}
