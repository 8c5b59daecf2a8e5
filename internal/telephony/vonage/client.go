// Package vonage implements the telephony client against the Vonage Voice API.
package vonage

import (
	"bytes"
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/ProductBay/vynce/internal/config"
	"github.com/ProductBay/vynce/internal/telephony"
	apperrors "github.com/ProductBay/vynce/pkg/errors"
)

const tokenTTL = 5 * time.Minute

// Client calls the Vonage Voice REST API using application JWT auth.
type Client struct {
	baseURL       string
	applicationID string
	key           *rsa.PrivateKey
	http          *http.Client
	now           func() time.Time
}

var _ telephony.Client = (*Client)(nil)

// New reads the application private key and builds a client.
func New(cfg config.VonageConfig) (*Client, error) {
	pem, err := os.ReadFile(cfg.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("vonage: read private key: %w", err)
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM(pem)
	if err != nil {
		return nil, fmt.Errorf("vonage: parse private key: %w", err)
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return NewWithKey(cfg.APIURL, cfg.ApplicationID, key, &http.Client{Timeout: timeout}), nil
}

// NewWithKey builds a client from an already parsed key.
func NewWithKey(baseURL, applicationID string, key *rsa.PrivateKey, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		applicationID: applicationID,
		key:           key,
		http:          httpClient,
		now:           time.Now,
	}
}

type phoneEndpoint struct {
	Type   string `json:"type"`
	Number string `json:"number"`
}

type createCallRequest struct {
	To               []phoneEndpoint `json:"to"`
	From             phoneEndpoint   `json:"from"`
	AnswerURL        []string        `json:"answer_url"`
	AnswerMethod     string          `json:"answer_method"`
	EventURL         []string        `json:"event_url"`
	EventMethod      string          `json:"event_method"`
	MachineDetection string          `json:"machine_detection,omitempty"`
}

type createCallResponse struct {
	UUID             string `json:"uuid"`
	Status           string `json:"status"`
	Direction        string `json:"direction"`
	ConversationUUID string `json:"conversation_uuid"`
}

type modifyCallRequest struct {
	Action      string       `json:"action"`
	Destination *destination `json:"destination,omitempty"`
}

type destination struct {
	Type string `json:"type"`
	NCCO NCCO   `json:"ncco"`
}

type errorResponse struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

// PlaceCall creates an outbound call.
func (c *Client) PlaceCall(ctx context.Context, req telephony.CallRequest) (string, error) {
	body := createCallRequest{
		To:               []phoneEndpoint{{Type: "phone", Number: providerNumber(req.To)}},
		From:             phoneEndpoint{Type: "phone", Number: providerNumber(req.From)},
		AnswerURL:        []string{req.AnswerURL},
		AnswerMethod:     http.MethodGet,
		EventURL:         []string{req.StatusURL},
		EventMethod:      http.MethodPost,
		MachineDetection: "continue",
	}

	var out createCallResponse
	if err := c.do(ctx, http.MethodPost, "/v1/calls", body, &out); err != nil {
		return "", fmt.Errorf("vonage: place call to %s: %w", req.To, err)
	}
	if out.UUID == "" {
		return "", fmt.Errorf("%w: vonage: response without call uuid", apperrors.ErrPlacement)
	}
	return out.UUID, nil
}

// Hangup terminates a live call.
func (c *Client) Hangup(ctx context.Context, callID string) error {
	if err := c.do(ctx, http.MethodPut, "/v1/calls/"+callID, modifyCallRequest{Action: "hangup"}, nil); err != nil {
		return fmt.Errorf("vonage: hangup %s: %w", callID, err)
	}
	return nil
}

// PlayAndHangup transfers the call to a talk-only NCCO, which ends the call once spoken.
func (c *Client) PlayAndHangup(ctx context.Context, callID, text string) error {
	req := modifyCallRequest{
		Action:      "transfer",
		Destination: &destination{Type: "ncco", NCCO: TalkNCCO(text)},
	}
	if err := c.do(ctx, http.MethodPut, "/v1/calls/"+callID, req, nil); err != nil {
		return fmt.Errorf("vonage: play message on %s: %w", callID, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	token, err := c.token()
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		var apiErr errorResponse
		_ = json.Unmarshal(raw, &apiErr)
		msg := apiErr.Title
		if apiErr.Detail != "" {
			msg += ": " + apiErr.Detail
		}
		if msg == "" {
			msg = strings.TrimSpace(string(raw))
		}
		return fmt.Errorf("%w: status %d: %s", apperrors.ErrPlacement, resp.StatusCode, msg)
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) token() (string, error) {
	now := c.now()
	claims := jwt.MapClaims{
		"application_id": c.applicationID,
		"iat":            now.Unix(),
		"exp":            now.Add(tokenTTL).Unix(),
		"jti":            uuid.NewString(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(c.key)
	if err != nil {
		return "", fmt.Errorf("vonage: sign token: %w", err)
	}
	return signed, nil
}

// providerNumber strips the leading "+" Vonage does not accept.
func providerNumber(n string) string {
	return strings.TrimPrefix(n, "+")
}
