package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/AzielCF/az-messenger/core/config"
	"github.com/AzielCF/az-messenger/messenger/domain"
	pkgError "github.com/AzielCF/az-messenger/pkg/error"
	"github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"
)

const defaultTimeout = 10 * time.Second

type sayRequest struct {
	Input   string         `json:"input"`
	Context map[string]any `json:"context"`
}

// Client talks to the conversational backend REST API.
type Client struct {
	baseURI   string
	userAgent string
	timeout   time.Duration
	http      *fasthttp.Client
}

var _ domain.IConversationBackend = (*Client)(nil)

func NewClient(cfg config.BackendConfig) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURI:   strings.TrimRight(cfg.APIServerURI, "/"),
		userAgent: cfg.UserAgent,
		timeout:   timeout,
		http: &fasthttp.Client{
			Name:                     cfg.UserAgent,
			NoDefaultUserAgentHeader: cfg.UserAgent == "",
			MaxIdleConnDuration:      time.Minute,
		},
	}
}

// StartConversation asks the backend for a new conversation. The raw status and
// Location header are returned; callers decide what counts as success.
func (c *Client) StartConversation(ctx context.Context, environment, botID string) (domain.ConversationStart, error) {
	op := "start conversation " + botID
	status, _, location, err := c.post(ctx, c.endpoint(environment, botID), nil)
	if err != nil {
		return domain.ConversationStart{}, pkgError.TransportError{Op: op, Err: err}
	}
	return domain.ConversationStart{StatusCode: status, Location: location}, nil
}

// Say relays text into an existing conversation and returns the response body.
func (c *Client) Say(ctx context.Context, environment, botID, conversationID, text string) ([]byte, error) {
	op := "say " + botID + "/" + conversationID
	payload, err := json.Marshal(sayRequest{Input: text, Context: map[string]any{}})
	if err != nil {
		return nil, pkgError.TransportError{Op: op, Err: err}
	}

	status, body, _, err := c.post(ctx, c.endpoint(environment, botID, conversationID), payload)
	if err != nil {
		return nil, pkgError.TransportError{Op: op, Err: err}
	}
	if status >= fasthttp.StatusBadRequest {
		return nil, pkgError.TransportError{Op: op, Err: fmt.Errorf("unexpected status %d", status)}
	}

	logrus.WithFields(logrus.Fields{"bot_id": botID, "conversation_id": conversationID}).
		Debugf("[BACKEND] response: %s", body)
	return body, nil
}

func (c *Client) endpoint(parts ...string) string {
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.PathEscape(p)
	}
	return c.baseURI + "/bots/" + strings.Join(escaped, "/")
}

// post sends a JSON POST bounded by both the client timeout and ctx.
func (c *Client) post(ctx context.Context, uri string, body []byte) (status int, respBody []byte, location string, err error) {
	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return 0, nil, "", context.DeadlineExceeded
		}
		if remaining < timeout {
			timeout = remaining
		}
	}
	if err := ctx.Err(); err != nil {
		return 0, nil, "", err
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(uri)
	req.Header.SetMethod(fasthttp.MethodPost)
	if c.userAgent != "" {
		req.Header.SetUserAgent(c.userAgent)
	}
	if body != nil {
		req.Header.SetContentType("application/json; charset=utf-8")
		req.SetBody(body)
	}

	if err := c.http.DoTimeout(req, resp, timeout); err != nil {
		return 0, nil, "", err
	}

	respBody = append([]byte(nil), resp.Body()...)
	return resp.StatusCode(), respBody, string(resp.Header.Peek(fasthttp.HeaderLocation)), nil
}
