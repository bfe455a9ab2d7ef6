package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/AzielCF/az-messenger/core/config"
	"github.com/AzielCF/az-messenger/messenger/domain"
	pkgError "github.com/AzielCF/az-messenger/pkg/error"
	"github.com/buger/jsonparser"
	"github.com/valyala/fasthttp"
)

const messagingTypeResponse = "RESPONSE"

type recipient struct {
	ID string `json:"id"`
}

type quickReply struct {
	ContentType string `json:"content_type"`
	Title       string `json:"title"`
	Payload     string `json:"payload"`
}

type outboundMessage struct {
	Text         string       `json:"text"`
	QuickReplies []quickReply `json:"quick_replies,omitempty"`
}

type sendRequest struct {
	Recipient     recipient        `json:"recipient"`
	MessagingType string           `json:"messaging_type,omitempty"`
	Message       *outboundMessage `json:"message,omitempty"`
	SenderAction  string           `json:"sender_action,omitempty"`
}

// Client is bound to one page: it sends with the page access token and
// verifies inbound webhooks with the app secret and verify token.
type Client struct {
	creds   domain.ChannelCredentials
	sendURL string
	timeout time.Duration
	http    *fasthttp.Client
}

var (
	_ domain.IPlatformSender  = (*Client)(nil)
	_ domain.IWebhookVerifier = (*Client)(nil)
)

// NewClient builds a client for creds. httpClient may be shared between pages.
func NewClient(cfg config.MessengerConfig, creds domain.ChannelCredentials, httpClient *fasthttp.Client) *Client {
	if httpClient == nil {
		httpClient = &fasthttp.Client{}
	}
	return &Client{
		creds:   creds,
		sendURL: fmt.Sprintf("%s/%s/me/messages?access_token=%s", cfg.GraphAPIURL, cfg.APIVersion, url.QueryEscape(creds.AccessToken)),
		timeout: cfg.SendTimeout,
		http:    httpClient,
	}
}

// Credentials returns the credentials the client was built with.
func (c *Client) Credentials() domain.ChannelCredentials {
	return c.creds
}

func (c *Client) SendSenderAction(ctx context.Context, recipientID string, action domain.SenderAction) error {
	return c.send(ctx, "send "+string(action), sendRequest{
		Recipient:    recipient{ID: recipientID},
		SenderAction: string(action),
	})
}

// SendText sends text with quickReplies attached as text quick replies.
func (c *Client) SendText(ctx context.Context, recipientID, text string, quickReplies []domain.QuickReplyOption) error {
	msg := &outboundMessage{Text: text}
	for _, qr := range quickReplies {
		msg.QuickReplies = append(msg.QuickReplies, quickReply{
			ContentType: "text",
			Title:       qr.Value,
			Payload:     qr.Expressions,
		})
	}
	return c.send(ctx, "send text", sendRequest{
		Recipient:     recipient{ID: recipientID},
		MessagingType: messagingTypeResponse,
		Message:       msg,
	})
}

func (c *Client) send(ctx context.Context, op string, payload sendRequest) error {
	if err := ctx.Err(); err != nil {
		return pkgError.TransportError{Op: op, Err: err}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return pkgError.TransportError{Op: op, Err: err}
	}

	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); timeout <= 0 || remaining < timeout {
			timeout = remaining
		}
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.sendURL)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetBody(body)

	if timeout > 0 {
		err = c.http.DoTimeout(req, resp, timeout)
	} else {
		err = c.http.Do(req, resp)
	}
	if err != nil {
		return pkgError.TransportError{Op: op, Err: err}
	}

	if status := resp.StatusCode(); status < 200 || status >= 300 {
		return pkgError.TransportError{Op: op, Err: graphError(status, resp.Body())}
	}
	return nil
}

// graphError extracts error.message from a Graph API error body when present.
func graphError(status int, body []byte) error {
	if msg, err := jsonparser.GetString(body, "error", "message"); err == nil && msg != "" {
		return fmt.Errorf("graph api status %d: %s", status, msg)
	}
	return fmt.Errorf("graph api status %d", status)
}
