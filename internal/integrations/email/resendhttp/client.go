package resendhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"

	"github.com/BearBump/ShipDesk/internal/integrations/email"
)

// ErrRateLimited: провайдер ответил 429, письмо можно повторить позже.
var ErrRateLimited = errors.New("email provider rate limit (429)")

// Client: HTTP API почтового провайдера (Resend-совместимый POST /emails).
type Client struct {
	baseURL string
	apiKey  string
	from    string
	httpc   *http.Client
}

func New(baseURL, apiKey, from string) *Client {
	if baseURL == "" {
		baseURL = "https://api.resend.com"
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		from:    from,
		httpc: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type sendReq struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Text    string   `json:"text,omitempty"`
	HTML    string   `json:"html,omitempty"`
}

type sendResp struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

func (c *Client) Send(ctx context.Context, m email.Message) error {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return errors.Wrap(err, "parse base url")
	}
	u.Path = "/emails"

	body, err := json.Marshal(sendReq{
		From:    c.from,
		To:      []string{m.To},
		Subject: m.Subject,
		Text:    m.Text,
		HTML:    m.HTML,
	})
	if err != nil {
		return errors.Wrap(err, "encode")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "new request")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	var r sendResp
	_ = json.NewDecoder(resp.Body).Decode(&r)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return ErrRateLimited
	case resp.StatusCode/100 == 4:
		return errors.Wrapf(email.ErrPermanent, "email provider http %d: %s", resp.StatusCode, r.Message)
	case resp.StatusCode/100 != 2:
		return fmt.Errorf("email provider http %d", resp.StatusCode)
	}
	if r.ID == "" {
		return errors.New("email provider: empty id")
	}
	return nil
}
