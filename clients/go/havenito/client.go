// Package havenito provides a client for the Havenito messaging fallback API.
// It covers the stateless HTTP surface only; realtime clients speak the
// WebSocket protocol directly.
package havenito

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Client is a Havenito messaging API client.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient creates a new client.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Message mirrors the server's wire record.
type Message struct {
	ID             int64  `json:"id"`
	ConversationID int64  `json:"conversationId"`
	SenderID       int64  `json:"senderId"`
	Content        string `json:"content"`
	SentAt         string `json:"sentAt"`
	ReplyToID      *int64 `json:"replyToId"`
}

// SendMessageRequest is the create-message body.
type SendMessageRequest struct {
	ConversationID int64  `json:"conversationId,omitempty"`
	SenderID       int64  `json:"senderId"`
	RecipientID    int64  `json:"recipientId,omitempty"`
	Content        string `json:"content"`
	ReplyToID      *int64 `json:"replyToId,omitempty"`
	ClientTempID   string `json:"clientTempId,omitempty"`
}

// SendMessageResponse is the create-message result.
type SendMessageResponse struct {
	Success      bool     `json:"success"`
	Message      *Message `json:"message"`
	Duplicate    bool     `json:"duplicate"`
	ClientTempID string   `json:"clientTempId"`
}

// SendMessage submits a message over the fallback path. Retrying the same
// call within the server's dedup window returns the original record with
// Duplicate set.
func (c *Client) SendMessage(ctx context.Context, req SendMessageRequest) (*SendMessageResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/messages", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	var out SendMessageResponse
	if err := c.do(httpReq, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ConversationMessages fetches a conversation's history ascending. since may
// be zero; afterID is the preferred cursor.
func (c *Client) ConversationMessages(ctx context.Context, conversationID int64, since time.Time, afterID int64) ([]Message, error) {
	q := url.Values{}
	if !since.IsZero() {
		q.Set("since", since.UTC().Format(time.RFC3339))
	}
	if afterID > 0 {
		q.Set("after_id", strconv.FormatInt(afterID, 10))
	}

	endpoint := fmt.Sprintf("%s/api/conversations/%d/messages", c.BaseURL, conversationID)
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	var out struct {
		Messages []Message `json:"messages"`
	}
	if err := c.do(httpReq, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

// NewMessages polls for messages addressed to the user. With neither since
// nor afterID the server only scans its fixed lookback window, so pass the
// id of the last message seen whenever one is known.
func (c *Client) NewMessages(ctx context.Context, userID int64, since time.Time, afterID int64) ([]Message, error) {
	q := url.Values{}
	if !since.IsZero() {
		q.Set("since", since.UTC().Format(time.RFC3339))
	}
	if afterID > 0 {
		q.Set("after_id", strconv.FormatInt(afterID, 10))
	}

	endpoint := fmt.Sprintf("%s/api/users/%d/messages/new", c.BaseURL, userID)
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	var out struct {
		Messages []Message `json:"messages"`
	}
	if err := c.do(httpReq, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

// ConversationSummary is one entry in a user's conversation list.
type ConversationSummary struct {
	ConversationID int64    `json:"conversationId"`
	LastMessage    *Message `json:"lastMessage"`
	TotalMessages  int64    `json:"totalMessages"`
}

// Conversations lists the user's conversations, most recently active first.
func (c *Client) Conversations(ctx context.Context, userID int64) ([]ConversationSummary, error) {
	endpoint := fmt.Sprintf("%s/api/users/%d/conversations", c.BaseURL, userID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	var out struct {
		Conversations []ConversationSummary `json:"conversations"`
	}
	if err := c.do(httpReq, &out); err != nil {
		return nil, err
	}
	return out.Conversations, nil
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("api error (%d): %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("api error (%d)", resp.StatusCode)
	}

	return json.Unmarshal(body, out)
}
