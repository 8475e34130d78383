package api

import (
	"context"
	"net/http"
	"net/url"
)

// Chat sends one message to the assistant and returns its reply.
func (c *Client) Chat(ctx context.Context, message string) (string, error) {
	req, err := jsonRequest("chat", http.MethodPost, "/chatbot", map[string]string{"message": message})
	if err != nil {
		return "", err
	}
	var out struct {
		Reply string `json:"reply"`
	}
	if err := c.do(ctx, req, &out); err != nil {
		return "", err
	}
	return out.Reply, nil
}

func (c *Client) LogActivity(ctx context.Context, activity Activity) error {
	req, err := jsonRequest("log activity", http.MethodPost, "/api/dashboard/activity", activity)
	if err != nil {
		return err
	}
	return c.do(ctx, req, nil)
}

func (c *Client) ChatHistory(ctx context.Context) ([]ChatHistorySession, error) {
	req, _ := jsonRequest("chat history", http.MethodGet, "/api/chat/history", nil)
	var out struct {
		Chats []ChatHistorySession `json:"chats"`
	}
	if err := c.do(ctx, req, &out); err != nil {
		return nil, err
	}
	return out.Chats, nil
}

func (c *Client) SaveChatHistory(ctx context.Context, session ChatHistorySession) error {
	payload := struct {
		SessionID   string        `json:"sessionId"`
		SessionName string        `json:"sessionName"`
		Messages    []ChatMessage `json:"messages"`
	}{session.SessionID, session.SessionName, session.Messages}
	if payload.Messages == nil {
		payload.Messages = []ChatMessage{}
	}
	req, err := jsonRequest("save chat history", http.MethodPost, "/api/chat/history", payload)
	if err != nil {
		return err
	}
	return c.do(ctx, req, nil)
}

func (c *Client) DeleteChatHistory(ctx context.Context, sessionID string) error {
	req, _ := jsonRequest("delete chat history", http.MethodDelete, "/api/chat/history/"+url.PathEscape(sessionID), nil)
	return c.do(ctx, req, nil)
}
