package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/pkg/errors"
)

func (c *Client) Templates(ctx context.Context, q TemplateQuery) (*TemplateList, error) {
	req, _ := jsonRequest("list templates", http.MethodGet, "/api/templates", nil)
	req.query = url.Values{}
	if q.Category != "" {
		req.query.Set("category", q.Category)
	}
	if q.Search != "" {
		req.query.Set("search", q.Search)
	}
	if q.SortBy != "" {
		req.query.Set("sort_by", q.SortBy)
	}
	if q.Limit > 0 {
		req.query.Set("limit", strconv.Itoa(q.Limit))
	}
	var out TemplateList
	if err := c.do(ctx, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) PopularTemplates(ctx context.Context) (*TemplateList, error) {
	req, _ := jsonRequest("popular templates", http.MethodGet, "/api/templates/popular", nil)
	var out TemplateList
	if err := c.do(ctx, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DownloadTemplate(ctx context.Context, id string) (*TemplateDownload, error) {
	req, _ := jsonRequest("download template", http.MethodPost, "/api/templates/"+url.PathEscape(id)+"/download", nil)
	var out TemplateDownload
	if err := c.do(ctx, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DashboardStats(ctx context.Context) (*DashboardStats, error) {
	req, _ := jsonRequest("dashboard stats", http.MethodGet, "/api/dashboard/stats", nil)
	var out struct {
		Stats DashboardStats `json:"stats"`
	}
	if err := c.do(ctx, req, &out); err != nil {
		return nil, err
	}
	return &out.Stats, nil
}

// Analytics returns one analytics section as a loosely typed document; the
// backend shapes differ per section and evolve independently of the client.
func (c *Client) Analytics(ctx context.Context, section AnalyticsSection) (map[string]any, error) {
	switch section {
	case AnalyticsOverview, AnalyticsPerformance, AnalyticsUsage:
	default:
		return nil, errors.Errorf("unknown analytics section %q", section)
	}
	req, _ := jsonRequest("analytics "+string(section), http.MethodGet, "/api/analytics/"+string(section), nil)
	out := map[string]any{}
	if err := c.do(ctx, req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) SendFeedback(ctx context.Context, fb Feedback) (string, error) {
	return c.sendMessage(ctx, "send feedback", "/feedback", fb)
}

func (c *Client) SendContact(ctx context.Context, contact Contact) (string, error) {
	return c.sendMessage(ctx, "send contact", "/contact", contact)
}

func (c *Client) sendMessage(ctx context.Context, op, path string, payload any) (string, error) {
	req, err := jsonRequest(op, http.MethodPost, path, payload)
	if err != nil {
		return "", err
	}
	var out struct {
		Message string `json:"message"`
	}
	if err := c.do(ctx, req, &out); err != nil {
		return "", err
	}
	return out.Message, nil
}

func (c *Client) Health(ctx context.Context) (string, error) {
	req, _ := jsonRequest("health", http.MethodGet, "/healthz", nil)
	var out struct {
		Status string `json:"status"`
	}
	if err := c.do(ctx, req, &out); err != nil {
		return "", err
	}
	return out.Status, nil
}
