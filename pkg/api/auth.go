package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"

	"github.com/pkg/errors"
)

func (c *Client) Login(ctx context.Context, email, password string) (*AuthResponse, error) {
	return c.authenticate(ctx, "login", "/api/auth/login", map[string]string{
		"email":    email,
		"password": password,
	})
}

func (c *Client) Signup(ctx context.Context, username, email, password string) (*AuthResponse, error) {
	return c.authenticate(ctx, "signup", "/api/auth/signup", map[string]string{
		"username": username,
		"email":    email,
		"password": password,
	})
}

func (c *Client) authenticate(ctx context.Context, op, path string, payload any) (*AuthResponse, error) {
	req, err := jsonRequest(op, http.MethodPost, path, payload)
	if err != nil {
		return nil, err
	}
	req.anonymous = true
	var out AuthResponse
	if err := c.do(ctx, req, &out); err != nil {
		return nil, err
	}
	if out.Token == "" || out.User == nil {
		return nil, &Error{Kind: KindTransient, Op: op, Err: errors.New("response is missing token or user")}
	}
	return &out, nil
}

// Me returns the user the current token belongs to.
func (c *Client) Me(ctx context.Context) (*User, error) {
	req, _ := jsonRequest("me", http.MethodGet, "/api/auth/me", nil)
	var raw json.RawMessage
	if err := c.do(ctx, req, &raw); err != nil {
		return nil, err
	}
	return decodeUser("me", raw)
}

func (c *Client) UpdateProfile(ctx context.Context, update ProfileUpdate) (*User, error) {
	req, err := jsonRequest("update profile", http.MethodPut, "/api/auth/profile", update)
	if err != nil {
		return nil, err
	}
	var raw json.RawMessage
	if err := c.do(ctx, req, &raw); err != nil {
		return nil, err
	}
	return decodeUser("update profile", raw)
}

// UpdateAvatarURL asks the backend to fetch the avatar from avatarURL.
func (c *Client) UpdateAvatarURL(ctx context.Context, avatarURL string) (*User, error) {
	req, err := jsonRequest("update avatar", http.MethodPost, "/api/auth/avatar", map[string]string{
		"avatar_url": avatarURL,
	})
	if err != nil {
		return nil, err
	}
	var raw json.RawMessage
	if err := c.do(ctx, req, &raw); err != nil {
		return nil, err
	}
	return decodeUser("update avatar", raw)
}

// UploadAvatar sends the image as the multipart field "avatar".
func (c *Client) UploadAvatar(ctx context.Context, filename string, content io.Reader) (*User, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("avatar", filepath.Base(filename))
	if err != nil {
		return nil, errors.Wrap(err, "upload avatar: create form file")
	}
	if _, err := io.Copy(part, content); err != nil {
		return nil, errors.Wrap(err, "upload avatar: read content")
	}
	if err := mw.Close(); err != nil {
		return nil, errors.Wrap(err, "upload avatar: close form")
	}
	req := request{
		op:          "upload avatar",
		method:      http.MethodPost,
		path:        "/api/auth/avatar",
		body:        &buf,
		contentType: mw.FormDataContentType(),
	}
	var raw json.RawMessage
	if err := c.do(ctx, req, &raw); err != nil {
		return nil, err
	}
	return decodeUser("upload avatar", raw)
}

func (c *Client) Preferences(ctx context.Context) (Preferences, error) {
	req, _ := jsonRequest("get preferences", http.MethodGet, "/api/auth/preferences", nil)
	out := Preferences{}
	if err := c.do(ctx, req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdatePreferences replaces the whole preferences bag.
func (c *Client) UpdatePreferences(ctx context.Context, prefs Preferences) (*User, error) {
	if prefs == nil {
		prefs = Preferences{}
	}
	req, err := jsonRequest("update preferences", http.MethodPut, "/api/auth/preferences", prefs)
	if err != nil {
		return nil, err
	}
	var raw json.RawMessage
	if err := c.do(ctx, req, &raw); err != nil {
		return nil, err
	}
	return decodeUser("update preferences", raw)
}

// decodeUser accepts either {"user": {...}} or a bare user object.
func decodeUser(op string, raw json.RawMessage) (*User, error) {
	var wrapped struct {
		User *User `json:"user"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.User != nil && (wrapped.User.Email != "" || wrapped.User.ID != "") {
		return wrapped.User, nil
	}
	var bare User
	if err := json.Unmarshal(raw, &bare); err != nil {
		return nil, &Error{Kind: KindTransient, Op: op, Err: errors.Wrap(err, "decode user")}
	}
	if bare.Email == "" && bare.ID == "" {
		return nil, &Error{Kind: KindTransient, Op: op, Err: errors.New("response carries no user")}
	}
	return &bare, nil
}
