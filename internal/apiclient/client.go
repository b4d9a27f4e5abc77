// Package apiclient is the HTTP client for the remote banking API. It covers
// the identity, directory, payment and feed services the core consumes, and
// injects the session's bearer token into every request.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	"bankpay/internal/domain/models"
	"bankpay/internal/session"
)

// RemoteError is a non-2xx response from the remote system. Message carries
// the server-provided text when the body had one.
type RemoteError struct {
	Status int
	Msg    string
}

func (e *RemoteError) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("apiclient: remote rejected (%d): %s", e.Status, e.Msg)
	}
	return fmt.Sprintf("apiclient: remote rejected (%d)", e.Status)
}

// Message exposes the server text for user-facing surfaces.
func (e *RemoteError) Message() string { return e.Msg }

// Client talks to one remote base URL on behalf of one session.
type Client struct {
	baseURL string
	http    *http.Client
	sess    *session.Session
	log     *slog.Logger
}

func New(baseURL string, sess *session.Session, log *slog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		sess:    sess,
		log:     log,
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

// Login exchanges credentials for a bearer token and adopts it into the
// session.
func (c *Client) Login(ctx context.Context, username, password string) error {
	const op = "apiclient.Login"

	var res tokenResponse
	err := c.do(ctx, http.MethodPost, "/api/auth/login", loginRequest{username, password}, &res)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if res.Token == "" {
		return fmt.Errorf("%s: no token in response", op)
	}
	return c.sess.SaveToken(res.Token)
}

// Register creates an account. imagePath is optional; when present the
// request goes out as multipart form data with the profile image attached.
func (c *Client) Register(ctx context.Context, username, password, imagePath string) error {
	const op = "apiclient.Register"

	if imagePath == "" {
		err := c.do(ctx, http.MethodPost, "/api/auth/register", loginRequest{username, password}, nil)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		return nil
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if err := w.WriteField("username", username); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := w.WriteField("password", password); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	f, err := os.Open(imagePath)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer f.Close()
	part, err := w.CreateFormFile("image", filepath.Base(imagePath))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/auth/register", &body)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	if err := c.send(req, nil); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Me fetches the authenticated user's own record.
func (c *Client) Me(ctx context.Context) (*models.User, error) {
	const op = "apiclient.Me"

	var user models.User
	if err := c.do(ctx, http.MethodGet, "/api/auth/me", nil, &user); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &user, nil
}

// ListUsers fetches the directory.
func (c *Client) ListUsers(ctx context.Context) ([]models.User, error) {
	const op = "apiclient.ListUsers"

	var users []models.User
	if err := c.do(ctx, http.MethodGet, "/api/users", nil, &users); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return users, nil
}

// ListMyTransactions fetches the authenticated user's feed.
func (c *Client) ListMyTransactions(ctx context.Context) ([]models.Transaction, error) {
	const op = "apiclient.ListMyTransactions"

	var txs []models.Transaction
	if err := c.do(ctx, http.MethodGet, "/api/transactions/my", nil, &txs); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return txs, nil
}

type transferRequest struct {
	ToUserID string          `json:"toUserId"`
	Amount   decimal.Decimal `json:"amount"`
}

type depositRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// SubmitTransfer sends money to another user. Implements payment.Service.
func (c *Client) SubmitTransfer(ctx context.Context, toUserID string, amount decimal.Decimal, idemKey string) error {
	const op = "apiclient.SubmitTransfer"

	err := c.doIdem(ctx, "/api/transactions/transfer", transferRequest{toUserID, amount}, idemKey)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// SubmitDeposit adds money to the caller's own balance.
func (c *Client) SubmitDeposit(ctx context.Context, amount decimal.Decimal, idemKey string) error {
	const op = "apiclient.SubmitDeposit"

	err := c.doIdem(ctx, "/api/transactions/deposit", depositRequest{amount}, idemKey)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (c *Client) doIdem(ctx context.Context, path string, body any, idemKey string) error {
	req, err := c.newRequest(ctx, http.MethodPost, path, body)
	if err != nil {
		return err
	}
	if idemKey != "" {
		req.Header.Set("Idempotency-Key", idemKey)
	}
	return c.send(req, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	return c.send(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *Client) send(req *http.Request, out any) error {
	if token := c.sess.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return err
	}

	if res.StatusCode < 200 || res.StatusCode > 299 {
		c.log.Debug("remote rejection",
			slog.String("path", req.URL.Path),
			slog.Int("status", res.StatusCode),
		)
		return &RemoteError{Status: res.StatusCode, Msg: serverMessage(raw)}
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	return decodeEnvelope(raw, out)
}

// serverMessage pulls the human-readable text out of an error body, which may
// be {"message": ...} JSON or plain text.
func serverMessage(raw []byte) string {
	var body struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && body.Message != "" {
		return body.Message
	}
	if len(raw) > 0 && !json.Valid(raw) {
		return string(bytes.TrimSpace(raw))
	}
	return ""
}

// decodeEnvelope tolerates both {"data": <payload>} and a bare payload.
func decodeEnvelope(raw []byte, out any) error {
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && len(envelope.Data) > 0 {
		return json.Unmarshal(envelope.Data, out)
	}
	return json.Unmarshal(raw, out)
}
