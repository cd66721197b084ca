package remote

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/cloudwego/hertz/pkg/app/client"
	"github.com/cloudwego/hertz/pkg/common/config"
	"github.com/cloudwego/hertz/pkg/network/standard"
	"github.com/cloudwego/hertz/pkg/protocol"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/matheus3301/tutu/internal/auth"
	"go.uber.org/zap"
)

const (
	DefaultPage     = 0
	DefaultPageSize = 100
)

// Client talks to the chat server's REST API.
type Client struct {
	baseURL    string
	httpClient *client.Client
	timeout    time.Duration
	logger     *zap.Logger
	now        func() time.Time
	tlsConfig  *tls.Config
}

// Option configures a Client.
type Option func(*Client)

// WithClock overrides the time source used for unparseable timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// WithTLSConfig sets the TLS configuration used for https base URLs.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(c *Client) {
		c.tlsConfig = cfg
	}
}

// New creates a client for baseURL. A positive timeout bounds every request;
// otherwise only the caller's context does.
func New(baseURL string, timeout time.Duration, logger *zap.Logger, opts ...Option) (*Client, error) {
	c := &Client{
		baseURL: baseURL,
		timeout: timeout,
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	hopts := []config.ClientOption{client.WithDialTimeout(10 * time.Second)}
	if timeout > 0 {
		hopts = append(hopts, client.WithClientReadTimeout(timeout), client.WithWriteTimeout(timeout))
	}
	// The default netpoll dialer has no TLS support.
	if u, err := url.Parse(baseURL); err == nil && u.Scheme == "https" {
		cfg := c.tlsConfig
		if cfg == nil {
			cfg = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		hopts = append(hopts, client.WithDialer(standard.NewDialer()), client.WithTLSConfig(cfg))
	}
	httpClient, err := client.NewClient(hopts...)
	if err != nil {
		return nil, fmt.Errorf("create http client: %w", err)
	}
	c.httpClient = httpClient
	return c, nil
}

// FetchConversationSummaries lists the user's conversations.
func (c *Client) FetchConversationSummaries(ctx context.Context, token string) ([]Summary, error) {
	const op = "fetch conversations"
	body, err := c.do(ctx, op, consts.MethodGet, "/api/me/chats", nil, token, nil)
	if err != nil {
		return nil, err
	}
	return decodeSummaries(op, body)
}

// FetchMessages returns one page of a conversation's history. A negative
// page or non-positive size falls back to the defaults.
func (c *Client) FetchMessages(ctx context.Context, conversationID, token string, page, size int) ([]MessageRecord, error) {
	const op = "fetch messages"
	id, err := parseConversationID(op, conversationID)
	if err != nil {
		return nil, err
	}
	if page < 0 {
		page = DefaultPage
	}
	if size <= 0 {
		size = DefaultPageSize
	}
	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	query.Set("size", strconv.Itoa(size))

	body, err := c.do(ctx, op, consts.MethodGet, fmt.Sprintf("/api/chats/%d/messages", id), query, token, nil)
	if err != nil {
		return nil, err
	}
	return decodeMessagePage(op, body, c.now())
}

// MarkRead tells the server the conversation was read up to lastReadMessageID.
// A nil id omits the body.
func (c *Client) MarkRead(ctx context.Context, conversationID string, lastReadMessageID *int64, token string) error {
	const op = "mark read"
	id, err := parseConversationID(op, conversationID)
	if err != nil {
		return err
	}
	var payload any
	if lastReadMessageID != nil {
		payload = map[string]int64{"lastReadMessageId": *lastReadMessageID}
	}
	_, err = c.do(ctx, op, consts.MethodPost, fmt.Sprintf("/api/chats/%d/read", id), nil, token, payload)
	return err
}

// Login exchanges credentials for a session.
func (c *Client) Login(ctx context.Context, username, password string) (auth.Session, error) {
	const op = "login"
	body, err := c.do(ctx, op, consts.MethodPost, "/api/auth/login", nil, "",
		map[string]string{"username": username, "password": password})
	if err != nil {
		return auth.Session{}, err
	}
	return sessionFromBody(op, body)
}

// Refresh trades a token for a fresh session.
func (c *Client) Refresh(ctx context.Context, token string) (auth.Session, error) {
	const op = "refresh"
	body, err := c.do(ctx, op, consts.MethodPost, "/api/auth/refresh", nil, "",
		map[string]string{"token": token})
	if err != nil {
		return auth.Session{}, err
	}
	return sessionFromBody(op, body)
}

func sessionFromBody(op string, body []byte) (auth.Session, error) {
	token, userID, username, err := decodeSession(op, body)
	if err != nil {
		return auth.Session{}, err
	}
	return auth.Session{Token: token, UserID: userID, Username: username}, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, token string, payload any) ([]byte, error) {
	target, err := c.endpoint(path, query)
	if err != nil {
		return nil, invalidRequest(op, err)
	}

	req := &protocol.Request{}
	resp := &protocol.Response{}
	req.SetMethod(method)
	req.SetRequestURI(target)
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("X-Auth-Token", token)
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, invalidRequest(op, fmt.Errorf("encode body: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")
		req.SetBody(data)
	}

	if err := ctx.Err(); err != nil {
		return nil, &Error{Kind: KindNetwork, Op: op, Err: err}
	}
	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		left := time.Until(deadline)
		if left <= 0 {
			return nil, &Error{Kind: KindNetwork, Op: op, Err: context.DeadlineExceeded}
		}
		if timeout <= 0 || left < timeout {
			timeout = left
		}
	}

	start := time.Now()
	if timeout > 0 {
		err = c.httpClient.DoTimeout(ctx, req, resp, timeout)
	} else {
		err = c.httpClient.Do(ctx, req, resp)
	}
	if err != nil {
		c.logger.Debug("request failed", zap.String("op", op), zap.String("method", method), zap.Error(err))
		return nil, &Error{Kind: KindNetwork, Op: op, Err: err}
	}

	status := resp.StatusCode()
	body := append([]byte(nil), resp.Body()...)
	c.logger.Debug("request done",
		zap.String("op", op),
		zap.String("method", method),
		zap.Int("status", status),
		zap.Duration("took", time.Since(start)),
	)
	if status < 200 || status >= 300 {
		return nil, &Error{Kind: KindServer, Op: op, Status: status, Message: errorMessage(body, status)}
	}
	return body, nil
}

func (c *Client) endpoint(path string, query url.Values) (string, error) {
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return "", fmt.Errorf("base url %q: scheme must be http or https", c.baseURL)
	}
	if base.Host == "" {
		return "", errors.New("base url has no host")
	}
	u := base.JoinPath(path)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String(), nil
}

func parseConversationID(op, id string) (int64, error) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return 0, invalidRequest(op, fmt.Errorf("conversation id %q is not numeric", id))
	}
	return n, nil
}
