package client

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/matheus3301/tutu/internal/api"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client wraps the gRPC connection to the daemon.
type Client struct {
	conn *grpc.ClientConn
}

// New dials the daemon's Unix domain socket.
func New(socketPath string) (*Client, error) {
	conn, err := grpc.NewClient(
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("dial daemon: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// LoginResult is the outcome of Login. SyncError is set when the login
// succeeded but loading conversations did not.
type LoginResult struct {
	UserID    int64
	Username  string
	SyncError string
}

func (c *Client) Login(ctx context.Context, username, password string) (LoginResult, error) {
	resp, err := c.call(ctx, api.MethodLogin, map[string]any{
		"username": username,
		"password": password,
	})
	if err != nil {
		return LoginResult{}, err
	}
	st := api.DecodeStatus(resp)
	return LoginResult{
		UserID:    st.UserID,
		Username:  st.Username,
		SyncError: api.Field(resp, "syncError"),
	}, nil
}

func (c *Client) Logout(ctx context.Context) error {
	_, err := c.call(ctx, api.MethodLogout, nil)
	return err
}

// Refresh renews the daemon's session token.
func (c *Client) Refresh(ctx context.Context) (LoginResult, error) {
	resp, err := c.call(ctx, api.MethodRefresh, nil)
	if err != nil {
		return LoginResult{}, err
	}
	st := api.DecodeStatus(resp)
	return LoginResult{UserID: st.UserID, Username: st.Username}, nil
}

func (c *Client) Status(ctx context.Context) (api.StatusView, error) {
	resp, err := c.call(ctx, api.MethodStatus, nil)
	if err != nil {
		return api.StatusView{}, err
	}
	return api.DecodeStatus(resp), nil
}

// Sync loads conversations for the current session, renewing the token
// first when refresh is set.
func (c *Client) Sync(ctx context.Context, refresh bool) error {
	_, err := c.call(ctx, api.MethodSync, map[string]any{"refresh": refresh})
	return err
}

func (c *Client) Conversations(ctx context.Context) ([]api.ConversationView, error) {
	resp, err := c.call(ctx, api.MethodListConversations, nil)
	if err != nil {
		return nil, err
	}
	return api.DecodeConversations(resp), nil
}

// Messages returns up to limit of the newest messages, oldest first.
func (c *Client) Messages(ctx context.Context, conversationID string, limit int) ([]api.MessageView, error) {
	resp, err := c.call(ctx, api.MethodListMessages, map[string]any{
		"conversationId": conversationID,
		"limit":          limit,
	})
	if err != nil {
		return nil, err
	}
	return api.DecodeMessages(resp), nil
}

// OpenResult reports what OpenConversation did.
type OpenResult struct {
	Joined     bool
	JoinError  string
	MarkedRead bool
}

func (c *Client) Open(ctx context.Context, conversationID string) (OpenResult, error) {
	resp, err := c.call(ctx, api.MethodOpenConversation, map[string]any{"conversationId": conversationID})
	if err != nil {
		return OpenResult{}, err
	}
	return OpenResult{
		Joined:     api.Flag(resp, "joined"),
		JoinError:  api.Field(resp, "joinError"),
		MarkedRead: api.Flag(resp, "markedRead"),
	}, nil
}

// SendText returns "live" or "local".
func (c *Client) SendText(ctx context.Context, conversationID, text string) (string, error) {
	resp, err := c.call(ctx, api.MethodSendText, map[string]any{
		"conversationId": conversationID,
		"text":           text,
	})
	if err != nil {
		return "", err
	}
	return api.Field(resp, "delivery"), nil
}

func (c *Client) SendImage(ctx context.Context, conversationID string, data []byte) (string, error) {
	resp, err := c.call(ctx, api.MethodSendImage, map[string]any{
		"conversationId": conversationID,
		"data":           base64.StdEncoding.EncodeToString(data),
	})
	if err != nil {
		return "", err
	}
	return api.Field(resp, "delivery"), nil
}

func (c *Client) MarkRead(ctx context.Context, conversationID string) error {
	_, err := c.call(ctx, api.MethodMarkRead, map[string]any{"conversationId": conversationID})
	return err
}

func (c *Client) call(ctx context.Context, method string, fields map[string]any) (*structpb.Struct, error) {
	req := &structpb.Struct{}
	if fields != nil {
		var err error
		if req, err = structpb.NewStruct(fields); err != nil {
			return nil, fmt.Errorf("encode %s request: %w", method, err)
		}
	}
	resp := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, api.FullMethod(method), req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}
