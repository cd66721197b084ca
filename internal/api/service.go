package api

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/matheus3301/tutu/internal/auth"
	"github.com/matheus3301/tutu/internal/remote"
	intsync "github.com/matheus3301/tutu/internal/sync"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// Sessions is the part of auth.Holder the service uses.
type Sessions interface {
	Current() (auth.Session, bool)
	Login(ctx context.Context, username, password string) (auth.Session, error)
	Refresh(ctx context.Context) (auth.Session, error)
	Logout() error
}

// Engine is the part of sync.Engine the service uses.
type Engine interface {
	SyncFromServer(ctx context.Context, s auth.Session) error
	JoinConversation(ctx context.Context, conversationID string, s auth.Session) error
	SendText(ctx context.Context, conversationID, text, senderID string) (intsync.Delivery, error)
	SendImage(conversationID string, data []byte, senderID string) (intsync.Delivery, error)
	MarkConversationAsRead(conversationID string) error
	MarkMessagesReadOnOpen(conversationID, selfID string) (bool, error)
	Conversations() []intsync.Conversation
	Conversation(conversationID string) (intsync.Conversation, bool)
	TotalUnread() int
	Status() intsync.Status
	Reset()
}

// Service exposes the sync engine to local clients.
type Service struct {
	sessions  Sessions
	engine    Engine
	profile   string
	startedAt time.Time
	logger    *zap.Logger
}

func NewService(sessions Sessions, engine Engine, profile string, logger *zap.Logger) *Service {
	return &Service{
		sessions:  sessions,
		engine:    engine,
		profile:   profile,
		startedAt: time.Now(),
		logger:    logger,
	}
}

// Login signs in and loads the conversation set. A failed sync does not
// undo the login; its error is reported in the response.
func (s *Service) Login(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	sess, err := s.sessions.Login(ctx, str(req, "username"), str(req, "password"))
	if err != nil {
		return nil, toStatus(err)
	}
	out := map[string]any{
		"userId":   sess.UserID,
		"username": sess.Username,
	}
	if err := s.engine.SyncFromServer(ctx, sess); err != nil {
		s.logger.Warn("sync after login failed", zap.Error(err))
		out["syncError"] = err.Error()
	}
	return reply(out)
}

func (s *Service) Logout(_ context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	if err := s.sessions.Logout(); err != nil {
		return nil, toStatus(err)
	}
	// Reset before replying so a login that follows cannot race it.
	s.engine.Reset()
	return reply(nil)
}

// Refresh renews the session token. The conversation set is left as is.
func (s *Service) Refresh(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	sess, err := s.sessions.Refresh(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return reply(map[string]any{
		"userId":   sess.UserID,
		"username": sess.Username,
	})
}

func (s *Service) Status(_ context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	sess, ok := s.sessions.Current()
	st := s.engine.Status()
	v := StatusView{
		Profile:       s.profile,
		Uptime:        time.Since(s.startedAt),
		Authenticated: ok,
		UserID:        sess.UserID,
		Username:      sess.Username,
		Connection:    string(st.Connection),
		Loading:       st.Loading,
		Synced:        st.Synced,
		TotalUnread:   s.engine.TotalUnread(),
		Conversations: len(s.engine.Conversations()),
	}
	if st.LastError != nil {
		v.LastError = st.LastError.Error()
		var rerr *remote.Error
		if errors.As(st.LastError, &rerr) {
			v.LastErrorKind = rerr.Kind.String()
		}
	}
	return reply(v.fields())
}

// Sync loads the conversation set for the current session. With refresh set
// the token is renewed first, which forces a fresh load.
func (s *Service) Sync(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	sess, ok := s.sessions.Current()
	if !ok {
		return nil, toStatus(auth.ErrNotAuthenticated)
	}
	if boolean(req, "refresh") {
		renewed, err := s.sessions.Refresh(ctx)
		if err != nil {
			return nil, toStatus(err)
		}
		sess = renewed
	}
	if err := s.engine.SyncFromServer(ctx, sess); err != nil {
		return nil, toStatus(err)
	}
	return reply(map[string]any{"conversations": len(s.engine.Conversations())})
}

func (s *Service) ListConversations(_ context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	convs := s.engine.Conversations()
	rows := make([]any, 0, len(convs))
	for _, c := range convs {
		rows = append(rows, newConversationView(c).fields())
	}
	return reply(map[string]any{"conversations": rows})
}

// ListMessages returns the newest limit messages of a conversation, oldest
// first. A limit of zero returns all of them.
func (s *Service) ListMessages(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	conv, ok := s.engine.Conversation(str(req, "conversationId"))
	if !ok {
		return nil, toStatus(intsync.ErrUnknownConversation)
	}
	msgs := conv.Messages
	if limit := int(num(req, "limit")); limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	sess, _ := s.sessions.Current()
	rows := make([]any, 0, len(msgs))
	for _, m := range msgs {
		rows = append(rows, newMessageView(m, sess.IsSelf(m.SenderID)).fields())
	}
	return reply(map[string]any{
		"title":    conv.Title,
		"messages": rows,
	})
}

// OpenConversation joins the conversation's room and marks what others sent
// as read. A failed join leaves sends local and is reported, not returned.
func (s *Service) OpenConversation(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id := str(req, "conversationId")
	if _, ok := s.engine.Conversation(id); !ok {
		return nil, toStatus(intsync.ErrUnknownConversation)
	}
	out := map[string]any{"joined": false}
	sess, ok := s.sessions.Current()
	if ok {
		if err := s.engine.JoinConversation(ctx, id, sess); err != nil {
			s.logger.Warn("join failed", zap.String("conversation_id", id), zap.Error(err))
			out["joinError"] = err.Error()
		} else {
			out["joined"] = true
		}
	}
	var self string
	if sess.UserID != 0 {
		self = strconv.FormatInt(sess.UserID, 10)
	}
	marked, err := s.engine.MarkMessagesReadOnOpen(id, self)
	if err != nil {
		return nil, toStatus(err)
	}
	out["markedRead"] = marked
	return reply(out)
}

func (s *Service) SendText(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	d, err := s.engine.SendText(ctx, str(req, "conversationId"), str(req, "text"), "")
	if err != nil {
		return nil, toStatus(err)
	}
	return reply(map[string]any{"delivery": d.String()})
}

// SendImage takes the image bytes base64-encoded in "data".
func (s *Service) SendImage(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	data, err := base64.StdEncoding.DecodeString(str(req, "data"))
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "image data is not base64: %v", err)
	}
	d, err := s.engine.SendImage(str(req, "conversationId"), data, "")
	if err != nil {
		return nil, toStatus(err)
	}
	return reply(map[string]any{"delivery": d.String()})
}

func (s *Service) MarkRead(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if err := s.engine.MarkConversationAsRead(str(req, "conversationId")); err != nil {
		return nil, toStatus(err)
	}
	return reply(nil)
}

func reply(fields map[string]any) (*structpb.Struct, error) {
	if fields == nil {
		return &structpb.Struct{}, nil
	}
	out, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return out, nil
}

// toStatus maps engine, auth and server errors onto gRPC codes.
func toStatus(err error) error {
	var rerr *remote.Error
	switch {
	case errors.Is(err, auth.ErrNotAuthenticated):
		return status.Error(codes.Unauthenticated, err.Error())
	case errors.Is(err, auth.ErrUsernameRequired), errors.Is(err, auth.ErrPasswordRequired),
		errors.Is(err, intsync.ErrEmptyMessage):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, intsync.ErrUnknownConversation):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, intsync.ErrStopped):
		return status.Error(codes.Unavailable, err.Error())
	case errors.As(err, &rerr):
		switch rerr.Kind {
		case remote.KindInvalidRequest:
			return status.Error(codes.InvalidArgument, err.Error())
		case remote.KindNetwork:
			return status.Error(codes.Unavailable, err.Error())
		case remote.KindDecode:
			return status.Error(codes.DataLoss, err.Error())
		case remote.KindServer:
			if rerr.Status == http.StatusUnauthorized || rerr.Status == http.StatusForbidden {
				return status.Error(codes.Unauthenticated, err.Error())
			}
			return status.Error(codes.FailedPrecondition, err.Error())
		}
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}
