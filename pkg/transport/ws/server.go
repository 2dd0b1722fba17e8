package ws

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/absmach/fedcoord/pkg/fl"
	"github.com/gorilla/websocket"
)

// Backend is the worker side of the protocol.
type Backend interface {
	Info(ctx context.Context) (fl.WorkerInfo, error)
	Fit(ctx context.Context, req fl.FitRequest) (fl.FitResponse, error)
	Evaluate(ctx context.Context, req fl.EvalRequest) (fl.EvalResponse, error)
}

type Server struct {
	backend  Backend
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

var _ http.Handler = (*Server)(nil)

func NewServer(backend Backend, logger *slog.Logger) *Server {
	return &Server{
		backend: backend,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1 << 16,
			WriteBufferSize: 1 << 16,
		},
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("failed to upgrade connection", slog.String("remote", r.RemoteAddr), slog.Any("error", err))

		return
	}
	conn.SetReadLimit(maxMessageSize)

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	sc := &serverConn{conn: conn, backend: s.backend, logger: s.logger.With(slog.String("remote", r.RemoteAddr))}
	sc.serve(ctx)
	cancel()
	sc.wg.Wait()
	conn.Close()
}

type serverConn struct {
	conn    *websocket.Conn
	backend Backend
	logger  *slog.Logger
	writeMu sync.Mutex
	wg      sync.WaitGroup
}

func (sc *serverConn) serve(ctx context.Context) {
	sc.logger.Info("coordinator connected")
	for {
		_, data, err := sc.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				sc.logger.Info("coordinator disconnected")
			} else {
				sc.logger.Warn("connection lost", slog.Any("error", err))
			}

			return
		}

		msg, err := decode(data)
		if err != nil {
			sc.logger.Warn("dropping malformed message", slog.Any("error", err))

			continue
		}

		sc.wg.Add(1)
		go func() {
			defer sc.wg.Done()
			sc.handle(ctx, msg)
		}()
	}
}

func (sc *serverConn) handle(ctx context.Context, msg message) {
	resp, err := sc.dispatch(ctx, msg)

	var data []byte
	if err != nil {
		data, err = encodeError(msg.ID, err)
	} else {
		data, err = encode(msg.ID, "", resp)
	}
	if err != nil {
		sc.logger.Error("failed to encode response", slog.String("method", msg.Method), slog.Any("error", err))

		return
	}

	sc.writeMu.Lock()
	defer sc.writeMu.Unlock()
	_ = sc.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := sc.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		sc.logger.Warn("failed to write response", slog.String("method", msg.Method), slog.Any("error", err))
	}
}

func (sc *serverConn) dispatch(ctx context.Context, msg message) (any, error) {
	switch msg.Method {
	case MethodHello:
		return sc.backend.Info(ctx)
	case MethodFit:
		var req fl.FitRequest
		if err := decMode.Unmarshal(msg.Payload, &req); err != nil {
			return nil, fmt.Errorf("malformed fit request: %w", err)
		}

		return sc.backend.Fit(ctx, req)
	case MethodEvaluate:
		var req fl.EvalRequest
		if err := decMode.Unmarshal(msg.Payload, &req); err != nil {
			return nil, fmt.Errorf("malformed evaluate request: %w", err)
		}

		return sc.backend.Evaluate(ctx, req)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, msg.Method)
	}
}
