// internal/handlers/ws.go
package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/jason-s-yu/arena/internal/engine"
	"github.com/jason-s-yu/arena/internal/middleware"
	"github.com/jason-s-yu/arena/internal/registry"
	"github.com/sirupsen/logrus"
)

// Subprotocol is the websocket subprotocol clients must request.
const Subprotocol = "arena"

const (
	readLimit    = 32 << 10
	writeTimeout = 5 * time.Second
	pingInterval = 30 * time.Second
)

// TokenVerifier resolves an auth token to a player ID.
type TokenVerifier interface {
	VerifyToken(token string) (uuid.UUID, error)
}

// WSHandler upgrades the request, authenticates it and hands the connection
// to the engine until the client goes away.
func WSHandler(logger *logrus.Logger, eng *engine.Engine, verifier TokenVerifier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{Subprotocol},
			OriginPatterns: []string{"*"},
		})
		if err != nil {
			logger.Warnf("websocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler finished")

		if c.Subprotocol() != Subprotocol {
			c.Close(BadSubprotocolError, "client must speak the arena subprotocol")
			return
		}

		playerID, err := verifier.VerifyToken(extractToken(r))
		if err != nil {
			logger.Warnf("rejecting websocket from %s: %v", r.RemoteAddr, err)
			c.Close(InvalidAuthTokenError, "invalid auth token")
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		conn, err := eng.Connect(ctx, playerID, cancel)
		if err != nil {
			logger.Warnf("rejecting websocket for player %s: %v", playerID, err)
			c.Close(InvalidUserIDError, "unknown player")
			return
		}
		c.SetReadLimit(readLimit)
		middleware.LogWebSocketConnect(logger, r.RemoteAddr, r.URL.Path)

		go writePump(ctx, c, conn, logger)
		err = readPump(ctx, c, eng, conn, logger)

		eng.Disconnect(conn)
		middleware.LogWebSocketDisconnect(logger, r.RemoteAddr, r.URL.Path, err)
		c.Close(websocket.StatusNormalClosure, "")
	}
}

// readPump feeds inbound frames to the engine until the socket fails or ctx
// ends. A clean close returns nil.
func readPump(ctx context.Context, c *websocket.Conn, eng *engine.Engine, conn *registry.Connection, logger *logrus.Logger) error {
	for {
		typ, data, err := c.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		if typ != websocket.MessageText {
			logger.Warnf("ignoring non-text message type %d from player %s", typ, conn.Player.ID)
			continue
		}
		eng.HandleMessage(conn, data)
	}
}

// writePump drains the connection's outbound queue onto the socket and keeps
// it alive with pings. A closed queue means the registry replaced or dropped
// this connection.
func writePump(ctx context.Context, c *websocket.Conn, conn *registry.Connection, logger *logrus.Logger) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-conn.OutChan:
			if !ok {
				c.Close(SessionReplacedError, "session replaced")
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				logger.Warnf("failed to write to websocket for player %s: %v", conn.Player.ID, err)
				conn.Cancel()
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.Ping(pingCtx)
			cancel()
			if err != nil {
				logger.Debugf("ping failed for player %s: %v", conn.Player.ID, err)
				conn.Cancel()
				return
			}
		}
	}
}
