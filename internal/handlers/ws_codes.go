// internal/handlers/ws_codes.go
package handlers

// Custom WebSocket close codes sent before the server closes a connection.
const (
	BadSubprotocolError   = 3000 // Client connected without the arena subprotocol.
	InvalidAuthTokenError = 3001 // Token missing, invalid or expired.
	InvalidUserIDError    = 3002 // Token subject does not resolve to a known player.
	SessionReplacedError  = 3003 // A newer connection for the same player took over.
)
