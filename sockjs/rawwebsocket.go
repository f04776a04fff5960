package sockjs

import "github.com/google/uuid"

// rawSessionID generates a private session id for a raw websocket
// connection, which carries none in its URL.
func rawSessionID() string {
	return "raw-" + uuid.NewString()
}
