package providers

import (
	"fmt"

	"github.com/loykin/orchestrator/internal/tunnel"
)

// NewNgrok builds the "ngrok" provider: it requires a credential (an
// ngrok authtoken), supplied via `ngrok config add-authtoken` before the
// http command, the way the ngrok CLI expects it.
func NewNgrok() tunnel.Provider {
	return newCLIProvider("ngrok", `url=(https://\S+)`, func(port int, token string) []string {
		lines := []string{}
		if token != "" {
			lines = append(lines, fmt.Sprintf("ngrok config add-authtoken %s", token))
		}
		lines = append(lines, fmt.Sprintf("ngrok http %d --log=stdout --log-format=logfmt", port))
		return lines
	})
}
