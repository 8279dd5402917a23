package providers

import (
	"fmt"

	"github.com/loykin/orchestrator/internal/tunnel"
)

// NewLocalTunnel builds the "localtunnel" provider: the localtunnel.me
// CLI via npx, also credential-less.
func NewLocalTunnel() tunnel.Provider {
	return newCLIProvider("localtunnel", `your url is: (https://\S+)`, func(port int, _ string) []string {
		return []string{fmt.Sprintf("npx --yes localtunnel --port %d", port)}
	})
}
