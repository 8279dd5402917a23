package providers

import (
	"fmt"

	"github.com/loykin/orchestrator/internal/tunnel"
)

// NewCloudflareQuick builds the "cloudflare-quick" provider: cloudflared's
// unauthenticated "quick tunnel" mode, which needs no credential at all.
func NewCloudflareQuick() tunnel.Provider {
	return newCLIProvider("cloudflare-quick", `(https://\S+\.trycloudflare\.com)`, func(port int, _ string) []string {
		return []string{fmt.Sprintf("cloudflared tunnel --url http://localhost:%d", port)}
	})
}
