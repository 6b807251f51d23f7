package common

import (
	"fmt"

	"github.com/ternarybob/banner"
)

// PrintBanner displays the application banner followed by the effective endpoints
func PrintBanner(config *Config) {
	banner.PrintSimple("eCrop", GetVersion())
	fmt.Printf("  portal : %s\n", config.Portal.URL)
	fmt.Printf("  server : http://%s:%d\n", config.Server.Host, config.Server.Port)
	fmt.Printf("  audit  : %s\n\n", config.Audit.Dir)
}
