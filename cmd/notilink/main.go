// Package main is the entry point for notilink.
//
//	@title			notilink API
//	@version		1.0
//	@description	Desktop companion service for device notification pairing.
//	@description	Controls the pairing listener and device links, and streams events to local UIs.
//
//	@contact.name	Brian Ly
//	@contact.url	https://github.com/brianly1003/notilink
//
//	@license.name	MIT
//	@license.url	https://opensource.org/licenses/MIT
//
//	@host		localhost:18081
//	@BasePath	/
//	@schemes	http
//
//	@tag.name			service
//	@tag.description	Health and status endpoints
//	@tag.name			listener
//	@tag.description	Pairing listener control
//	@tag.name			pairing
//	@tag.description	Pairing results and QR artifacts
//	@tag.name			links
//	@tag.description	Device link management
//	@tag.name			history
//	@tag.description	Pairing and link journal queries
package main

import (
	"fmt"
	"os"

	"github.com/brianly1003/notilink/cmd/notilink/cmd"

	_ "github.com/brianly1003/notilink/api/swagger" // swagger docs
)

// Version information (set by ldflags during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	// Pass version info to cmd package
	cmd.SetVersionInfo(Version, BuildTime, GitCommit)

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
