// Package main is the single-binary entrypoint for swarmd, the WebRTC
// signaling server.
package main

import "github.com/zlx-network/swarmd/internal/cli"

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cli.Execute(version)
}
