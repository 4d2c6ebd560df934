// Command stayctl drives the stays-and-guides backend from a terminal,
// keeping the session in a cookie store between invocations.
package main

import "github.com/MrEthical07/goSession/cmd/stayctl/cmd"

func main() {
	cmd.Execute()
}
