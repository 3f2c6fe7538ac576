package main

import "github.com/MrEthical07/goSession/cmd/sessiond/cmd"

func main() {
	cmd.Execute()
}
