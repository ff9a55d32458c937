package main

import "github.com/kozaktomas/facechain/cmd"

func main() {
	cmd.Execute()
}
