package main

import "github.com/the-dev-tools/apirun/cmd/apirun/cmd"

func main() {
	cmd.Execute()
}
