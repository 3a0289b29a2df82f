package main

import "github.com/example/recreserve/cmd"

func main() {
	cmd.Execute()
}
