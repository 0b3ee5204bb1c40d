package main

import "github.com/speechmatics/speechmatics-go/cli"

func main() {
	cli.Run()
}
