package main

import "github.com/pyhu26/post-woman/cmd"

func main() {
	cmd.Execute()
}
