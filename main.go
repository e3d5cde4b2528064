package main

import "github.com/groupad/groupad/cmd"

func main() {
	cmd.Execute()
}
