package main

import "github.com/jilio/statemap/cmd"

func main() {
	cmd.Main()
}
