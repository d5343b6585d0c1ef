package main

import "github.com/zakkycrypt01/spenednsave-sub002/cmd"

func main() {
	cmd.Execute()
}
