package main

import "github.com/VoxDroid/tagship/cmd"

func main() {
	cmd.Execute()
}
