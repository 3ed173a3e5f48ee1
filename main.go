package main

import "github.com/drgolem/resonantmix/cmd"

func main() {
	cmd.Execute()
}
