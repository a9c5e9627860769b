package main

import "github.com/example/court-autobook/cmd"

func main() {
	cmd.Execute()
}
