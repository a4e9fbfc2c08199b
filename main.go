package main

import "github.com/bitstore/bqrows/cmd"

func main() {
	cmd.Execute()
}
