package main

import "github.com/jjenkins/sorteio/cmd"

func main() {
	cmd.Execute()
}
