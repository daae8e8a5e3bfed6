package main

import "github.com/joeychilson/emojicoach/internal/cli"

func main() {
	cli.Execute()
}
