package main

import "github.com/mcoot/snakesgame/internal/cli"

func main() {
	cli.Execute()
}
