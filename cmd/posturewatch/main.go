package main

import "posturewatch/internal/cli"

func main() {
	cli.Execute()
}
