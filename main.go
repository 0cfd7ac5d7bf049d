package main

import "github.com/ChaitanyaYeole02/gmail-cleaner/internal/cli"

func main() {
	cli.Execute()
}
