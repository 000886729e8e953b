package main

import "github.com/garyjia/expense-approval/internal/cli"

func main() {
	cli.Execute()
}
