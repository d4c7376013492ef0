package main

import "github.com/bmlt-enabled/tomato/cmd/tomato/cmd"

func main() {
	cmd.Execute()
}
