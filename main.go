package main

import "github.com/denysvitali/ncds-go/cmd"

func main() {
	cmd.Execute()
}
