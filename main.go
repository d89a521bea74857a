package main

import "github.com/markb/macrolite/cmd"

func main() {
	cmd.Execute()
}
