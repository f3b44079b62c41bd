package main

import (
	"github.com/foomo/snippetserver/cmd"
)

func main() {
	cmd.Execute()
}
