package main

import (
	"github.com/billm/baaaht/pipechan/cmd"
)

func main() {
	cmd.Execute()
}
