// The main package for the bookwatch executable.
package main

import (
	"github.com/bookwatch/crawler/cmd"
)

func main() {
	cmd.Execute()
}
