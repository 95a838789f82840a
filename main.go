package main

import "github.com/mzurita/fototeca/cmd"

func main() {
	cmd.Execute()
}
