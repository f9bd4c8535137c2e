package main

import "github.com/RyanBlaney/micmetrics/cmd"

func main() {
	cmd.Execute()
}
