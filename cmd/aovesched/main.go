package main

import "github.com/example/aove-scheduler/cmd"

func main() {
	cmd.Execute()
}
