package main

import "dosk/cmd"

func main() {
	cmd.Execute()
}
