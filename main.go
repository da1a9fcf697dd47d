package main

import "madangbot/cmd"

func main() {
	cmd.Run()
}
