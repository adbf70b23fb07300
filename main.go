package main

import "bjoernblessin.de/groupstack/cmd"

func main() {
	cmd.Execute()
}
