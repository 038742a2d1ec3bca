package main

import "campusguard/cmd/devtoken/cmd"

func main() {
	cmd.Execute()
}
