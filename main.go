package main

import "github.com/delta-incubator/riverbank/cmd"

func main() {
	cmd.Execute()
}
