package main

import "github.com/MeKo-Tech/elscan/cmd/elscan/cmd"

func main() {
	cmd.Execute()
}
