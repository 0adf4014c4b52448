package main

import "github.com/qobs-build/rbuild/cmd"

func main() {
	cmd.Execute()
}
