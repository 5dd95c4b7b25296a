package main

import "github.com/stevehiehn/formwizard/cmd"

func main() {
	cmd.Execute()
}
