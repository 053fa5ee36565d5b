package main

import "github.com/Mohsinsiddi/lsdredeem/cmd"

func main() {
	cmd.Execute()
}
