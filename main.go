package main

import "github.com/kozaktomas/phenotype-matcher/cmd"

func main() {
	cmd.Execute()
}
