package main

import "github.com/DrSkyle/layerline/cmd/layerline/commands"

func main() {
	commands.Execute()
}
