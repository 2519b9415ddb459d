package main

import "chatppt_studio/cmd"

func main() {
	cmd.Execute()
}
