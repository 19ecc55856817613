package main

import "github.com/Norgate-AV/riotam/cmd"

func main() {
	cmd.Execute()
}
