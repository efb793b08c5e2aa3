package main

import "github.com/PetersonGuo/HTN25/cmd"

func main() {
	cmd.Execute()
}
