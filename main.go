package main

import "github.com/nextlevelbuilder/walletbridge/cmd"

func main() {
	cmd.Execute()
}
