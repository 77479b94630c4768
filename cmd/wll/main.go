package main

import "github.com/worldline-vcs/wll/internal/wllcli"

func main() {
	wllcli.Execute()
}
