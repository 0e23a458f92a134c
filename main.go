package main

import "github.com/vibast-solutions/ms-go-reconciler/cmd"

func main() {
	cmd.Execute()
}
