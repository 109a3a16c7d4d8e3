package main

import "github.com/apkdock/apkdock/cmd"

func main() {
	cmd.Execute()
}
