/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package main

import "github.com/mautops/turk-gin/cmd"

func main() {
	cmd.Execute()
}
