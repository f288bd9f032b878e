/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package main

import "premiumshop/cmd"

func main() {
	cmd.Execute()
}
