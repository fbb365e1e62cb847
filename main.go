/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>

*/
package main

import "github.com/AbuAli85/business-services-hub-sub014/cmd"

func main() {
	cmd.Execute()
}
