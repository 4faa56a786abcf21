package main

import "imot-scraper/cmd"

func main() {
	cmd.Execute()
}
