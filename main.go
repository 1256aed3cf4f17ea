package main

import "github.com/njaaron/articlesearch/cmd"

func main() {
	cmd.Execute()
}
