package main

import (
	"fmt"

	"github.com/pheromesh/pheromesh/cli"
)

func main() {
	if err := cli.Start(); err != nil {
		fmt.Println(err)
	}
}
