package main

import (
	"fmt"
	"os"

	cmd "github.com/diversitus/infra/cmd/deploy"
)

func main() {
	err := cmd.Deploy.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
