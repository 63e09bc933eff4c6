package main

import (
	"fmt"
	"os"

	"github.com/fieldscan/fieldscan/cmd"
	"github.com/fieldscan/fieldscan/internal/conf"
)

func main() {
	settings := &conf.Settings{}

	rootCmd := cmd.RootCommand(settings)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fieldscan: %v\n", err)
		os.Exit(1)
	}
}
