package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	_ = godotenv.Load()

	root := &cobra.Command{Use: "ragserve"}
	root.AddCommand(serveCMD(), resetCMD())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
