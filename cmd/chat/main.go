package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/zhouzirui/z-tavern/chatsync/internal/logger"
)

func main() {
	if err := godotenv.Load(); err != nil {
		logger.Debug("no .env file loaded", "error", err)
	}

	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
