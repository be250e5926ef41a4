package main

import (
	"log"
	"os"

	"github.com/earshotfm/earshot/internal/server"
)

func main() {
	addr := os.Getenv("EARSHOT_HTTP_ADDR")

	if err := server.Run(addr); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
