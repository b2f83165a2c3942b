package main

import (
	"flag"
	"fmt"
	"os"

	"go-gemini-chat/internal/app"
	"go-gemini-chat/internal/config"

	"go.uber.org/fx"
)

func main() {
	addr := flag.String("addr", "", "http service address (overrides ADDR)")
	flag.Parse()

	cfg, err := config.LoadServer()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}

	fx.New(app.Module(cfg)).Run()
}
