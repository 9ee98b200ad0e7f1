// Sever - an emergency disconnect engine for remote-access channels.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"sever/cmd"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := cmd.Execute(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "sever: %v\n", err)
		os.Exit(1)
	}
}
