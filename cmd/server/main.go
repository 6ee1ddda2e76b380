// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package main

import (
	"context"
	"log"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/stem-ed-architects/backend/internal/config"
	"github.com/stem-ed-architects/backend/internal/server"
)

func main() {
	cmd := &cli.Command{
		Name:   "server",
		Usage:  "Start the backend API server",
		Flags:  config.Flags(),
		Action: server.Run,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
