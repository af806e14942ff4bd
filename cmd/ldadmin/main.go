// Command ldadmin runs the soft-delete admin server.
//
//	ldadmin [serve] [-c config.json] [flags]   run the admin gRPC server
//	ldadmin token -user ID [-staff] [-superuser] issue an operator token
package main

import (
	"context"
	"log"
	"os"

	"github.com/dmitrijs2005/logicaldelete/internal/app"
	"github.com/dmitrijs2005/logicaldelete/internal/config"
)

func main() {

	args := os.Args[1:]
	cmd := "serve"
	if len(args) > 0 && (args[0] == "serve" || args[0] == "token") {
		cmd, args = args[0], args[1:]
	}

	cfg, err := config.LoadConfig(args)
	if err != nil {
		log.Fatalf("%v", err)
	}

	if cmd == "token" {
		if err := app.IssueToken(cfg, args, os.Stdout); err != nil {
			log.Fatalf("%v", err)
		}
		return
	}

	ctx := context.Background()
	a, err := app.NewApp(ctx, cfg)
	if err != nil {
		log.Printf("%v", err)
		os.Exit(1)
	}

	if err := a.Run(ctx); err != nil {
		log.Printf("%v", err)
		os.Exit(1)
	}
}
