package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"inventory-admin/internal/adapters/cli"
	"inventory-admin/internal/app"
	"inventory-admin/internal/config"
	"inventory-admin/internal/store"
)

func main() {
	log.SetFlags(0)
	if len(os.Args) < 2 {
		log.Fatal(cli.Usage)
	}

	cfg, err := config.Load(".")
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx := context.Background()
	svc, _, cleanup, err := app.Wire(ctx, cfg)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}
	defer cleanup()

	openCloud := func(ctx context.Context, name string) (store.BatchWriter, func(), error) {
		b, err := app.OpenCloud(ctx, cfg, name)
		if err != nil {
			return nil, nil, err
		}
		w, ok := b.Store.(store.BatchWriter)
		if !ok {
			b.Close()
			return nil, nil, fmt.Errorf("%s backend cannot write batches", name)
		}
		return w, b.Close, nil
	}

	if err := cli.Run(ctx, svc, openCloud, os.Stdout, os.Args[1:]); err != nil {
		cleanup()
		log.Fatal(err)
	}
}
