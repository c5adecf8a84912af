package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"github.com/simp-lee/recyclebin/internal/app"
	"github.com/simp-lee/recyclebin/internal/config"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to configuration file")
	emptyTrash := flag.Bool("empty-trash", false, "purge users past trash.retention and exit instead of serving")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal("failed to load config: ", err)
	}

	a, err := app.New(cfg)
	if err != nil {
		log.Fatal("failed to create app: ", err)
	}

	if *emptyTrash {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		n, err := a.EmptyTrash(ctx)
		if err != nil {
			log.Fatal("empty trash: ", err)
		}
		log.Printf("purged %d users from the trash", n)
		return
	}

	if err := a.Run(); err != nil {
		log.Fatal("server error: ", err)
	}
}
