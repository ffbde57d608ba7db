package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/RebelliousSmile/suddenly/activitypub"
	"github.com/RebelliousSmile/suddenly/db"
	"github.com/RebelliousSmile/suddenly/util"
	"github.com/RebelliousSmile/suddenly/web"
	"github.com/charmbracelet/log"
)

func main() {
	conf, err := util.ReadConf()
	if err != nil {
		log.Fatalf("Failed to read configuration: %v", err)
	}

	fmt.Println("Configuration: ")
	fmt.Println(util.PrettyPrint(conf))

	keysDir := util.ResolveDirPath(conf.Conf.KeysDir)
	// Without the instance key nothing outbound can be signed.
	if err := util.EnsureInstanceKeys(keysDir); err != nil {
		log.Fatalf("Failed to provision instance keys: %v", err)
	}
	instanceKey, err := util.LoadInstanceKeys(keysDir)
	if err != nil {
		log.Fatalf("Failed to load instance keys: %v", err)
	}

	store, err := db.Open(util.ResolveFilePath("suddenly.db"))
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer store.Close()

	worker := activitypub.NewWorker(store, conf, instanceKey)
	worker.Start()
	defer worker.Stop()

	prober := activitypub.NewProber(store)
	resolver := activitypub.NewResolver(store, prober)
	inbox := activitypub.NewInbox(store, resolver, worker, conf.BaseURL())

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := web.Serve(conf, store, inbox); err != nil {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-done
	log.Info("Shutting down")
}
