// oaifetch harvests an OAI repository incrementally, stores the metadata of
// each record and downloads the files the metadata links to.
//
//	$ cat config.txt
//	base_url=https://repo.example.org/oai
//	metadata_format=oai_dc
//	storage_directory=~/harvest
//	xpath=//dc:identifier/text()
//	$ oaifetch -config config.txt
//
// The date through which harvesting is complete is kept in a state file, so
// the next run continues from there.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/miku/oaifetch"
	log "github.com/sirupsen/logrus"
)

func main() {
	configFile := flag.String("config", "config.txt", "configuration file, key=value or YAML")
	stateFile := flag.String("state", "", "state file, overrides state_file from config")
	showVersion := flag.Bool("v", false, "prints current program version")
	showRepoInfo := flag.Bool("id", false, "show repository info and exit")
	verbose := flag.Bool("verbose", false, "more output")

	flag.Parse()

	if *showVersion {
		fmt.Println(oaifetch.Version)
		os.Exit(0)
	}

	oaifetch.SetupLogging(os.Stderr, "info")

	cfg, err := oaifetch.LoadConfig(*configFile)
	if err != nil {
		log.Fatal(err)
	}
	level := cfg.LogLevel
	if *verbose {
		level = "debug"
	}
	oaifetch.SetupLogging(os.Stderr, level)
	if *stateFile != "" {
		cfg.StateFile = *stateFile
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *showRepoInfo {
		client, err := oaifetch.NewClient(cfg.Transport(), cfg.MaxRetries)
		if err != nil {
			log.Fatal(err)
		}
		info, err := oaifetch.AboutEndpoint(ctx, client, cfg.BaseURL, 10*time.Minute)
		if err != nil {
			log.Fatal(err)
		}
		b, err := json.Marshal(info)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Println(string(b))
		os.Exit(0)
	}

	state := oaifetch.State{Path: cfg.StateFile}
	window := state.ReadWindow()

	harvest, err := cfg.NewHarvest(window)
	if err != nil {
		log.Fatal(err)
	}
	report := harvest.Run(ctx)

	if ctx.Err() != nil {
		log.Warn("interrupted, harvest state left unchanged")
		os.Exit(0)
	}
	if !report.Committable(cfg.AdvanceOnFailure) {
		log.WithFields(log.Fields{
			"window": window.String(),
		}).Warn("harvest failed, state left unchanged, window will be retried")
		os.Exit(0)
	}
	if err := state.Commit(window.Until); err != nil {
		log.Fatal(err)
	}
}
