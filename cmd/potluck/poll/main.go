package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joeshaw/envdecode"

	"potluck"
	"potluck/poll"
)

type pollConfig struct {
	BaseURL  string        `env:"POTLUCK_API_URL,default=http://localhost:8080"`
	UserID   string        `env:"POTLUCK_USER_ID"`
	Interval time.Duration `env:"POLL_INTERVAL,default=5s"`
}

func main() {
	dump := flag.Bool("dump", false, "print full snapshots with go-spew")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [-dump] <session-id>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	sessionID := flag.Arg(0)

	var cfg pollConfig
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		log.Fatalf("Failed to decode: %s", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := poll.NewClient(cfg.BaseURL, cfg.UserID, nil)
	poller := poll.NewPoller(client, sessionID, func(s potluck.Session) {
		if *dump {
			potluck.Fdump(os.Stdout, s)
			return
		}
		printSession(s)
	}, poll.Options{
		Interval: cfg.Interval,
		OnError: func(err error) {
			if potluck.IsKind(err, potluck.KindNotFound) {
				slog.Error("POLL: Session is gone", "session_id", sessionID)
				stop()
			}
		},
	})

	go readControls(ctx, poller)

	fmt.Fprintln(os.Stderr, "p: pause, r: resume, enter: refresh, ctrl-c: quit")
	if err := poller.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("POLL: Stopped with error", "error", err)
		os.Exit(1)
	}
}

// readControls maps stdin lines onto poller actions.
func readControls(ctx context.Context, p *poll.Poller) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		switch strings.ToLower(strings.TrimSpace(scanner.Text())) {
		case "p":
			p.Suspend()
			fmt.Fprintln(os.Stderr, "paused")
		case "r":
			p.Resume()
			fmt.Fprintln(os.Stderr, "resumed")
		case "":
			p.Refresh()
		}
	}
}

func printSession(s potluck.Session) {
	fmt.Printf("\n%s (%s) v%d %s\n", s.Name, s.Date, s.Version, s.Status)
	for _, p := range s.Participants {
		marker := " "
		if s.IsHost(p.UserID) {
			marker = "*"
		}
		fmt.Printf(" %s %s: %s\n", marker, p.DisplayName, strings.Join(p.DistinctIngredients(), ", "))
	}
	for _, r := range s.LastGeneratedRecipes {
		fmt.Printf("   - %s\n", r.Name)
	}
}
