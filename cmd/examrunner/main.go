// Command examrunner takes one IELTS mock test from a terminal. It keeps a
// local draft in a bbolt file, checkpoints to the gateway and submits when
// the clock runs out.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/mind-engage/ielts-mock/internal/client/apiclient"
	"github.com/mind-engage/ielts-mock/internal/client/localstore"
	"github.com/mind-engage/ielts-mock/internal/client/scheduler"
	"github.com/mind-engage/ielts-mock/internal/client/session"
	"github.com/mind-engage/ielts-mock/internal/exam"
	"github.com/mind-engage/ielts-mock/internal/logging"
)

func main() {
	var (
		server   = flag.String("server", "http://localhost:8080", "gateway base URL")
		token    = flag.String("token", "", "access token; empty logs in with -user or as a guest")
		user     = flag.String("user", "", "username for password login")
		password = flag.String("password", "", "password for -user; prompted when empty")
		module   = flag.String("module", "reading", "listening or reading")
		testID   = flag.String("test", "", "test id")
		store    = flag.String("store", "examrunner.db", "local draft store")
		logLevel = flag.String("log-level", "warn", "log level")
	)
	flag.Parse()

	logger := logging.New(*logLevel, "")
	defer logger.Sync() //nolint:errcheck

	if err := run(logger, *server, *token, *user, *password, *module, *testID, *store); err != nil {
		fmt.Fprintln(os.Stderr, "examrunner:", err)
		os.Exit(1)
	}
}

func run(logger *zap.Logger, server, token, user, password, moduleName, testID, storePath string) error {
	mod, err := exam.ParseModule(moduleName)
	if err != nil {
		return err
	}
	if testID == "" {
		return fmt.Errorf("-test is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := apiclient.NewClient(server)
	switch {
	case token != "":
		client.SetToken(token)
	case user != "":
		if password == "" {
			if password, err = readPassword(); err != nil {
				return err
			}
		}
		if _, err := client.Login(ctx, user, password); err != nil {
			return err
		}
	default:
		name, err := client.Guest(ctx)
		if err != nil {
			return err
		}
		fmt.Println("signed in as", name)
	}

	t, err := client.GetTest(ctx, testID)
	if err != nil {
		return err
	}
	if t.Module != mod {
		return fmt.Errorf("test %s is a %s test", t.ID, t.Module)
	}

	kv, err := localstore.Open(storePath)
	if err != nil {
		return err
	}
	defer kv.Close()

	s, err := session.Open(ctx, client, kv, session.Options{
		Module:    mod,
		TestID:    testID,
		TimeLimit: t.TimeLimitSec,
		Scheduler: scheduler.DefaultConfig(),
		OnTick: func(left int) {
			if left > 0 && left%60 == 0 {
				fmt.Printf("\n%d minutes left\n> ", left/60)
			}
		},
		OnSubmitted: func(a exam.Attempt, auto bool) {
			if auto {
				fmt.Printf("\ntime is up, submitted automatically\n")
			}
			printResult(os.Stdout, a)
		},
		Logger: logger,
	})
	if err != nil {
		return err
	}
	defer func() {
		s.Hide()
		client.WaitBeacons()
		if err := s.Close(); err != nil {
			logger.Warn("close session", zap.Error(err))
		}
	}()

	fmt.Printf("%s (%s), attempt %s\n", t.Title, t.Module, s.AttemptID())
	printTest(os.Stdout, t)
	fmt.Println(`type "help" for commands`)

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	r := &runner{s: s, notes: client, out: os.Stdout}
	for {
		fmt.Print("> ")
		select {
		case <-ctx.Done():
			return nil
		case <-s.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := r.exec(ctx, line)
			if err != nil {
				fmt.Println("error:", err)
			}
			if quit {
				return nil
			}
		}
	}
}

func readPassword() (string, error) {
	fmt.Print("password: ")
	pw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(pw), nil
}
