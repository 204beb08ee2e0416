package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/ribelo/degiro-go/internal/client"
	"github.com/ribelo/degiro-go/internal/models"
	"github.com/ribelo/degiro-go/internal/session"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	GitCommit = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "Show version information")
	verbose := flag.Bool("v", false, "Enable debug logging")
	noPersist := flag.Bool("no-persist", false, "Do not save the session to disk")
	flag.Parse()

	if *showVersion {
		fmt.Printf("degiro %s (%s)\n", Version, GitCommit)
		os.Exit(0)
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	ctx := context.Background()

	creds, err := credentialsFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	c, err := client.New(client.Config{
		Credentials:    creds,
		PersistSession: !*noPersist,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	switch args[0] {
	case "login":
		err = runLogin(ctx, c)
	case "status":
		err = runStatus(c)
	case "rates":
		err = runRates(ctx, c, args[1:])
	case "logout":
		err = c.Logout(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: degiro [flags] <command>

Commands:
  login    Authenticate and cache the session
  status   Show the current session state
  rates    Show cached currency rates (rates <FROM> <TO> for one pair)
  logout   Drop the session and delete the saved snapshot

Credentials are read from DEGIRO_USERNAME, DEGIRO_PASSWORD and
DEGIRO_TOTP_SECRET; a missing password is prompted on the terminal.
`)
}

// credentialsFromEnv собирает учетные данные из окружения.
// Пароль при отсутствии запрашивается с терминала без эха.
func credentialsFromEnv() (client.Credentials, error) {
	username := os.Getenv("DEGIRO_USERNAME")
	if username == "" {
		return client.Credentials{}, fmt.Errorf("DEGIRO_USERNAME environment variable not set")
	}

	password := os.Getenv("DEGIRO_PASSWORD")
	if password == "" {
		fmt.Fprint(os.Stderr, "Password: ")
		raw, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return client.Credentials{}, fmt.Errorf("failed to read password: %w", err)
		}
		password = strings.TrimSpace(string(raw))
	}
	if password == "" {
		return client.Credentials{}, fmt.Errorf("password cannot be empty")
	}

	return client.Credentials{
		Username:   username,
		Password:   password,
		TOTPSecret: os.Getenv("DEGIRO_TOTP_SECRET"),
	}, nil
}

func runLogin(ctx context.Context, c *client.Client) error {
	if err := c.Login(ctx); err != nil {
		return err
	}
	snap, err := c.Snapshot()
	if err != nil {
		return err
	}
	fmt.Printf("Logged in as account %d (client %d)\n", snap.Data.IntAccount, snap.Data.ClientID)
	return nil
}

func runStatus(c *client.Client) error {
	snap, err := c.Snapshot()
	if err != nil {
		return err
	}
	fmt.Printf("Auth state:  %s\n", snap.Level)
	if snap.Data.SessionID != "" {
		fmt.Printf("Account:     %d\n", snap.Data.IntAccount)
		fmt.Printf("Client ID:   %d\n", snap.Data.ClientID)
		fmt.Printf("Issued at:   %s\n", snap.Data.IssuedAt.Format("2006-01-02 15:04:05"))
		fmt.Printf("Rates:       %d cached pairs\n", len(snap.Data.Rates))
	}
	return nil
}

func runRates(ctx context.Context, c *client.Client, args []string) error {
	// Восстановленной сессии достаточно; логинимся только при необходимости
	if err := c.EnsureLevel(ctx, session.LevelAuthenticated); err != nil {
		return err
	}

	if len(args) == 2 {
		from, err := models.ParseCurrency(strings.ToUpper(args[0]))
		if err != nil {
			return err
		}
		to, err := models.ParseCurrency(strings.ToUpper(args[1]))
		if err != nil {
			return err
		}
		rate, err := c.Rate(from, to)
		if err != nil {
			return err
		}
		fmt.Printf("%s/%s = %s\n", from, to, rate.String())
		return nil
	}

	snap, err := c.Snapshot()
	if err != nil {
		return err
	}
	for pair, rate := range snap.Data.Rates {
		fmt.Printf("%s = %s\n", pair, rate.String())
	}
	return nil
}
