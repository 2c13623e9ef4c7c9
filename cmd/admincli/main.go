// Package main provides the admin CLI entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"connectrpc.com/connect"
	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"

	apiconnect "github.com/osa030/19mix/internal/api/connect"
	"github.com/osa030/19mix/internal/app/notification"
)

var (
	app    = kingpin.New("19mix-admincli", "19mix admin client")
	server = app.Flag("server", "Server address").Default("http://localhost:8080").String()
	token  = app.Flag("token", "Admin token (or set ADMIN_TOKEN env)").Envar("ADMIN_TOKEN").String()

	// status command
	statusCmd = app.Command("status", "Show the mix and its play counts")

	// library command
	libraryCmd = app.Command("library", "List cached playlists").Alias("list")

	// refresh command
	refreshCmd = app.Command("refresh", "Fetch playlists not cached yet")

	// set-mix command
	setMixCmd     = app.Command("set-mix", "Replace the mix")
	setMixSources = setMixCmd.Arg("sources", "Sources as <playlist>=<weight> (ID, URI or URL)").Required().Strings()

	// clear-mix command
	clearMixCmd = app.Command("clear-mix", "Remove every source, disabling the scheduler")

	// tick command
	tickCmd = app.Command("tick", "Run a tick now")

	// watch command
	watchCmd = app.Command("watch", "Stream mixer events")
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	if *token == "" {
		fmt.Println("Error: admin token is required (use --token or ADMIN_TOKEN env)")
		os.Exit(1)
	}

	client := apiconnect.NewAdminClient(http.DefaultClient, *server, *token)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch command {
	case statusCmd.FullCommand():
		err = status(ctx, client)
	case libraryCmd.FullCommand():
		err = listLibrary(ctx, client)
	case refreshCmd.FullCommand():
		err = refresh(ctx, client)
	case setMixCmd.FullCommand():
		err = setMix(ctx, client, *setMixSources)
	case clearMixCmd.FullCommand():
		err = clearMix(ctx, client)
	case tickCmd.FullCommand():
		err = tick(ctx, client)
	case watchCmd.FullCommand():
		err = watch(ctx, client)
	}
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func status(ctx context.Context, client *apiconnect.AdminClient) error {
	s, err := client.GetStatus(ctx)
	if err != nil {
		return err
	}
	printStatus(os.Stdout, s)
	return nil
}

func listLibrary(ctx context.Context, client *apiconnect.AdminClient) error {
	resp, err := client.ListLibrary(ctx)
	if err != nil {
		return err
	}
	printLibrary(os.Stdout, resp)
	return nil
}

func refresh(ctx context.Context, client *apiconnect.AdminClient) error {
	resp, err := client.RefreshLibrary(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Library refreshed: added=%d total=%d\n", resp.Added, resp.Total)
	if resp.Message != "" {
		fmt.Printf("Refresh incomplete: %s\n", resp.Message)
	}
	return nil
}

func setMix(ctx context.Context, client *apiconnect.AdminClient, args []string) error {
	sources, err := parseSources(args)
	if err != nil {
		return err
	}
	printPreview(os.Stdout, sources)

	resp, err := client.SetMix(ctx, sources)
	if err != nil {
		if connect.CodeOf(err) == connect.CodeInvalidArgument {
			return errors.Wrap(err, "mix rejected")
		}
		return err
	}
	fmt.Printf("Mix installed: session=%s sources=%d\n", resp.SessionID, resp.Sources)
	return nil
}

func clearMix(ctx context.Context, client *apiconnect.AdminClient) error {
	resp, err := client.ClearMix(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Mix cleared: session=%s\n", resp.SessionID)
	return nil
}

func tick(ctx context.Context, client *apiconnect.AdminClient) error {
	resp, err := client.TickNow(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Outcome: %s\n", resp.Outcome)
	if resp.SourceID != "" {
		fmt.Printf("  Source: %s\n", resp.SourceID)
	}
	if resp.TrackID != "" {
		fmt.Printf("  Track:  %s\n", resp.TrackID)
	}
	fmt.Printf("  Attempts: %d  Throttles: %d\n", resp.Attempts, resp.Throttles)
	if resp.Error != "" {
		fmt.Printf("  Error: %s\n", resp.Error)
	}
	return nil
}

func watch(ctx context.Context, client *apiconnect.AdminClient) error {
	fmt.Println("Watching events (Ctrl+C to stop)...")
	err := client.WatchEvents(ctx, func(e *notification.Event) {
		fmt.Println(formatEvent(e))
	})
	if ctx.Err() != nil {
		return nil
	}
	return err
}
