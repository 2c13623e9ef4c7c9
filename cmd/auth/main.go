// Package main provides the Spotify authentication tool.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/19mix/internal/infra/auth"
	"github.com/osa030/19mix/internal/infra/logger"
)

var (
	app          = kingpin.New("19mix-auth", "Spotify authentication tool for 19mix")
	clientID     = app.Flag("client-id", "Spotify Client ID").Envar("SPOTIFY_CLIENT_ID").Required().String()
	clientSecret = app.Flag("client-secret", "Spotify Client Secret (optional with PKCE)").Envar("SPOTIFY_CLIENT_SECRET").String()
	port         = app.Flag("port", "Callback server port").Default("5543").Int()
	tokenPath    = app.Flag("token-path", "Where to write the token").Default("credentials.json").String()
	timeout      = app.Flag("timeout", "How long to wait for the authorization").Default("5m").Duration()
)

type callbackResult struct {
	state string
	code  string
	err   string
}

func main() {
	_ = godotenv.Load()
	kingpin.MustParse(app.Parse(os.Args[1:]))

	if _, err := logger.Init(logger.Config{Output: "stderr", Level: "info"}); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	if err := run(); err != nil {
		zlog.Error().Msgf("Authorization failed: %v", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	redirectURL := fmt.Sprintf("http://127.0.0.1:%d/callback", *port)
	provider := auth.NewProvider(auth.Config{
		ClientID:     *clientID,
		ClientSecret: *clientSecret,
		TokenPath:    *tokenPath,
		RedirectURL:  redirectURL,
	})
	authz := provider.BeginAuthorization()

	results := make(chan callbackResult, 1)
	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		res := callbackResult{state: q.Get("state"), code: q.Get("code"), err: q.Get("error")}
		if res.err != "" {
			http.Error(w, "Authorization denied: "+res.err, http.StatusForbidden)
		} else {
			fmt.Fprint(w, completePage)
		}
		select {
		case results <- res:
		default:
		}
	})

	listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", *port))
	if err != nil {
		return errors.Wrapf(err, "failed to listen on port %d", *port)
	}
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Error().Msgf("Callback server failed: %v", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	fmt.Println("Please visit the following URL to authorize 19mix:")
	fmt.Println("")
	fmt.Println(authz.URL)
	fmt.Println("")
	fmt.Println("Waiting for authorization...")

	var res callbackResult
	select {
	case res = <-results:
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "no authorization received")
	}
	if res.err != "" {
		return errors.Newf("authorization denied: %s", res.err)
	}

	token, err := provider.CompleteAuthorization(ctx, authz, res.state, res.code)
	if err != nil {
		return err
	}

	fmt.Println("")
	fmt.Println("=== Authorization Successful ===")
	fmt.Println("")
	fmt.Printf("Token written to %s\n", *tokenPath)
	fmt.Println("")
	fmt.Println("Or set the refresh token as environment variable:")
	fmt.Printf("export SPOTIFY_REFRESH_TOKEN=\"%s\"\n", token.RefreshToken)
	return nil
}

const completePage = `<!DOCTYPE html>
<html>
<head>
    <title>19mix - Authorization Complete</title>
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            display: flex;
            justify-content: center;
            align-items: center;
            height: 100vh;
            margin: 0;
            background: linear-gradient(135deg, #1DB954 0%, #191414 100%);
            color: white;
        }
        .container {
            text-align: center;
            padding: 40px;
            background: rgba(0, 0, 0, 0.5);
            border-radius: 16px;
        }
    </style>
</head>
<body>
    <div class="container">
        <h1>Authorization Complete</h1>
        <p>You can close this window and return to the terminal.</p>
    </div>
</body>
</html>
`
