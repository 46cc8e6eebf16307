package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"dqx0.com/go/h1ws/config"
	"dqx0.com/go/h1ws/httpx"
	"dqx0.com/go/h1ws/httpx/ws"
	"dqx0.com/go/h1ws/internal/obs"
)

var version = "0.1.0"

var (
	addr       string
	configPath string
	logLevel   string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (.yaml, .toml or .json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "debug, info, warn or error")
	rootCmd.Flags().StringVarP(&addr, "addr", "a", ":8080", "listen address")
	rootCmd.AddCommand(getCmd, wsCmd)
}

var rootCmd = &cobra.Command{
	Use:   "h1ws-echo",
	Short: "HTTP/1.1 and WebSocket echo server",
	Long: `h1ws-echo answers every HTTP request with its method, target and body,
and echoes every WebSocket message back to the sender.

Examples:
  h1ws-echo --addr :9000
  h1ws-echo get http://127.0.0.1:9000/hello
  h1ws-echo ws ws://127.0.0.1:9000/ first second`,
	Version: version,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, lg, err := setup()
		if err != nil {
			return err
		}
		s := &httpx.Server{
			Addr:         addr,
			Handler:      httpx.HandlerFunc(echo),
			WebSocket:    httpx.WebSocketHandlerFunc(echoWebSocket),
			Subprotocols: []string{"echo"},
			Config:       &cfg,
			Logger:       lg,
			Meter:        obs.NewOTelMeter(otel.GetMeterProvider().Meter("h1ws"), nil),
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		errc := make(chan error, 1)
		go func() { errc <- s.ListenAndServe() }()
		lg.Logf(obs.Info, "listening on %s", addr)

		select {
		case err := <-errc:
			return err
		case <-ctx.Done():
		}
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.Shutdown(sctx); err != nil {
			return err
		}
		if err := <-errc; !errors.Is(err, httpx.ErrServerClosed) {
			return err
		}
		return nil
	},
}

var getCmd = &cobra.Command{
	Use:   "get <url>...",
	Short: "Fetch URLs from one server over a single pipelined connection",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, lg, err := setup()
		if err != nil {
			return err
		}
		u, err := url.Parse(args[0])
		if err != nil {
			return err
		}
		if u.Scheme != "http" {
			return httpx.ErrURLScheme
		}
		host := u.Host
		if u.Port() == "" {
			host += ":80"
		}
		ctx := cmd.Context()
		c, err := httpx.Dial(ctx, host, &cfg)
		if err != nil {
			return err
		}
		defer c.Close()
		c.Logger = lg
		for _, raw := range args {
			res, err := c.Get(ctx, raw)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", res.Proto, res.Status)
			_, err = io.Copy(cmd.OutOrStdout(), res.Body)
			res.Body.Close()
			if err != nil {
				return err
			}
		}
		return nil
	},
}

var wsCmd = &cobra.Command{
	Use:   "ws <url> <message>...",
	Short: "Send text messages over a WebSocket and print the replies",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := setup()
		if err != nil {
			return err
		}
		c, _, err := httpx.DialWebSocket(cmd.Context(), args[0], []string{"echo"}, &cfg)
		if err != nil {
			return err
		}
		for _, msg := range args[1:] {
			if err := c.WriteText(msg); err != nil {
				return err
			}
			_, reply, err := c.ReadMessage()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(reply))
		}
		return c.Close(ws.CloseNormal, "")
	},
}

func setup() (config.Config, obs.Logger, error) {
	level, err := obs.ParseLevel(logLevel)
	if err != nil {
		return config.Config{}, nil, err
	}
	lg := obs.StdLogger{L: log.New(os.Stderr, "", log.LstdFlags), Min: level}
	cfg := config.Default()
	if configPath != "" {
		if cfg, err = config.Load(configPath); err != nil {
			return config.Config{}, nil, err
		}
	}
	return cfg, lg, nil
}

func echo(w httpx.ResponseWriter, r *httpx.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "%s %s %s\n", r.Method, r.RequestURI, r.Proto)
	for _, f := range r.Header {
		fmt.Fprintf(w, "%s: %s\n", f.Name, f.Value)
	}
	if r.ContentLength != 0 {
		fmt.Fprintln(w)
		_, _ = io.Copy(w, r.Body)
	}
}

func echoWebSocket(c *httpx.WebSocketConn, r *httpx.Request) {
	for {
		op, msg, err := c.ReadMessage()
		if err != nil {
			return
		}
		if err := c.WriteMessage(op, msg); err != nil {
			return
		}
	}
}
