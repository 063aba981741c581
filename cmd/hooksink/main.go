package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"

	"hooksink/internal/config"
	"hooksink/internal/log"
	"hooksink/internal/publisher"
	"hooksink/internal/tui/watch"
	"hooksink/internal/webhook"
)

const version = "0.1.0"

const defaultPort = 8000

func main() {
	args := os.Args[1:]

	if len(args) > 0 {
		switch args[0] {
		case "serve":
			os.Exit(runServe(args[1:]))
		case "send":
			os.Exit(runSend(args[1:]))
		case "sign":
			os.Exit(runSign(args[1:]))
		case "config":
			os.Exit(runConfigNoun(args[1:]))
		case "watch":
			os.Exit(runWatch(args[1:]))
		case "version":
			fmt.Printf("hooksink version %s\n", version)
			os.Exit(0)
		case "help", "--help", "-h":
			printUsage()
			os.Exit(0)
		}
	}

	// Bare invocation: hooksink [port] [--bind ADDRESS]
	os.Exit(runServe(args))
}

func printUsage() {
	fmt.Print(`hooksink - HMAC-verified webhook receiver

Usage:
  hooksink [port] [--bind ADDRESS]     Serve (port defaults to 8000)
  hooksink <command> [flags]

Commands:
  serve     Start the receiver (same as the bare form, plus --config)
  send      Sign a JSON payload and POST it to a receiver
  sign      Print the hex HMAC-SHA256 digest of a payload
  config    Configuration integrity (lock, check)
  watch     Live delivery tail for a running receiver
  version   Show version information
  help      Show this help message

The shared secret is read from the HOOKSINK_SECRET environment variable
unless a config file provides one.

Use 'hooksink <command> --help' for command-specific flags.
`)
}

// splitServeArgs extracts the optional positional port so it may appear
// before or after flags.
func splitServeArgs(args []string) (port int, rest []string, err error) {
	port = -1
	valueFlags := map[string]bool{
		"--bind": true, "-b": true,
		"--config": true,
	}

	expectValue := false
	for _, arg := range args {
		if expectValue {
			rest = append(rest, arg)
			expectValue = false
			continue
		}
		if strings.HasPrefix(arg, "-") {
			rest = append(rest, arg)
			expectValue = valueFlags[arg]
			continue
		}
		if port >= 0 {
			return 0, nil, fmt.Errorf("unexpected argument %q", arg)
		}
		p, perr := strconv.Atoi(arg)
		if perr != nil || p < 0 || p > 65535 {
			return 0, nil, fmt.Errorf("invalid port %q", arg)
		}
		port = p
	}
	return port, rest, nil
}

func runServe(args []string) int {
	port, rest, err := splitServeArgs(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	var bind string
	fs.StringVar(&bind, "bind", "", "Bind address (default: all interfaces)")
	fs.StringVar(&bind, "b", "", "Bind address (shorthand)")
	configPath := fs.String("config", "", "Path to configuration file")
	if err := fs.Parse(rest); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			return 1
		}
	}

	// CLI bind/port override the config file listen address.
	if port >= 0 || bind != "" {
		if port < 0 {
			port = defaultPort
		}
		cfg.Listen = net.JoinHostPort(bind, strconv.Itoa(port))
	}

	log.Setup(cfg.LogLevel, cfg.LogFormat)
	logger := log.WithComponent("main")

	secret, err := cfg.ResolveSecret()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	maxBody, err := cfg.MaxBodyBytes()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	server := webhook.New(webhook.Config{
		Listen:          cfg.Listen,
		Secret:          secret,
		SignatureHeader: cfg.SignatureHeader,
		MaxBodySize:     maxBody,
		EventBuffer:     cfg.EventBuffer,
	}, &webhook.ConsoleSink{Out: os.Stdout}, log.WithComponent("webhook"))

	logger.Info("hooksink starting", "version", version, "listen", cfg.Listen)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(ctx)
	}()

	select {
	case sig := <-sigCh:
		logger.Info("received signal, shutting down", "signal", sig.String())
		cancel()
		<-errCh
		return 0
	case err := <-errCh:
		if err != nil && err != context.Canceled {
			logger.Error("server failed", "error", err)
			return 1
		}
		return 0
	}
}

func runSend(args []string) int {
	fs := flag.NewFlagSet("send", flag.ExitOnError)
	url := fs.String("url", "http://127.0.0.1:8000/", "Receiver endpoint")
	secret := fs.String("secret", "", "Shared secret (default: HOOKSINK_SECRET)")
	data := fs.String("d", "", "Payload (default: read from stdin)")
	retries := fs.Int("retries", 5, "Retries after the first failed attempt")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	sec := *secret
	if sec == "" {
		sec = os.Getenv(config.SecretEnvVar)
	}
	if sec == "" {
		fmt.Fprintf(os.Stderr, "Error: no secret (use --secret or set %s)\n", config.SecretEnvVar)
		return 1
	}

	payload, err := readPayload(*data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	log.Setup("INFO", "text")
	p := publisher.New(nil, publisher.Config{
		URL:        *url,
		Secret:     sec,
		MaxRetries: *retries,
	}, log.WithComponent("publisher"))

	if err := p.Publish(context.Background(), payload); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to publish: %v\n", err)
		return 1
	}

	fmt.Println("Delivered.")
	return 0
}

func runSign(args []string) int {
	fs := flag.NewFlagSet("sign", flag.ExitOnError)
	secret := fs.String("secret", "", "Shared secret (default: HOOKSINK_SECRET)")
	data := fs.String("d", "", "Payload (default: read from stdin)")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	sec := *secret
	if sec == "" {
		sec = os.Getenv(config.SecretEnvVar)
	}
	if sec == "" {
		fmt.Fprintf(os.Stderr, "Error: no secret (use --secret or set %s)\n", config.SecretEnvVar)
		return 1
	}

	payload, err := readPayload(*data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	fmt.Println(webhook.Signature(payload, sec))
	return 0
}

func readPayload(inline string) ([]byte, error) {
	if inline != "" {
		return []byte(inline), nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return nil, fmt.Errorf("failed to read stdin: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty payload (use -d or pipe data on stdin)")
	}
	return data, nil
}

func runConfigNoun(args []string) int {
	if len(args) < 1 || isHelpToken(args[0]) {
		out := os.Stderr
		code := 1
		if len(args) > 0 {
			out = os.Stdout
			code = 0
		}
		fmt.Fprintln(out, "Usage: hooksink config <action> [flags]")
		fmt.Fprintln(out, "Actions: lock, check")
		return code
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "lock":
		return runConfigLock(actionArgs)
	case "check":
		return runConfigCheck(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", action)
		return 1
	}
}

func runConfigLock(args []string) int {
	fs := flag.NewFlagSet("lock", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	hash, err := config.WriteChecksum(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write checksum: %v\n", err)
		return 1
	}
	fmt.Printf("Locked %s (blake3 %s)\n", *configPath, hash)
	return 0
}

func runConfigCheck(args []string) int {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	if _, err := config.Load(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Check failed: %v\n", err)
		return 1
	}
	if err := config.VerifyChecksum(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Check failed: %v\n", err)
		return 1
	}
	fmt.Println("Status: Configuration check PASSED.")
	return 0
}

func runWatch(args []string) int {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	url := fs.String("url", "http://127.0.0.1:8000", "Receiver base URL")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	if _, err := tea.NewProgram(watch.New(*url)).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Watch failed: %v\n", err)
		return 1
	}
	return 0
}

func isHelpToken(token string) bool {
	return token == "help" || token == "--help" || token == "-h"
}
