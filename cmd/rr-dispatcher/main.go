// Command rr-dispatcher multiplexes debug-adapter requests from a single
// client across a pool of rr replay worker processes (spec.md §6 CLI
// surface). Startup parameters are layered flag > env var > config file >
// built-in default, following firestige-Otus's cmd/root.go + viper split.
package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	rrdispatch "github.com/metacraft-labs/rr-dispatcher"
	"github.com/metacraft-labs/rr-dispatcher/logging"
)

const envPrefix = "RRDISPATCH"

// Exit codes per spec.md §6.
const (
	exitClean        = 0
	exitBadArgs      = 2
	exitFatalRuntime = 3
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout))
}

func run(args []string, stdin io.Reader, stdout io.Writer) int {
	var (
		poolMax            uint
		closeTracking      uint
		interruptSupported bool
		socketPath         string
		useStdio           bool
		configFile         string
	)

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	root := &cobra.Command{
		Use:           "rr-dispatcher <trace-path>",
		Short:         "Multiplex debug-adapter requests across a pool of rr replay workers",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.Flags()
	flags.UintVar(&poolMax, "pool-max", 4, "maximum number of concurrent rr workers")
	flags.UintVar(&closeTracking, "close-tracking", 1, "number of close-tracking reserve workers")
	flags.BoolVar(&interruptSupported, "interrupt-supported", false, "attempt a graceful interrupt before cancel-and-replace")
	flags.StringVar(&socketPath, "socket", "", "unix socket path to serve on")
	flags.BoolVar(&useStdio, "stdio", false, "serve over stdin/stdout (default when --socket is unset)")
	flags.StringVar(&configFile, "config", "", "optional config file (yaml, json or toml, read via viper)")
	if err := v.BindPFlags(flags); err != nil {
		fmt.Fprintln(stdout, err)
		return exitBadArgs
	}

	exitCode := exitClean
	root.RunE = func(cmd *cobra.Command, posArgs []string) error {
		if configFile != "" {
			v.SetConfigFile(configFile)
			if err := v.ReadInConfig(); err != nil {
				return fmt.Errorf("reading config file %s: %w", configFile, err)
			}
		}

		tracePath := posArgs[0]
		opts := []rrdispatch.Option{
			rrdispatch.WithPoolMax(v.GetUint("pool-max")),
			rrdispatch.WithCloseTrackingCount(v.GetUint("close-tracking")),
			rrdispatch.WithLogger(logging.Default()),
		}
		if v.GetBool("interrupt-supported") {
			opts = append(opts, rrdispatch.WithInterruptSupported())
		}

		transport, cleanup, err := openTransport(v.GetString("socket"), v.GetBool("stdio"), stdin, stdout)
		if err != nil {
			return err
		}
		defer cleanup()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		d, err := rrdispatch.New(ctx, tracePath, opts...)
		if err != nil {
			exitCode = exitBadArgs
			return err
		}

		if err := d.Start(transport, transport); err != nil && err != io.EOF {
			d.Close()
			return err
		}
		d.Close()

		if d.Fatal() {
			exitCode = exitFatalRuntime
		}
		return nil
	}

	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(stdout, "rr-dispatcher:", err)
		if exitCode == exitClean {
			exitCode = exitBadArgs
		}
	}
	return exitCode
}

// readWriter joins a separate reader and writer (the stdin/stdout pair) into
// the single io.ReadWriter openTransport returns; a socket connection is
// returned as is.
type readWriter struct {
	io.Reader
	io.Writer
}

// openTransport picks the client transport per §6: a single accepted
// connection on socketPath, or stdin/stdout when stdio is requested (or no
// socket was given at all).
func openTransport(socketPath string, stdio bool, stdin io.Reader, stdout io.Writer) (io.ReadWriter, func(), error) {
	if socketPath == "" || stdio {
		return readWriter{Reader: stdin, Writer: stdout}, func() {}, nil
	}

	_ = os.Remove(socketPath)
	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, nil, fmt.Errorf("listening on %s: %w", socketPath, err)
	}
	conn, err := ln.Accept()
	if err != nil {
		ln.Close()
		return nil, nil, fmt.Errorf("accepting client connection: %w", err)
	}
	cleanup := func() {
		conn.Close()
		ln.Close()
		os.Remove(socketPath)
	}
	return conn, cleanup, nil
}
