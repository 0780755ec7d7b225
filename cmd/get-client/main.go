package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/spf13/pflag"

	"github.com/i474232898/weather-aggregation-server/internal/consumer"
	"github.com/i474232898/weather-aggregation-server/internal/lamport"
	"github.com/i474232898/weather-aggregation-server/internal/logging"
	"github.com/i474232898/weather-aggregation-server/internal/weather"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		station string
		timeout time.Duration
		env     string
	)

	flagSet := pflag.NewFlagSet("get-client", pflag.ContinueOnError)
	flagSet.StringVar(&station, "station", "", "fetch this station instead of the latest observation")
	flagSet.DurationVar(&timeout, "timeout", 10*time.Second, "HTTP timeout per attempt")
	flagSet.StringVar(&env, "env", "prod", "logging environment (dev or prod)")
	flagSet.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: get-client [flags] <host:port>\n\n%s", flagSet.FlagUsages())
	}

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if flagSet.NArg() != 1 {
		flagSet.Usage()
		return errors.New("expected <host:port>")
	}

	log, err := logging.New(env)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	client, err := consumer.New(flagSet.Arg(0), &http.Client{Timeout: timeout}, lamport.New(), log.Named("consumer"))
	if err != nil {
		return err
	}

	ctx := context.Background()
	var payload weather.Payload
	if station != "" {
		payload, err = client.Station(ctx, station)
	} else {
		payload, err = client.Latest(ctx)
	}
	if errors.Is(err, consumer.ErrNotFound) {
		fmt.Println("No weather data available.")
		return nil
	}
	if err != nil {
		return err
	}

	printPayload(os.Stdout, payload)
	return nil
}

// printPayload writes one "key: value" line per field, sorted by key.
func printPayload(w io.Writer, payload weather.Payload) {
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		fmt.Fprintf(w, "%s: %v\n", k, payload[k])
	}
}
