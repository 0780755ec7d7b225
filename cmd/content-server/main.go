package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/i474232898/weather-aggregation-server/internal/lamport"
	"github.com/i474232898/weather-aggregation-server/internal/logging"
	"github.com/i474232898/weather-aggregation-server/internal/producer"
	"github.com/i474232898/weather-aggregation-server/internal/resilience"
	"github.com/i474232898/weather-aggregation-server/internal/weather"
	"github.com/i474232898/weather-aggregation-server/internal/weather/providers"
)

type options struct {
	retries    uint
	retryDelay time.Duration
	interval   time.Duration
	timeout    time.Duration
	env        string

	openMeteo    bool
	openMeteoURL string
	station      weather.StationSpec
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var opts options

	flagSet := pflag.NewFlagSet("content-server", pflag.ContinueOnError)
	flagSet.UintVar(&opts.retries, "retries", producer.DefaultRetry.Attempts, "attempts per push, including the first")
	flagSet.DurationVar(&opts.retryDelay, "retry-delay", producer.DefaultRetry.Delay, "pause between attempts")
	flagSet.DurationVar(&opts.interval, "interval", 0, "re-push the data at this interval (0 pushes once)")
	flagSet.DurationVar(&opts.timeout, "timeout", 10*time.Second, "HTTP timeout per attempt")
	flagSet.StringVar(&opts.env, "env", "prod", "logging environment (dev or prod)")
	flagSet.BoolVar(&opts.openMeteo, "open-meteo", false, "source the reading from Open-Meteo instead of a feed file")
	flagSet.StringVar(&opts.openMeteoURL, "open-meteo-url", providers.DefaultOpenMeteoURL, "Open-Meteo forecast endpoint")
	flagSet.StringVar(&opts.station.ID, "station-id", "", "station id for Open-Meteo readings")
	flagSet.Float64Var(&opts.station.Lat, "lat", 0, "station latitude for Open-Meteo readings")
	flagSet.Float64Var(&opts.station.Lon, "lon", 0, "station longitude for Open-Meteo readings")
	flagSet.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage:\n  content-server [flags] <host:port> <feed-file>\n  content-server [flags] --open-meteo --station-id ID --lat LAT --lon LON <host:port>\n\n%s", flagSet.FlagUsages())
	}

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	args := flagSet.Args()
	switch {
	case opts.openMeteo && len(args) != 1:
		flagSet.Usage()
		return errors.New("expected <host:port>")
	case opts.openMeteo && opts.station.ID == "":
		return errors.New("--station-id is required with --open-meteo")
	case !opts.openMeteo && len(args) != 2:
		flagSet.Usage()
		return errors.New("expected <host:port> <feed-file>")
	}

	log, err := logging.New(opts.env)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	httpClient := &http.Client{Timeout: opts.timeout}

	client, err := producer.New(producer.Config{
		ServerAddr: args[0],
		Retry:      resilience.RetryConfig{Attempts: opts.retries, Delay: opts.retryDelay},
	}, httpClient, lamport.New(), log.Named("producer"))
	if err != nil {
		return err
	}

	var source func(ctx context.Context) ([]weather.Payload, error)
	if opts.openMeteo {
		provider := providers.NewOpenMeteoProvider(httpClient, opts.openMeteoURL)
		source = func(ctx context.Context) ([]weather.Payload, error) {
			p, err := provider.Fetch(ctx, opts.station)
			if err != nil {
				return nil, err
			}
			return []weather.Payload{p}, nil
		}
	} else {
		path := args[1]
		source = func(context.Context) ([]weather.Payload, error) {
			return readFeed(path)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	push := func() error {
		payloads, err := source(ctx)
		if err != nil {
			return err
		}
		return client.PushAll(ctx, payloads)
	}

	if err := push(); err != nil {
		return err
	}
	if opts.interval <= 0 {
		return nil
	}

	return pushPeriodically(ctx, opts.interval, push, log)
}

// pushPeriodically keeps re-pushing until ctx is cancelled so the server
// never ages the data out. Failed rounds are logged and retried next tick.
func pushPeriodically(ctx context.Context, interval time.Duration, push func() error, log *zap.SugaredLogger) error {
	s := gocron.NewScheduler(time.UTC)

	_, err := s.Every(interval).SingletonMode().WaitForSchedule().Do(func() {
		if err := push(); err != nil {
			log.Warnw("periodic push failed", "error", err)
		}
	})
	if err != nil {
		return err
	}

	s.StartAsync()
	defer s.Stop()

	log.Infow("pushing periodically", "interval", interval)
	<-ctx.Done()
	return nil
}

func readFeed(path string) ([]weather.Payload, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	payloads, err := weather.ParseFeed(f)
	if err != nil {
		return nil, fmt.Errorf("converting %s: %w", path, err)
	}
	return payloads, nil
}
