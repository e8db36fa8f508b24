// Command ask puts one question to Franklin and prints the answer.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"franklin/pkg/client/franklin"
)

func main() {
	addr := flag.String("addr", "http://localhost:8080", "gateway base URL")
	interval := flag.Duration("poll", franklin.DefaultPollInterval, "status poll interval")
	maxPolls := flag.Int("max-polls", franklin.DefaultMaxPolls, "polls before giving up")
	noPush := flag.Bool("no-socket", false, "poll only, skip the progress socket")
	flag.Parse()

	question := strings.Join(flag.Args(), " ")
	if strings.TrimSpace(question) == "" {
		fmt.Fprintln(os.Stderr, "usage: ask [flags] <question>")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	opts := []franklin.Option{franklin.WithPolling(*interval, *maxPolls)}
	if *noPush {
		opts = append(opts, franklin.WithoutPush())
	}
	client := franklin.New(*addr, opts...)

	start := time.Now()
	res, err := client.Ask(ctx, question, func(u franklin.Update) {
		fmt.Fprintf(os.Stderr, "[%3d%%] %-9s %s\n", u.Progress, u.Stage, u.Message)
	})
	if err != nil {
		var failed *franklin.JobFailedError
		switch {
		case errors.As(err, &failed):
			fmt.Fprintf(os.Stderr, "Franklin could not answer (%s): %s\n", failed.Err.Kind, failed.Err.Message)
		case errors.Is(err, franklin.ErrWaitTimeout):
			fmt.Fprintln(os.Stderr, "Gave up waiting for Franklin.")
		default:
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(1)
	}

	fmt.Println(res.Answer)
	fmt.Println()
	fmt.Println("video:", res.VideoURL)
	if res.AudioURL != "" {
		fmt.Println("audio:", res.AudioURL)
	}
	fmt.Fprintf(os.Stderr, "answered in %s\n", time.Since(start).Round(time.Millisecond))
}
