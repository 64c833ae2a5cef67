package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	flags "github.com/jessevdk/go-flags"
)

type flagOptions struct {
	Port        int `long:"port" description:"port to listen on"`
	Status      int `long:"status" default:"204" description:"HTTP status to answer every write with"`
	RunDuration int `long:"run-duration" description:"Duration in seconds to run the mock (debug feature)"`
}

func main() {
	var opts flagOptions
	var argv []string = os.Args[1:]
	var parser = flags.NewParser(&opts, flags.HelpFlag)
	var err error
	_, err = parser.ParseArgs(argv)
	if err != nil {
		fmt.Printf("Command line flags parsing failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Running Influxmock, opts: %+v...\n", opts)

	if opts.Port == 0 {
		fmt.Println("Port is required")
		os.Exit(1)
	}

	ctx := context.Background()

	if opts.RunDuration > 0 {
		fmt.Printf("Using RUN DURATION of %d seconds\n", opts.RunDuration)
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(opts.RunDuration)*time.Second)
		defer cancel()
	}

	var received atomic.Int64

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.POST("/*path", func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.Status(http.StatusBadRequest)
			return
		}
		n := received.Add(1)
		fmt.Printf("#%d %s auth=%q: %s", n, c.Request.URL.RequestURI(), c.GetHeader("Authorization"), body)
		c.Status(opts.Status)
	})

	server := &http.Server{
		Addr:              net.JoinHostPort("", strconv.Itoa(opts.Port)),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("Influxmock failed: %v\n", err)
			os.Exit(1)
		}
	}()

	// Enable signal handling
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	fmt.Printf("Influxmock is ready on port %d, answering %d\n", opts.Port, opts.Status)

	// Wait for graceful shutdown or timeout
	select {
	case receivedSignal := <-sig:
		fmt.Printf("Influxmock received signal: %v\n", receivedSignal)
	case <-ctx.Done():
		fmt.Printf("Influxmock timed out\n")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	server.Shutdown(shutdownCtx)

	fmt.Printf("Influxmock stopped after %d writes\n", received.Load())
}
