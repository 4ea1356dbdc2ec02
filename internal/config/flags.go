// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package config

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

// NetAddress holds a host and port. It implements flag.Value.
type NetAddress struct {
	Host string
	Port int
}

// ParseFlags parses the process command line.
//
// Flags:
//
//	-a            HTTP server address host:port
//	-grpc-address gRPC health server address host:port
//	-d            PostgreSQL DSN
//	-catalog      local catalog SQLite DSN
//	-remote-url   remote platform base URL
//	-c / -config  JSON config file path
//	-log-level    zerolog level
//	-workers-min  minimum worker count
//	-workers-max  maximum worker count
//	-pull-interval periodic pull interval (e.g. "15m")
//	-request-timeout inbound request timeout (e.g. "30s")
func ParseFlags() (*StructuredConfig, error) {
	fs := flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	return parseFlags(fs, os.Args[1:])
}

func parseFlags(fs *flag.FlagSet, args []string) (*StructuredConfig, error) {
	var (
		serverAddress, grpcServerAddress NetAddress
		databaseDSN, catalogDSN          string
		remoteURL                        string
		jsonConfigPath                   string
		logLevel                         string
		workersMin, workersMax           int
		pullInterval, requestTimeout     time.Duration
	)

	fs.Var(&serverAddress, "a", "Net address host:port")
	fs.Var(&grpcServerAddress, "grpc-address", "Net grpc server address host:port")
	fs.StringVar(&databaseDSN, "d", "", "Database DSN")
	fs.StringVar(&catalogDSN, "catalog", "", "Local catalog SQLite DSN")
	fs.StringVar(&remoteURL, "remote-url", "", "Remote platform base URL")
	fs.StringVar(&jsonConfigPath, "c", "", "JSON config file path")
	fs.StringVar(&jsonConfigPath, "config", "", "JSON config file path (alias)")
	fs.StringVar(&logLevel, "log-level", "", "Log level")
	fs.IntVar(&workersMin, "workers-min", 0, "Minimum number of workers")
	fs.IntVar(&workersMax, "workers-max", 0, "Maximum number of workers")
	fs.DurationVar(&pullInterval, "pull-interval", 0, "Periodic pull interval (e.g., 15m)")
	fs.DurationVar(&requestTimeout, "request-timeout", 0, "Request timeout (e.g., 30s, 1m)")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("error parsing flags: %w", err)
	}

	return &StructuredConfig{
		App: App{
			LogLevel: logLevel,
		},
		Storage: Storage{
			DB:      DB{DSN: databaseDSN},
			Catalog: Catalog{DSN: catalogDSN},
		},
		Server: Server{
			HTTPAddress:    serverAddress.String(),
			GRPCAddress:    grpcServerAddress.String(),
			RequestTimeout: requestTimeout,
		},
		Adapter: Adapter{
			BaseURL: remoteURL,
		},
		Workers: Workers{
			Min:          workersMin,
			Max:          workersMax,
			PullInterval: pullInterval,
		},
		JSONFilePath: jsonConfigPath,
	}, nil
}

// String returns host:port, or "" when nothing is set.
func (a *NetAddress) String() string {
	if a.Host == "" && a.Port == 0 {
		return ""
	}

	return a.Host + ":" + strconv.Itoa(a.Port)
}

// Set parses host:port. The host must be "localhost", empty or an IP address.
func (a *NetAddress) Set(s string) error {
	hostAndPort := strings.Split(s, ":")
	if len(hostAndPort) != 2 {
		return errors.New("need address in a form `host:port`")
	}

	host := hostAndPort[0]
	port, err := strconv.Atoi(hostAndPort[1])
	if err != nil {
		return err
	}

	if port < 1 {
		return errors.New("port number is a positive integer")
	}

	if host != "localhost" && host != "" {
		if net.ParseIP(host) == nil {
			return errors.New("incorrect IP-address provided")
		}
	}

	a.Host = host
	a.Port = port
	return nil
}
