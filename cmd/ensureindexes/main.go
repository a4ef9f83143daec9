/*
Ensureindexes loads a YAML schema and creates every index it declares.

Usage:

	ensureindexes [flags]

Settings not given as flags are read from the environment, after loading the optional .env file.

The flags are:

	-s, --schema PATH
		Schema file to load (required).
	-d, --driver NAME
		Store to create indexes in: "mongodb" (default) or "dynamodb".
	--uri URI
		MongoDB connection string. Default: $MONGODB_URI.
	--database NAME
		MongoDB database. Default: $MONGODB_DATABASE.
	--table NAME
		DynamoDB table. Default: $AWS_DDB_TABLE.
	--region REGION
		AWS region. Default: $AWS_REGION.
	--endpoint URL
		DynamoDB endpoint override, e.g. DynamoDB Local. Default: $AWS_DDB_ENDPOINT.
	--env-file PATH
		Environment file to load. Default: .env.
	-n, --dry-run
		Print the declared indexes without connecting.
	-v, --verbose INT
		Log verbosity.
	--version
		Print version information and exit.
*/
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/go-logr/logr"
	"github.com/go-logr/stdr"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/suparena/docmapper"
	"github.com/suparena/docmapper/datastore"
	"github.com/suparena/docmapper/datastore/ddb"
	"github.com/suparena/docmapper/datastore/mongodb"
	"github.com/suparena/docmapper/processor"
	"github.com/suparena/docmapper/registry"
)

const (
	exitSuccess   = 0
	exitError     = 1
	exitUsage     = 2
	exitInterrupt = 3
)

var (
	flagSchema   = pflag.StringP("schema", "s", "", "Schema file to load")
	flagDriver   = pflag.StringP("driver", "d", "mongodb", `Store driver, "mongodb" or "dynamodb"`)
	flagURI      = pflag.String("uri", "", "MongoDB connection string")
	flagDatabase = pflag.String("database", "", "MongoDB database")
	flagTable    = pflag.String("table", "", "DynamoDB table")
	flagRegion   = pflag.String("region", "", "AWS region")
	flagEndpoint = pflag.String("endpoint", "", "DynamoDB endpoint override")
	flagEnvFile  = pflag.String("env-file", ".env", "Environment file to load")
	flagDryRun   = pflag.BoolP("dry-run", "n", false, "Print the declared indexes without connecting")
	flagVerbose  = pflag.IntP("verbose", "v", 0, "Log verbosity")
	flagVersion  = pflag.Bool("version", false, "Print version information and exit")
)

func main() {
	pflag.Parse()
	os.Exit(run())
}

func run() int {
	if *flagVersion {
		fmt.Println(docmapper.GetVersionInfo())
		return exitSuccess
	}
	if *flagSchema == "" {
		fmt.Fprintln(os.Stderr, "ERROR: --schema is required")
		pflag.Usage()
		return exitUsage
	}

	stdr.SetVerbosity(*flagVerbose)
	logger := stdr.New(log.New(os.Stderr, "", log.LstdFlags)).WithName("ensureindexes")

	if err := godotenv.Load(*flagEnvFile); err != nil {
		logger.V(1).Info("no environment file loaded", "path", *flagEnvFile)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	reg := registry.NewRegistry(registry.WithLogr(logger.WithName("registry")))
	schema, err := processor.LoadFile(*flagSchema, reg)
	if err != nil {
		logger.Error(err, "failed to load schema")
		return exitError
	}
	reg.Freeze()
	logger.Info("schema loaded", "types", len(schema.Types), "indexes", reg.Indexes().Len())

	if *flagDryRun {
		for _, decl := range reg.Indexes().Declarations() {
			fmt.Printf("%s\t%s\t%v\n", decl.Type.Collection(), decl.Keys.Name(), decl.Options)
		}
		return exitSuccess
	}

	driver, closeDriver, err := connect(ctx, logger)
	if err != nil {
		logger.Error(err, "failed to connect", "driver", *flagDriver)
		return exitError
	}
	defer closeDriver()

	session, err := docmapper.NewSession(driver, reg, docmapper.WithLogr(logger))
	if err != nil {
		logger.Error(err, "failed to create session")
		return exitError
	}
	if err := session.EnsureIndexes(ctx); err != nil {
		logger.Error(err, "index creation failed")
		if ctx.Err() != nil {
			return exitInterrupt
		}
		return exitError
	}
	logger.Info("indexes ensured", "count", reg.Indexes().Len())
	return exitSuccess
}

func connect(ctx context.Context, logger logr.Logger) (datastore.Driver, func(), error) {
	switch *flagDriver {
	case "mongodb", "mongo":
		cfg := mongodb.DefaultConfig()
		cfg.URI = firstNonEmpty(*flagURI, os.Getenv("MONGODB_URI"), cfg.URI)
		cfg.Database = firstNonEmpty(*flagDatabase, os.Getenv("MONGODB_DATABASE"), cfg.Database)

		d, err := mongodb.Connect(ctx, cfg, mongodb.WithLogr(logger.WithName("mongodb")))
		if err != nil {
			return nil, nil, err
		}
		return d, func() { _ = d.Close(context.Background()) }, nil

	case "dynamodb", "ddb":
		cfg := ddb.DefaultConfig()
		cfg.Table = firstNonEmpty(*flagTable, os.Getenv("AWS_DDB_TABLE"), cfg.Table)
		cfg.Region = firstNonEmpty(*flagRegion, os.Getenv("AWS_REGION"))
		cfg.Endpoint = firstNonEmpty(*flagEndpoint, os.Getenv("AWS_DDB_ENDPOINT"))
		cfg.AccessKey = os.Getenv("AWS_ACCESS_KEY")
		cfg.SecretKey = os.Getenv("AWS_SECRET_KEY")

		d, err := ddb.Connect(ctx, cfg, ddb.WithLogr(logger.WithName("dynamodb")))
		if err != nil {
			return nil, nil, err
		}
		return d, func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown driver %q", *flagDriver)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
