package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/graphbridge/graphbridge/internal/cache"
	"github.com/graphbridge/graphbridge/internal/eventbus"
	"github.com/graphbridge/graphbridge/internal/metrics"
	"github.com/graphbridge/graphbridge/internal/model"
	"github.com/graphbridge/graphbridge/internal/otel"
	"github.com/graphbridge/graphbridge/internal/pipeline"
	"github.com/graphbridge/graphbridge/internal/registry"
	"github.com/graphbridge/graphbridge/internal/schema"
	"github.com/graphbridge/graphbridge/internal/sdl"
	"github.com/graphbridge/graphbridge/internal/server"
	"github.com/graphbridge/graphbridge/internal/store"
)

const rootUsage = `graphbridge — GraphQL gateway over a resource-oriented REST API

USAGE:
  graphbridge <command> [flags]

COMMANDS:
  serve            Run the HTTP GraphQL gateway in front of the REST API
  render-sdl       Render the API schema fragment as GraphQL SDL
  help             Show help for any command
`

const serveUsage = `serve FLAGS:
  -routes <file>                 Route descriptor JSON file (required)
  -models <file>                 Response model JSON file
  -api.version <token>           Running API version token (default: dev)
  -server.addr <addr>            HTTP listen address (default: :8080)
  -server.pretty                 Pretty-print JSON responses
  -server.timeout <duration>     Per-request timeout, e.g. 10s (default: 10s)
  -server.tenant-header <name>   Header carrying the tenant id (default: X-Tenant-Id)
  -server.max-body <bytes>       Max request body size, 0 = unlimited (default: 1048576)
  -server.cors-origin <origin>   Allowed CORS origin. Repeatable; * allows any
  -upstream.base <url>           Base URL of the REST API (required)
  -upstream.header <Name=Value>  Header set on every forwarded request. Repeatable
  -cache.addr <addr>             Redis address for the shared schema cache.
                                 Empty runs an in-process cache
  -cache.password <pw>           Redis password
  -cache.db <n>                  Redis database number (default: 0)
  -cache.prefix <prefix>         Redis key prefix (default: graphbridge.)
  -db.dsn <dsn>                  Postgres DSN of the attribute metadata store.
                                 Empty disables per-tenant collection fields
  -complexity.max <n>            Max list complexity per field, 0 = unlimited
                                 (default: 250)
  -otel.endpoint <addr>          OTLP collector endpoint
  -otel.service <name>           OpenTelemetry service name (default: graphbridge)
`

const renderSDLUsage = `render-sdl FLAGS:
  -routes <file>        Route descriptor JSON file (required)
  -models <file>        Response model JSON file
  -api.version <token>  API version token stamped on the fragment (default: dev)
  -out <file>           Write SDL to file (default: stdout)
`

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}

func run(args []string) error {
	global := flag.NewFlagSet("graphbridge", flag.ContinueOnError)
	global.SetOutput(new(bytes.Buffer)) // silence automatic output
	if err := global.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, rootUsage)
		return err
	}
	remaining := global.Args()
	if len(remaining) == 0 {
		fmt.Fprint(os.Stderr, rootUsage)
		return fmt.Errorf("missing command")
	}

	cmd := remaining[0]
	cmdArgs := remaining[1:]
	switch cmd {
	case "serve":
		return cmdServe(cmdArgs)
	case "render-sdl":
		return cmdRenderSDL(cmdArgs)
	case "help":
		return cmdHelp(cmdArgs)
	default:
		fmt.Fprint(os.Stderr, rootUsage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func cmdHelp(args []string) error {
	if len(args) == 0 {
		fmt.Print(rootUsage)
		return nil
	}
	switch args[0] {
	case "serve":
		fmt.Print(serveUsage)
	case "render-sdl":
		fmt.Print(renderSDLUsage)
	default:
		return fmt.Errorf("unknown help topic %q", args[0])
	}
	return nil
}

type headerFlag struct {
	pairs [][2]string
}

func (h *headerFlag) String() string { return "" }

func (h *headerFlag) Set(v string) error {
	parts := strings.SplitN(v, "=", 2)
	if len(parts) != 2 {
		return fmt.Errorf("invalid header %q", v)
	}
	name := strings.TrimSpace(parts[0])
	if name == "" {
		return fmt.Errorf("invalid header %q", v)
	}
	h.pairs = append(h.pairs, [2]string{name, parts[1]})
	return nil
}

type stringListFlag []string

func (s *stringListFlag) String() string { return "" }

func (s *stringListFlag) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func cmdServe(args []string) error {
	routesFile := ""
	modelsFile := ""
	apiVersion := "dev"
	addr := ":8080"
	pretty := false
	timeout := 10 * time.Second
	tenantHeader := "X-Tenant-Id"
	maxBody := int64(1 << 20)
	upstreamBase := ""
	cacheAddr := ""
	cachePassword := ""
	cacheDB := 0
	cachePrefix := "graphbridge."
	dbDSN := ""
	maxComplexity := 250
	otelEndpoint := ""
	otelService := "graphbridge"
	var upstreamHeaders headerFlag
	var corsOrigins stringListFlag

	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	fs.StringVar(&routesFile, "routes", routesFile, "Route descriptor JSON file")
	fs.StringVar(&modelsFile, "models", modelsFile, "Response model JSON file")
	fs.StringVar(&apiVersion, "api.version", apiVersion, "Running API version token")
	fs.StringVar(&addr, "server.addr", addr, "HTTP listen address")
	fs.BoolVar(&pretty, "server.pretty", pretty, "Pretty-print JSON responses")
	fs.DurationVar(&timeout, "server.timeout", timeout, "Per-request timeout")
	fs.StringVar(&tenantHeader, "server.tenant-header", tenantHeader, "Header carrying the tenant id")
	fs.Int64Var(&maxBody, "server.max-body", maxBody, "Max request body size")
	fs.Var(&corsOrigins, "server.cors-origin", "Allowed CORS origin")
	fs.StringVar(&upstreamBase, "upstream.base", upstreamBase, "Base URL of the REST API")
	fs.Var(&upstreamHeaders, "upstream.header", "Header set on every forwarded request")
	fs.StringVar(&cacheAddr, "cache.addr", cacheAddr, "Redis address")
	fs.StringVar(&cachePassword, "cache.password", cachePassword, "Redis password")
	fs.IntVar(&cacheDB, "cache.db", cacheDB, "Redis database number")
	fs.StringVar(&cachePrefix, "cache.prefix", cachePrefix, "Redis key prefix")
	fs.StringVar(&dbDSN, "db.dsn", dbDSN, "Postgres DSN of the attribute metadata store")
	fs.IntVar(&maxComplexity, "complexity.max", maxComplexity, "Max list complexity per field")
	fs.StringVar(&otelEndpoint, "otel.endpoint", otelEndpoint, "OTLP collector endpoint")
	fs.StringVar(&otelService, "otel.service", otelService, "OpenTelemetry service name")
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, serveUsage)
		return err
	}
	if routesFile == "" {
		fmt.Fprint(os.Stderr, serveUsage)
		return fmt.Errorf("-routes is required")
	}
	if upstreamBase == "" {
		fmt.Fprint(os.Stderr, serveUsage)
		return fmt.Errorf("-upstream.base is required")
	}

	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	routes, err := model.LoadRoutes(routesFile)
	if err != nil {
		return fmt.Errorf("load routes: %w", err)
	}
	var models []model.Model
	if modelsFile != "" {
		models, err = model.LoadModels(modelsFile)
		if err != nil {
			return fmt.Errorf("load models: %w", err)
		}
	}

	var upOpts []pipeline.UpstreamOption
	for _, pair := range upstreamHeaders.pairs {
		upOpts = append(upOpts, pipeline.WithUpstreamHeader(pair[0], pair[1]))
	}
	dispatcher, err := pipeline.NewUpstream(upstreamBase, upOpts...)
	if err != nil {
		return fmt.Errorf("upstream init: %w", err)
	}

	ctx := context.Background()
	var fragStore cache.Store
	if cacheAddr != "" {
		rds, err := cache.Connect(ctx, cacheAddr, cachePassword, cacheDB, cachePrefix)
		if err != nil {
			return fmt.Errorf("connect cache: %w", err)
		}
		defer func() { _ = rds.Close() }()
		fragStore = rds
	} else {
		fragStore = cache.NewMemory()
	}

	var source func(string) schema.AttributeSource
	if dbDSN != "" {
		pg, err := store.NewPostgres(ctx, dbDSN)
		if err != nil {
			return fmt.Errorf("connect metadata store: %w", err)
		}
		defer pg.Close()
		source = func(tenant string) schema.AttributeSource { return pg.Tenant(tenant) }
	}

	eventbus.Use(eventbus.New())
	shutdown, err := otel.Setup(otelEndpoint, otelService)
	if err != nil {
		return fmt.Errorf("otel setup: %w", err)
	}
	defer func() { _ = shutdown(context.Background()) }()
	mets := metrics.New()
	mets.Subscribe()

	coord := cache.New(cache.Config{
		Store:         fragStore,
		Dispatcher:    dispatcher,
		Routes:        routes,
		Models:        models,
		Source:        source,
		Version:       apiVersion,
		MaxComplexity: maxComplexity,
		Logger:        logger,
	})

	sopts := []server.Option{
		server.WithTenantHeader(tenantHeader),
		server.WithMaxBodyBytes(maxBody),
	}
	if pretty {
		sopts = append(sopts, server.WithPretty())
	}
	if timeout > 0 {
		sopts = append(sopts, server.WithTimeout(timeout))
	}
	if len(corsOrigins) > 0 {
		sopts = append(sopts, server.WithCORS(corsOrigins...))
	}
	h := server.New(coord, logger, sopts...)

	r := chi.NewRouter()
	r.Handle("/graphql", h)
	r.Method(http.MethodGet, "/graphql/schema", server.NewSDL(coord, logger, tenantHeader))
	r.Handle("/metrics", mets.Handler())

	logger.Info("GraphQL gateway listening", zap.String("addr", addr))
	return http.ListenAndServe(addr, r)
}

func cmdRenderSDL(args []string) error {
	routesFile := ""
	modelsFile := ""
	apiVersion := "dev"
	outFile := ""
	fs := flag.NewFlagSet("render-sdl", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	fs.StringVar(&routesFile, "routes", routesFile, "Route descriptor JSON file")
	fs.StringVar(&modelsFile, "models", modelsFile, "Response model JSON file")
	fs.StringVar(&apiVersion, "api.version", apiVersion, "API version token")
	fs.StringVar(&outFile, "out", outFile, "Write SDL to file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, renderSDLUsage)
		return err
	}
	if routesFile == "" {
		fmt.Fprint(os.Stderr, renderSDLUsage)
		return fmt.Errorf("-routes is required")
	}

	routes, err := model.LoadRoutes(routesFile)
	if err != nil {
		return fmt.Errorf("load routes: %w", err)
	}
	var models []model.Model
	if modelsFile != "" {
		models, err = model.LoadModels(modelsFile)
		if err != nil {
			return fmt.Errorf("load models: %w", err)
		}
	}

	log := zap.NewNop()
	reg := registry.New(models, log)
	frag, err := schema.BuildAPI(routes, apiVersion, reg, log)
	if err != nil {
		return fmt.Errorf("build schema: %w", err)
	}
	out, err := sdl.Render(frag, models)
	if err != nil {
		return fmt.Errorf("render sdl: %w", err)
	}
	if outFile == "" {
		fmt.Print(out)
		return nil
	}
	return os.WriteFile(outFile, []byte(out), 0644)
}
