// Command listing-crawl crawls a paginated listing portal and writes the
// normalized listings as a spreadsheet snapshot.
//
//	listing-crawl audithouse
//	listing-crawl lianjia --district haidian --min-build-year 2000
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"github.com/Sternrassler/listing-crawler/pkg/cache"
	"github.com/Sternrassler/listing-crawler/pkg/fetch"
	"github.com/Sternrassler/listing-crawler/pkg/source/audithouse"
	"github.com/Sternrassler/listing-crawler/pkg/source/lianjia"
)

// Globals are the flags shared by every source.
type Globals struct {
	Concurrency  int           `help:"Maximum pages fetched at once (0 uses the source default)." default:"0" env:"CRAWL_CONCURRENCY"`
	Timeout      time.Duration `help:"Per-request timeout." default:"30s" env:"CRAWL_TIMEOUT"`
	MaxAttempts  int           `help:"Attempts per page; above 1 retries network and server errors." default:"1" env:"CRAWL_MAX_ATTEMPTS"`
	RPS          float64       `name:"rps" help:"Static request pacing in requests per second (0 disables)." default:"0" env:"CRAWL_RPS"`
	UserAgent    string        `help:"User-Agent header sent with every request." default:"${user_agent}" env:"CRAWL_USER_AGENT"`
	OutputDir    string        `help:"Directory the spreadsheet is written to." default:"." env:"CRAWL_OUTPUT_DIR" type:"path"`
	LogLevel     string        `help:"Log level." enum:"debug,info,warn,error" default:"info" env:"LOG_LEVEL"`
	LogPretty    bool          `help:"Human-readable console logs instead of JSON." env:"LOG_PRETTY"`
	Progress     string        `help:"Progress display." enum:"bar,log,none" default:"log" env:"CRAWL_PROGRESS"`
	DefectPolicy string        `help:"What a malformed row does to its page." enum:"skip-row,reject-page" default:"skip-row" env:"CRAWL_DEFECT_POLICY"`
	RedisURL     string        `help:"Redis URL enabling conditional page revalidation, e.g. redis://localhost:6379/0." env:"REDIS_URL"`
	CacheTTL     time.Duration `help:"Lifetime of cached pages without an Expires header." default:"${cache_ttl}" env:"CRAWL_CACHE_TTL"`
	MetricsAddr  string        `help:"Serve /metrics and /health on this address during the crawl." env:"METRICS_ADDR"`
}

// CLI is the command line grammar.
type CLI struct {
	Globals

	Audithouse AudithouseCmd `cmd:"" help:"Crawl the Beijing second-hand housing audit list."`
	Lianjia    LianjiaCmd    `cmd:"" help:"Crawl Lianjia second-hand listings of one district."`
}

// AudithouseCmd crawls the audit house list.
type AudithouseCmd struct {
	BaseURL  string `help:"List page URL." default:"${audithouse_url}" env:"AUDITHOUSE_BASE_URL"`
	PageSize int    `help:"Rows requested per page." default:"20" env:"AUDITHOUSE_PAGE_SIZE"`
}

// Run executes the command.
func (c *AudithouseCmd) Run(rt *session) error {
	src, err := audithouse.New(audithouse.Config{BaseURL: c.BaseURL, PageSize: c.PageSize})
	if err != nil {
		return err
	}
	return rt.crawl(src, audithouse.DefaultConcurrency)
}

// LianjiaCmd crawls one Lianjia district.
type LianjiaCmd struct {
	District     string `help:"District URL segment, e.g. haidian or chaoyang." required:"" env:"LIANJIA_DISTRICT"`
	BaseURL      string `help:"Listing root URL." default:"${lianjia_url}" env:"LIANJIA_BASE_URL"`
	Suffix       string `help:"Filter segment appended to every page path." default:"${lianjia_suffix}" env:"LIANJIA_SUFFIX"`
	MinBuildYear int    `help:"Drop listings built before this year (0 disables)." default:"0" env:"LIANJIA_MIN_BUILD_YEAR"`
}

// Run executes the command.
func (c *LianjiaCmd) Run(rt *session) error {
	cfg := lianjia.DefaultConfig(c.District)
	cfg.BaseURL = c.BaseURL
	cfg.Suffix = c.Suffix
	cfg.MinBuildYear = c.MinBuildYear

	if lianjia.DistrictLabel(c.District) == "" {
		rt.logger.Warn().Str("district", c.District).Msg("Unknown district, output label will be empty")
	}

	src, err := lianjia.New(cfg)
	if err != nil {
		return err
	}
	return rt.crawl(src, lianjia.DefaultConcurrency)
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// Exit codes.
const (
	exitOK    = 0
	exitCrawl = 1
	exitUsage = 2
)

// run parses args and executes the selected command.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	var cli CLI
	exited := false
	parser, err := kong.New(&cli,
		kong.Name("listing-crawl"),
		kong.Description("Crawl a paginated listing portal into an .xlsx snapshot."),
		kong.Writers(stdout, stderr),
		kong.Exit(func(int) { exited = true }),
		kong.Vars{
			"user_agent":     fetch.DefaultUserAgent,
			"cache_ttl":      cache.DefaultTTL.String(),
			"audithouse_url": audithouse.DefaultBaseURL,
			"lianjia_url":    lianjia.DefaultBaseURL,
			"lianjia_suffix": lianjia.DefaultSuffix,
		},
	)
	if err != nil {
		fmt.Fprintf(stderr, "listing-crawl: %v\n", err)
		return exitUsage
	}

	kctx, err := parser.Parse(args)
	if exited {
		return exitOK
	}
	if err != nil {
		fmt.Fprintf(stderr, "listing-crawl: %v (see --help)\n", err)
		return exitUsage
	}

	rt := newSession(ctx, &cli.Globals, stdout, stderr)
	if err := kctx.Run(rt); err != nil {
		rt.logger.Error().Err(err).Msg("Crawl failed")
		fmt.Fprintf(stderr, "listing-crawl: %v\n", err)
		return exitCrawl
	}
	return exitOK
}
