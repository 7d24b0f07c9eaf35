package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"github.com/lox/snowseason/internal/api"
	"github.com/lox/snowseason/internal/i18n"
	"github.com/lox/snowseason/internal/log"
	"github.com/lox/snowseason/internal/metrics"
	"github.com/lox/snowseason/internal/pipeline"
	"github.com/lox/snowseason/internal/publish"
	"github.com/lox/snowseason/internal/rolling"
	"github.com/lox/snowseason/internal/season"
	"github.com/lox/snowseason/internal/store"
)

type Globals struct {
	DB          string `help:"Path to SQLite database." default:"data/snowseason.db" env:"SNOWSEASON_DB"`
	Timezone    string `help:"Zone calendar dates are interpreted in." default:"Asia/Tokyo" env:"SNOWSEASON_TZ"`
	Lang        string `help:"Comma separated label languages." default:"en" env:"SNOWSEASON_LANG"`
	Debug       bool   `help:"Enable debug logging."`
	MetricsFile string `help:"Write Prometheus metrics to this file on exit." type:"path" env:"SNOWSEASON_METRICS_FILE"`
}

// open prepares the store and the pipeline shared by every command.
func (g *Globals) open(exportDir, citation string) (*store.Store, *pipeline.Pipeline, func(), error) {
	loc, err := time.LoadLocation(g.Timezone)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load timezone %q: %w", g.Timezone, err)
	}
	langs, err := i18n.ParseLangs(g.Lang)
	if err != nil {
		return nil, nil, nil, err
	}

	db, err := store.Open(g.DB)
	if err != nil {
		return nil, nil, nil, err
	}
	st := store.New(db, loc)
	if err := st.Migrate(); err != nil {
		db.Close()
		return nil, nil, nil, fmt.Errorf("migrate: %w", err)
	}
	if err := st.IntegrityCheck(); err != nil {
		db.Close()
		return nil, nil, nil, err
	}

	p, err := pipeline.New(st, pipeline.Config{
		Season:    season.DefaultConfig(),
		Rolling:   rolling.DefaultOptions(),
		ExportDir: exportDir,
		Citation:  citation,
		Langs:     langs,
	})
	if err != nil {
		db.Close()
		return nil, nil, nil, err
	}
	return st, p, func() { db.Close() }, nil
}

type ImportCmd struct {
	Files []string `arg:"" help:"CSV files of daily observations." type:"existingfile"`
}

func (c *ImportCmd) Run(ctx context.Context, g *Globals) error {
	_, p, closeDB, err := g.open("", "")
	if err != nil {
		return err
	}
	defer closeDB()

	sum, err := p.Import(ctx, c.Files...)
	if err != nil {
		return err
	}
	log.Infow("import complete", "files", sum.Files, "rows", sum.Rows, "stored", sum.Stored, "rejected", sum.Rejected)
	return nil
}

type EnrichCmd struct{}

func (c *EnrichCmd) Run(ctx context.Context, g *Globals) error {
	_, p, closeDB, err := g.open("", "")
	if err != nil {
		return err
	}
	defer closeDB()

	n, err := p.Enrich(ctx)
	if err != nil {
		return err
	}
	log.Infof("enrich: updated %d days", n)
	return nil
}

type ProcessCmd struct {
	ExportDir string `help:"Directory for season and daily exports." type:"path" env:"SNOWSEASON_EXPORT_DIR"`
	Citation  string `help:"Citation file bundled into zipped exports." type:"existingfile" env:"SNOWSEASON_CITATION"`
}

func (c *ProcessCmd) Run(ctx context.Context, g *Globals) error {
	_, p, closeDB, err := g.open(c.ExportDir, c.Citation)
	if err != nil {
		return err
	}
	defer closeDB()

	sum, err := p.Process(ctx)
	if err != nil {
		return err
	}
	log.Infow("process complete", "observations", sum.Observations, "seasons", sum.Seasons, "files", sum.Files)
	return nil
}

type RenderCmd struct {
	Out string `help:"Directory for season strip images." default:"out/img" type:"path"`
}

func (c *RenderCmd) Run(ctx context.Context, g *Globals) error {
	_, p, closeDB, err := g.open("", "")
	if err != nil {
		return err
	}
	defer closeDB()

	files, err := p.Render(ctx, c.Out)
	if err != nil {
		return err
	}
	log.Infof("render: wrote %d strips to %s", len(files), c.Out)
	return nil
}

type PublishCmd struct {
	Dir         string        `help:"Local directory to upload." required:"" type:"existingdir"`
	FTPAddr     string        `name:"ftp-addr" help:"FTP server host:port." env:"SNOWSEASON_FTP_ADDR"`
	FTPUser     string        `name:"ftp-user" help:"FTP user." env:"SNOWSEASON_FTP_USER"`
	FTPPassword string        `name:"ftp-password" help:"FTP password." env:"SNOWSEASON_FTP_PASSWORD"`
	RemoteDir   string        `help:"Remote directory, created if missing." env:"SNOWSEASON_FTP_DIR"`
	MaxElapsed  time.Duration `help:"Give up retrying after this long." default:"2m"`
}

func (c *PublishCmd) Run(ctx context.Context, g *Globals) error {
	u := publish.NewUploader(publish.Config{
		Addr:       c.FTPAddr,
		User:       c.FTPUser,
		Password:   c.FTPPassword,
		RemoteDir:  c.RemoteDir,
		MaxElapsed: c.MaxElapsed,
	})
	n, err := u.UploadDir(ctx, c.Dir)
	if err != nil {
		return err
	}
	log.Infof("publish: uploaded %d files to %s", n, c.FTPAddr)
	return nil
}

type ServeCmd struct {
	Addr     string        `help:"HTTP listen address." default:":8080" env:"SNOWSEASON_ADDR"`
	Inbox    string        `help:"Directory polled for new CSV exports." type:"path" env:"SNOWSEASON_INBOX"`
	Interval time.Duration `help:"Inbox poll interval." default:"5m"`
}

func (c *ServeCmd) Run(ctx context.Context, g *Globals) error {
	st, p, closeDB, err := g.open("", "")
	if err != nil {
		return err
	}
	defer closeDB()

	server := api.NewServer(st, p, c.Addr)
	if c.Inbox != "" {
		scheduler := pipeline.NewScheduler(p, c.Inbox, c.Interval)
		scheduler.OnProcessed = func(*pipeline.Summary) { server.Invalidate() }
		go scheduler.Run(ctx)
	} else {
		log.Infof("serve: no inbox configured, polling disabled")
	}
	return server.Run(ctx)
}

type CLI struct {
	Globals

	Import  ImportCmd  `cmd:"" help:"Import daily observation CSV files."`
	Enrich  EnrichCmd  `cmd:"" help:"Recompute rolling temperature statistics."`
	Process ProcessCmd `cmd:"" help:"Enrich, build the season table and export it."`
	Render  RenderCmd  `cmd:"" help:"Render season strip images."`
	Publish PublishCmd `cmd:"" help:"Upload a directory of artifacts over FTP."`
	Serve   ServeCmd   `cmd:"" help:"Serve season records over HTTP."`
}

func main() {
	// A missing .env is fine; flags and the environment still apply.
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("snowseason"),
		kong.Description("Snow season feature extraction."),
		kong.UsageOnError(),
		kong.BindTo(ctx, (*context.Context)(nil)),
	)

	if err := log.Init(cli.Debug); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer log.Sync()

	err := kctx.Run(&cli.Globals)
	if cli.MetricsFile != "" {
		if merr := metrics.WriteTextfile(cli.MetricsFile); merr != nil {
			log.Warnf("metrics: write %s: %v", cli.MetricsFile, merr)
		}
	}
	if err != nil {
		log.Errorf("%s: %v", kctx.Command(), err)
		log.Sync()
		cancel()
		os.Exit(1)
	}
}
