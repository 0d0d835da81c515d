package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"fireshot/pkg/conversation"
	"fireshot/pkg/match"
	"fireshot/pkg/ocr"
	"fireshot/pkg/store"
	"fireshot/process/inbox"

	"github.com/disintegration/imaging"
	"github.com/gin-gonic/gin"
	"github.com/google/subcommands"
)

type serveCmd struct {
	addr string
}

func (*serveCmd) Name() string     { return "serve" }
func (*serveCmd) Synopsis() string { return "serve the bot over HTTP" }
func (*serveCmd) Usage() string {
	return `serve [-addr <host:port>]

  Accepts chat events on POST /events and POST /events/photo. Requests carry
  a bearer token issued by the token command.
`
}

func (s *serveCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&s.addr, "addr", "", "listen address, overrides server.addr")
}

func (s *serveCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, log, err := loadConfig()
	if err != nil {
		return fail(err)
	}
	st, err := openStore(cfg.Database, log)
	if err != nil {
		return fail(err)
	}
	out := newOutbox()
	engine, err := newEngine(cfg, st, log, out.push)
	if err != nil {
		return fail(err)
	}

	r := gin.Default()
	newServer(engine, st, out, []byte(cfg.Server.JWTSecret), cfg.Server.RatePerMinute, cfg.Server.RateBurst, log).routes(r)

	addr := cfg.Server.Addr
	if s.addr != "" {
		addr = s.addr
	}
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	log.Info("listening", slog.String("addr", addr), slog.String("store", cfg.Database.Driver))

	select {
	case err := <-errc:
		return fail(err)
	case <-ctx.Done():
	}
	shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdown); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fail(err)
	}
	return subcommands.ExitSuccess
}

type watchCmd struct {
	once bool
}

func (*watchCmd) Name() string     { return "watch" }
func (*watchCmd) Synopsis() string { return "update balances from screenshots dropped in a folder" }
func (*watchCmd) Usage() string {
	return `watch [-once]

  Feeds every image of inbox.dir to the bot as a photo of inbox.user_id and
  prints the replies. Handled images are moved to inbox.processed_dir.
`
}

func (w *watchCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&w.once, "once", false, "process the current images and exit")
}

func (w *watchCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, log, err := loadConfig()
	if err != nil {
		return fail(err)
	}
	if cfg.Inbox.UserID == 0 {
		return fail(errors.New("inbox.user_id is required"))
	}
	st, err := openStore(cfg.Database, log)
	if err != nil {
		return fail(err)
	}
	rd, err := newRenderer(os.Stdout)
	if err != nil {
		return fail(err)
	}
	engine, err := newEngine(cfg, st, log, func(e conversation.Ended) {
		if len(e.Replies) > 0 {
			rd.replies(e.Outcome.String(), e.Replies)
		}
	})
	if err != nil {
		return fail(err)
	}

	// Registers the inbox user on first use, ignored afterwards.
	if _, err := engine.Handle(ctx, conversation.Event{
		UserID:  cfg.Inbox.UserID,
		Kind:    conversation.EventCommand,
		Command: conversation.CommandStart,
	}); err != nil {
		return fail(err)
	}

	in := inbox.New(inbox.Config{
		Dir:          cfg.Inbox.Dir,
		ProcessedDir: cfg.Inbox.ProcessedDir,
		UserID:       cfg.Inbox.UserID,
		Workers:      cfg.Inbox.Workers,
	}, engine, func(file string, res conversation.Result) {
		rd.replies(fmt.Sprintf("%s (%s)", file, res.Outcome), res.Replies)
	}, log)

	if w.once {
		err = in.Scan(ctx)
	} else {
		err = in.Watch(ctx)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return fail(err)
	}
	return subcommands.ExitSuccess
}

type migrateCmd struct{}

func (*migrateCmd) Name() string     { return "migrate" }
func (*migrateCmd) Synopsis() string { return "create or update the postgres tables" }
func (*migrateCmd) Usage() string {
	return `migrate

  Runs the schema migration against database.dsn and exits.
`
}
func (*migrateCmd) SetFlags(*flag.FlagSet) {}

func (*migrateCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, log, err := loadConfig()
	if err != nil {
		return fail(err)
	}
	if cfg.Database.Driver != "postgres" {
		return fail(fmt.Errorf("migrate needs database.driver postgres, got %q", cfg.Database.Driver))
	}
	db, err := openDB(cfg.Database.DSN)
	if err != nil {
		return fail(err)
	}
	if err := store.Migrate(db, log); err != nil {
		return fail(err)
	}
	fmt.Println("migration completed")
	return subcommands.ExitSuccess
}

type tokenCmd struct {
	ttl time.Duration
}

func (*tokenCmd) Name() string     { return "token" }
func (*tokenCmd) Synopsis() string { return "issue an API token for a chat user" }
func (*tokenCmd) Usage() string {
	return `token [-ttl <duration>] <user id>

  Prints a bearer token for the HTTP transport, signed with server.jwt_secret.
`
}

func (t *tokenCmd) SetFlags(f *flag.FlagSet) {
	f.DurationVar(&t.ttl, "ttl", 30*24*time.Hour, "token lifetime")
}

func (t *tokenCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	userID, err := strconv.ParseInt(f.Arg(0), 10, 64)
	if err != nil {
		return fail(fmt.Errorf("invalid user id %q", f.Arg(0)))
	}
	cfg, _, err := loadConfig()
	if err != nil {
		return fail(err)
	}
	tok, err := issueToken([]byte(cfg.Server.JWTSecret), userID, t.ttl, time.Now())
	if err != nil {
		return fail(err)
	}
	fmt.Println(tok)
	return subcommands.ExitSuccess
}

type ocrCmd struct {
	hash    string
	preproc bool
}

func (*ocrCmd) Name() string     { return "ocr" }
func (*ocrCmd) Synopsis() string { return "print balances and perceptual hash of screenshots" }
func (*ocrCmd) Usage() string {
	return `ocr [-hash <algorithm>] <image>...

  Shows what the bot reads from each screenshot: every balance with its
  position, and the hash used to recognize the screen.
`
}

func (o *ocrCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&o.hash, "hash", "", "hash algorithm, overrides screenshots.hash")
	f.BoolVar(&o.preproc, "preproc", false, "also save the binarized image fed to tesseract as <image>.ocr.png")
}

func (o *ocrCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() == 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	cfg, log, err := loadConfig()
	if err != nil {
		return fail(err)
	}
	alg := cfg.Screenshots.Hash
	if o.hash != "" {
		alg = o.hash
	}
	hasher, err := match.NewHasher(alg)
	if err != nil {
		return fail(err)
	}
	rd, err := newRenderer(os.Stdout)
	if err != nil {
		return fail(err)
	}
	ext := newExtractor(cfg.Screenshots, log)

	status := subcommands.ExitSuccess
	for _, name := range f.Args() {
		data, err := os.ReadFile(name)
		if err != nil {
			log.Error("read screenshot", slog.String("file", name), slog.String("error", err.Error()))
			status = subcommands.ExitFailure
			continue
		}
		h, err := hasher.Hash(data)
		if err != nil {
			log.Error("hash screenshot", slog.String("file", name), slog.String("error", err.Error()))
			status = subcommands.ExitFailure
			continue
		}
		balances, err := ext.Extract(ctx, data)
		if err != nil {
			log.Error("extract balances", slog.String("file", name), slog.String("error", err.Error()))
			status = subcommands.ExitFailure
			continue
		}
		rd.markdown(balanceReport(name, match.EncodeHash(h), balances))
		if o.preproc {
			if err := savePreprocessed(name, data, cfg.Screenshots.Scale); err != nil {
				log.Error("save preprocessed image", slog.String("file", name), slog.String("error", err.Error()))
				status = subcommands.ExitFailure
			}
		}
	}
	return status
}

// savePreprocessed writes what tesseract sees for the screenshot at name.
func savePreprocessed(name string, data []byte, scale float64) error {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return err
	}
	out := strings.TrimSuffix(name, filepath.Ext(name)) + ".ocr.png"
	return imaging.Save(ocr.Preprocess(img, scale), out)
}
