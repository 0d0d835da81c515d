// Package inbox feeds screenshots dropped into a directory to the
// conversation engine as photo events of a single configured user.
package inbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"fireshot/pkg/conversation"

	"github.com/disintegration/imaging"
	"github.com/fsnotify/fsnotify"
)

const (
	debounceTick = 250 * time.Millisecond
	stableAfter  = 300 * time.Millisecond
	retryBusy    = 5 * time.Second
	maxBytes     = 1_000_000
)

// Handler consumes photo events.
type Handler interface {
	Handle(ctx context.Context, ev conversation.Event) (conversation.Result, error)
}

// Renderer receives the engine result of each processed file.
type Renderer func(file string, res conversation.Result)

// Config locates the inbox.
type Config struct {
	Dir          string
	ProcessedDir string
	UserID       int64
	UserName     string
	Workers      int
}

// Inbox scans and watches Dir. Processed files are moved to ProcessedDir
// so each screenshot is handled once. A screenshot arriving while the user
// is still answering a question about a previous one stays in Dir and is
// retried.
type Inbox struct {
	cfg        Config
	handler    Handler
	render     Renderer
	log        *slog.Logger
	retryEvery time.Duration

	mu       sync.Mutex
	deferred map[string]struct{}
}

// New builds an Inbox. A nil renderer discards results, a nil logger uses
// slog.Default.
func New(cfg Config, h Handler, render Renderer, log *slog.Logger) *Inbox {
	if cfg.ProcessedDir == "" {
		cfg.ProcessedDir = filepath.Join(cfg.Dir, "processed")
	}
	cfg.Workers = effectiveWorkers(cfg.Workers)
	if render == nil {
		render = func(string, conversation.Result) {}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Inbox{
		cfg:        cfg,
		handler:    h,
		render:     render,
		log:        log.With(slog.String("inbox", cfg.Dir)),
		retryEvery: retryBusy,
		deferred:   map[string]struct{}{},
	}
}

func effectiveWorkers(w int) int {
	if w <= 0 {
		return runtime.NumCPU()
	}
	return w
}

// Scan processes the images currently in Dir and returns once all are done.
func (in *Inbox) Scan(ctx context.Context) error {
	files, err := listImageFiles(in.cfg.Dir)
	if err != nil {
		return err
	}
	in.log.Info("scanning inbox", slog.Int("files", len(files)), slog.Int("workers", in.cfg.Workers))
	ch := make(chan string)
	go func() {
		defer close(ch)
		for _, f := range files {
			select {
			case ch <- f:
			case <-ctx.Done():
				return
			}
		}
	}()
	in.run(ctx, ch)
	return ctx.Err()
}

// Watch scans Dir, then processes every new image until ctx is cancelled.
func (in *Inbox) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(in.cfg.Dir); err != nil {
		return err
	}
	if err := in.Scan(ctx); err != nil {
		return err
	}
	in.log.Info("watching inbox")

	ch := make(chan string, 256)
	done := make(chan struct{})
	go func() {
		defer close(done)
		in.run(ctx, ch)
	}()
	err = in.debounce(ctx, w, ch)
	close(ch)
	<-done
	return err
}

// debounce forwards created files once they stopped changing for
// stableAfter, and deferred files every retryEvery.
func (in *Inbox) debounce(ctx context.Context, w *fsnotify.Watcher, out chan<- string) error {
	pending := map[string]time.Time{}
	ticker := time.NewTicker(debounceTick)
	defer ticker.Stop()
	retry := time.NewTicker(in.retryEvery)
	defer retry.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-retry.C:
			for _, name := range in.takeDeferred() {
				select {
				case out <- name:
				case <-ctx.Done():
					return nil
				}
			}
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			name := filepath.Base(ev.Name)
			if !isSupportedExt(name) {
				continue
			}
			pending[name] = time.Now()
		case now := <-ticker.C:
			for name, t := range pending {
				if now.Sub(t) <= stableAfter {
					continue
				}
				delete(pending, name)
				select {
				case out <- name:
				case <-ctx.Done():
					return nil
				}
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			in.log.Warn("watch error", slog.Any("err", err))
		}
	}
}

func (in *Inbox) run(ctx context.Context, files <-chan string) {
	var wg sync.WaitGroup
	for i := 0; i < in.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for name := range files {
				if ctx.Err() != nil {
					continue
				}
				in.process(ctx, name)
			}
		}()
	}
	wg.Wait()
}

func (in *Inbox) process(ctx context.Context, name string) {
	path := filepath.Join(in.cfg.Dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			in.log.Warn("read screenshot", slog.String("file", name), slog.Any("err", err))
		}
		return
	}
	res, err := in.handler.Handle(ctx, conversation.Event{
		UserID:   in.cfg.UserID,
		UserName: in.cfg.UserName,
		Kind:     conversation.EventPhoto,
		Photo:    data,
	})
	if err != nil {
		in.log.Error("handle screenshot", slog.String("file", name), slog.Any("err", err))
		return
	}
	if res.Outcome == conversation.OutcomeRejected && res.Reason == conversation.RejectBusy {
		in.log.Info("user busy, screenshot left in inbox", slog.String("file", name))
		in.mu.Lock()
		in.deferred[name] = struct{}{}
		in.mu.Unlock()
		return
	}
	in.log.Info("screenshot handled",
		slog.String("file", name),
		slog.String("outcome", res.Outcome.String()),
		slog.Int("updates", len(res.Updates)))
	in.render(name, res)
	if err := moveToProcessed(path, in.cfg.ProcessedDir, name); err != nil {
		in.log.Warn("move processed screenshot", slog.String("file", name), slog.Any("err", err))
	}
}

// takeDeferred empties the set of files left in the inbox.
func (in *Inbox) takeDeferred() []string {
	in.mu.Lock()
	defer in.mu.Unlock()
	out := make([]string, 0, len(in.deferred))
	for name := range in.deferred {
		out = append(out, name)
	}
	sort.Strings(out)
	in.deferred = map[string]struct{}{}
	return out
}

func listImageFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read inbox: %w", err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !isSupportedExt(e.Name()) {
			continue
		}
		out = append(out, e.Name())
	}
	sort.Strings(out)
	return out, nil
}

func isSupportedExt(name string) bool {
	if strings.HasPrefix(name, ".") || strings.Contains(name, ".ocr.") {
		return false
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png", ".jpg", ".jpeg", ".gif", ".webp":
		return true
	}
	return false
}

// moveToProcessed moves src into dir, downscaling images above maxBytes.
// Undecodable or unsavable images are moved as they are.
func moveToProcessed(src, dir, name string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	dst := filepath.Join(dir, name)
	fi, err := os.Stat(src)
	if err != nil {
		return err
	}
	if fi.Size() <= maxBytes {
		return move(src, dst)
	}
	img, err := imaging.Open(src)
	if err != nil {
		return move(src, dst)
	}
	scale := math.Min(0.95, math.Max(0.1, math.Sqrt(float64(maxBytes)/float64(fi.Size()))))
	w := int(math.Max(1, math.Round(float64(img.Bounds().Dx())*scale)))
	h := int(math.Max(1, math.Round(float64(img.Bounds().Dy())*scale)))
	if err := imaging.Save(imaging.Resize(img, w, h, imaging.Lanczos), dst); err != nil {
		return move(src, dst)
	}
	return os.Remove(src)
}

func move(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
