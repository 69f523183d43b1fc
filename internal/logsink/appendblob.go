package logsink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/appendblob"
)

type Config struct {
	AccountName string
	AccountKey  string
	Container   string
	BlobName    string        // e.g. "verifier/prod/logs.jsonl"
	FlushEvery  time.Duration // default 2s
	// ServiceURL overrides the account endpoint (tests, azurite).
	ServiceURL string
}

func (c Config) Enabled() bool {
	return c.AccountName != "" && c.AccountKey != "" && c.Container != ""
}

// ConfigFromEnv builds the sink config from AZURE_STORAGE_* variables.
// Missing credentials leave the sink disabled rather than erroring.
func ConfigFromEnv() Config {
	return Config{
		AccountName: os.Getenv("AZURE_STORAGE_ACCOUNT_NAME"),
		AccountKey:  os.Getenv("AZURE_STORAGE_ACCOUNT_KEY"),
		Container:   os.Getenv("LOGSINK_CONTAINER"),
		BlobName:    os.Getenv("LOGSINK_BLOB_NAME"),
	}
}

// Handler is a slog.Handler that batches records and appends them as JSON
// lines to an Azure append blob.
type Handler struct {
	cfg    Config
	ab     *appendblob.Client
	ch     chan []byte
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	ticker *time.Ticker
}

func New(ctx context.Context, cfg Config) (*Handler, error) {
	if !cfg.Enabled() {
		return nil, errors.New("AccountName, AccountKey, and Container are required")
	}

	if cfg.BlobName == "" {
		host, _ := os.Hostname()
		now := time.Now().UTC()
		cfg.BlobName = FormatDateFolder(now.Year(), int(now.Month()), now.Day()) + "/" + host + ".jsonl"
	}

	if cfg.FlushEvery <= 0 {
		cfg.FlushEvery = 2 * time.Second
	}

	cred, err := azblob.NewSharedKeyCredential(cfg.AccountName, cfg.AccountKey)
	if err != nil {
		return nil, err
	}
	serviceURL := cfg.ServiceURL
	if serviceURL == "" {
		serviceURL = "https://" + cfg.AccountName + ".blob.core.windows.net"
	}
	blobURL := serviceURL + "/" +
		url.PathEscape(cfg.Container) + "/" + cfg.BlobName // BlobName may include slashes; don't path-escape it.

	ab, err := appendblob.NewClientWithSharedKeyCredential(blobURL, cred, nil)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	h := &Handler{
		cfg:    cfg,
		ab:     ab,
		ch:     make(chan []byte, 1024),
		ctx:    ctx,
		cancel: cancel,
		ticker: time.NewTicker(cfg.FlushEvery),
	}
	h.wg.Add(1)
	go h.loop()
	return h, nil
}

// Close stops the flush loop and waits for the final batch to land. The
// channel is never closed: concurrent Handle calls race Close, and a send on
// a closed channel would panic. Cancellation alone stops both sides.
func (h *Handler) Close() error {
	h.cancel()
	h.wg.Wait()
	h.ticker.Stop()
	return nil
}

// slog.Handler

func (h *Handler) Enabled(context.Context, slog.Level) bool { return true } // ignore levels

func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	ev := make(map[string]any, r.NumAttrs()+2)
	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	ev["ts"] = ts.UTC().Format(time.RFC3339Nano)
	ev["msg"] = r.Message

	r.Attrs(func(a slog.Attr) bool {
		a.Value = a.Value.Resolve()
		if a.Value.Kind() == slog.KindGroup {
			m := map[string]any{}
			// only goes one level deep
			for _, aa := range a.Value.Group() {
				aa.Value = aa.Value.Resolve()
				m[aa.Key] = aa.Value.Any()
			}
			ev[a.Key] = m
		} else {
			ev[a.Key] = a.Value.Any()
		}
		return true
	})

	var b bytes.Buffer
	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(ev); err != nil {
		return err
	}

	select {
	case h.ch <- append([]byte{}, b.Bytes()...):
		return nil
	case <-h.ctx.Done():
		return h.ctx.Err()
	}
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &withAttrs{Handler: h, attrs: attrs}
}

func (h *Handler) WithGroup(string) slog.Handler { return h }

// internals

func (h *Handler) loop() {
	defer h.wg.Done()
	var buf []byte
	flush := func() {
		if len(buf) == 0 {
			return
		}
		// h.ctx is already canceled during shutdown; the final batch still
		// has to land, so each flush gets its own deadline.
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_, _ = h.ab.AppendBlock(ctx, readSeekNopCloser{bytes.NewReader(buf)}, nil)
		buf = buf[:0]
	}

	for {
		select {
		case <-h.ctx.Done():
			// drain whatever made it into the channel before the cancel
			for {
				select {
				case line := <-h.ch:
					buf = append(buf, line...)
				default:
					flush()
					return
				}
			}
		case line := <-h.ch:
			buf = append(buf, line...)
		case <-h.ticker.C:
			flush()
		}
	}
}

type withAttrs struct {
	slog.Handler
	attrs []slog.Attr
}

func (w *withAttrs) Handle(ctx context.Context, r slog.Record) error {
	r2 := r
	for _, a := range w.attrs {
		r2.AddAttrs(a)
	}
	return w.Handler.Handle(ctx, r2)
}

type readSeekNopCloser struct{ io.ReadSeeker }

func (r readSeekNopCloser) Close() error { return nil }
