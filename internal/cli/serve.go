package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/spf13/cobra"

	"github.com/roach88/wro/internal/model"
	"github.com/roach88/wro/internal/pipeline"
	"github.com/roach88/wro/internal/reqctx"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve [model]",
		Short: "Serve group artifacts over HTTP",
		Long: `Serve the groups of a model at GET /<group>.<css|js>, building
artifacts on request and caching them until a constituent changes.

Query parameters override request options per call:
  minimize=false   skip minimizing processors
  variant=<name>   select an artifact variant

Example:
  wro serve groups.yaml --addr :8080
  wro serve --cache-db .wro/cache.db --skip-missing`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, rootOpts, args)
		},
	}

	addPipelineFlags(cmd)
	cmd.Flags().String("addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().Bool("gzip", true, "gzip responses when the client accepts it")
	cmd.Flags().Duration("max-age", 0, "treat cached artifacts older than this as stale")
	cmd.Flags().Int("max-items", 0, "bound on in-memory cached artifacts")

	return cmd
}

func runServe(cmd *cobra.Command, rootOpts *RootOptions, args []string) error {
	env, err := openEnvironment(cmd, rootOpts, args)
	if err != nil {
		return err
	}
	defer env.Close()

	ctx, stop := commandContext(cmd)
	defer stop()

	handler := NewHandler(env.executor, env.model, env.opts,
		WithGzip(env.cfg.Serve.Gzip),
		WithHandlerLogger(env.logger),
	)
	srv := &http.Server{
		Addr:              env.cfg.Serve.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	env.logger.Info("serving", "addr", env.cfg.Serve.Addr, "groups", env.model.Len())
	fmt.Fprintf(cmd.OutOrStdout(), "Serving %d group(s) on http://%s\n", env.model.Len(), env.cfg.Serve.Addr)

	select {
	case err := <-errCh:
		return WrapExitError(ExitCommandError, "server error", err)
	case <-ctx.Done():
	}

	env.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return WrapExitError(ExitFailure, "shutdown failed", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return WrapExitError(ExitCommandError, "server error", err)
	}
	return nil
}

// Handler serves artifacts at /<group>.<css|js>.
//
// Thread-safety: Handler is safe for concurrent use; concurrent requests
// for the same artifact share one build.
type Handler struct {
	executor *pipeline.Executor
	model    *model.Model
	opts     reqctx.Options
	gzip     bool
	logger   *slog.Logger
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithGzip enables gzip responses for clients that accept them.
func WithGzip(enabled bool) HandlerOption {
	return func(h *Handler) {
		h.gzip = enabled
	}
}

// WithHandlerLogger sets the logger. Default: slog.Default().
func WithHandlerLogger(l *slog.Logger) HandlerOption {
	return func(h *Handler) {
		h.logger = l
	}
}

// NewHandler creates a Handler building the groups of m with opts as the
// base request options.
func NewHandler(exec *pipeline.Executor, m *model.Model, opts reqctx.Options, hopts ...HandlerOption) *Handler {
	h := &Handler{
		executor: exec,
		model:    m,
		opts:     opts,
		logger:   slog.Default(),
	}
	for _, opt := range hopts {
		opt(h)
	}
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	name := strings.TrimPrefix(r.URL.Path, "/")
	t, ok := model.TypeFromURI(name)
	if !ok {
		http.NotFound(w, r)
		return
	}
	groupName := strings.TrimSuffix(name, path.Ext(name))
	g, ok := h.model.Group(groupName)
	if !ok || !g.HasType(t) {
		http.NotFound(w, r)
		return
	}

	opts, err := h.requestOptions(r, t)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	a, err := h.executor.Run(r.Context(), g, opts)
	if err != nil {
		if r.Context().Err() != nil {
			return
		}
		h.logger.Error("build failed", "group", g.Name, "type", t, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	for _, warning := range a.Warnings {
		h.logger.Warn("tolerated failure", "group", a.Group, "request", a.RequestID, "warning", warning.String())
	}

	etag := `"` + a.Key.Hash().Short() + "-" + a.InputHash.Short() + `"`
	header := w.Header()
	header.Set("Content-Type", a.ContentType())
	header.Set("ETag", etag)
	header.Set("Vary", "Accept-Encoding")
	if match := r.Header.Get("If-None-Match"); match != "" && match == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	if !h.gzip || !acceptsGzip(r) {
		header.Set("Content-Length", strconv.Itoa(len(a.Content)))
		if r.Method == http.MethodHead {
			return
		}
		_, _ = w.Write(a.Content)
		return
	}

	header.Set("Content-Encoding", "gzip")
	if r.Method == http.MethodHead {
		return
	}
	gz := gzip.NewWriter(w)
	if _, err := gz.Write(a.Content); err != nil {
		h.logger.Debug("write failed", "group", a.Group, "error", err)
		return
	}
	if err := gz.Close(); err != nil {
		h.logger.Debug("write failed", "group", a.Group, "error", err)
	}
}

// requestOptions derives the options of one request from the base
// options and the query string.
func (h *Handler) requestOptions(r *http.Request, t model.ResourceType) (reqctx.Options, error) {
	opts := h.opts
	opts.Type = t

	q := r.URL.Query()
	if v := q.Get("minimize"); v != "" {
		minimize, err := strconv.ParseBool(v)
		if err != nil {
			return reqctx.Options{}, fmt.Errorf("invalid minimize %q", v)
		}
		opts.Minimize = reqctx.Bool(minimize)
	}
	if q.Has("variant") {
		opts.Variant = q.Get("variant")
	}
	return opts, nil
}

func acceptsGzip(r *http.Request) bool {
	for _, part := range strings.Split(r.Header.Get("Accept-Encoding"), ",") {
		enc, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		if !strings.EqualFold(strings.TrimSpace(enc), "gzip") {
			continue
		}
		if q, ok := strings.CutPrefix(strings.TrimSpace(params), "q="); ok {
			if v, err := strconv.ParseFloat(q, 64); err == nil && v == 0 {
				return false
			}
		}
		return true
	}
	return false
}
