// Package web serves the chat widget: an HTML page, a JSON API over the
// per-client conversation controllers, and an SSE stream of their events.
package web

import (
	"context"
	"fmt"
	"html/template"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/quickvocab/internal/models"
)

// HistoryReader loads one history record by session id.
type HistoryReader interface {
	Get(ctx context.Context, id string) (models.HistoryRecord, error)
}

// RouterOpts holds the dependencies of the widget routes.
type RouterOpts struct {
	Hub          *Hub
	History      HistoryReader
	ThinkingText string
}

// StartOpts holds configuration for the widget server.
type StartOpts struct {
	RouterOpts
	Port int
	Out  io.Writer
}

// NewRouter builds the gin engine with all widget routes registered.
func NewRouter(opts RouterOpts) (*gin.Engine, error) {
	if opts.Hub == nil {
		return nil, fmt.Errorf("web: hub is required")
	}
	if opts.History == nil {
		return nil, fmt.Errorf("web: history reader is required")
	}

	router := gin.New()
	router.Use(gin.Recovery())

	tmpl, err := parseTemplates()
	if err != nil {
		return nil, fmt.Errorf("web: %w", err)
	}
	router.SetHTMLTemplate(tmpl)

	registerRoutes(router, opts)
	return router, nil
}

// Start launches the widget HTTP server. It blocks until ctx is cancelled,
// then shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.Port <= 0 {
		opts.Port = 8080
	}

	gin.SetMode(gin.ReleaseMode)
	router, err := NewRouter(opts.RouterOpts)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", opts.Port),
		Handler: router,
	}

	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "Quick Vocab running at http://localhost:%d\n", opts.Port)
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("web: %w", err)
	}
	return nil
}

// parseTemplates loads the embedded HTML templates.
func parseTemplates() (*template.Template, error) {
	tmpl, err := template.ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return tmpl, nil
}
