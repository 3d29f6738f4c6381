package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ppiankov/pdigest/internal/digest"
	"github.com/ppiankov/pdigest/internal/source"
)

const (
	noticePickRange   = "Pick a date range."
	noticeUnavailable = "No digest available for this range."
	shutdownTimeout   = 10 * time.Second
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the digest as a web page and a JSON endpoint",
	RunE:  serveAction,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default server.addr)")
	rootCmd.AddCommand(serveCmd)
}

// digester is the fail-soft digest interface the web layer consumes.
type digester interface {
	Window(since time.Time, until *time.Time) (source.Window, error)
	Digest(ctx context.Context, since time.Time, until *time.Time) ([]digest.Entry, bool)
}

type server struct {
	digests digester
	group   string
	loc     *time.Location
	log     logrus.FieldLogger
	now     func() time.Time
}

func serveAction(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log := logrus.StandardLogger()
	p, err := newPipeline(commandContext(cmd), cfg, log)
	if err != nil {
		return err
	}
	defer p.Close()

	addr := serveAddr
	if addr == "" {
		addr = cfg.Server.Addr
	}

	s := &server{
		digests: p.builder,
		group:   cfg.Graph.GroupID,
		loc:     cfg.Location(),
		log:     log,
		now:     time.Now,
	}
	handler := cors.New(cors.Options{
		AllowedOrigins: cfg.Server.CORSOrigins,
		AllowedMethods: []string{http.MethodGet},
	}).Handler(s.routes())

	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", addr).Info("serving digest")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handlePage)
	mux.HandleFunc("GET /digest.json", s.handleJSON)
	return mux
}

// handlePage renders the HTML digest. Missing or invalid dates render the
// empty form rather than an error page.
func (s *server) handlePage(w http.ResponseWriter, r *http.Request) {
	input, _ := s.resolve(r)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := digest.NewHTML(true).Format(w, input); err != nil {
		s.log.WithError(err).Error("render page")
	}
}

func (s *server) handleJSON(w http.ResponseWriter, r *http.Request) {
	input, status := s.resolve(r)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := digest.NewJSON().Format(w, input); err != nil {
		s.log.WithError(err).Error("render json")
	}
}

// resolve turns query parameters into formatter input and the HTTP status
// the JSON endpoint reports.
func (s *server) resolve(r *http.Request) (digest.DigestInput, int) {
	input := digest.DigestInput{Group: s.group, GeneratedAt: s.now()}

	q := r.URL.Query()
	since, err := parseDate(q.Get("since"), s.loc)
	if err != nil {
		input.Notice = noticePickRange
		return input, http.StatusBadRequest
	}
	var until *time.Time
	if raw := q.Get("until"); raw != "" {
		u, err := parseDate(raw, s.loc)
		if err != nil {
			input.Notice = noticePickRange
			return input, http.StatusBadRequest
		}
		until = &u
	}

	win, err := s.digests.Window(since, until)
	if err != nil {
		input.Notice = noticePickRange
		return input, http.StatusBadRequest
	}
	input.Window = win

	entries, ok := s.digests.Digest(r.Context(), since, until)
	if !ok {
		input.Notice = noticeUnavailable
		return input, http.StatusBadGateway
	}
	input.Entries = entries
	return input, http.StatusOK
}
