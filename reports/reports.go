// Package reports renders the activity report PDF and the production
// spreadsheet.
package reports

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/color"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"

	"coffeefarm/utils"
)

// ErrNotReady is returned when an export is requested before Prepare has
// finished. Nothing is queued; the caller retries.
var ErrNotReady = errors.New("As bibliotecas de PDF ainda não foram carregadas. Por favor, tente novamente em alguns segundos.")

// AllPlots labels an export that is not narrowed to one plot.
const AllPlots = "Todos os Talhões"

// logoColor is the emerald used for the placeholder logo and table headers.
var logoColor = color.NRGBA{R: 52, G: 211, B: 153, A: 255}

type Options struct {
	// LogoPath is an image file for the report header; empty uses a
	// placeholder block.
	LogoPath string
	// PublicURL, when set, is encoded in a QR code pointing back at the
	// filtered activity list.
	PublicURL string
	Loc       *time.Location
	Logger    *zap.Logger
}

// Exporter holds the prepared report assets.
type Exporter struct {
	opts   Options
	logger *zap.Logger

	once sync.Once
	done chan struct{}

	mu      sync.RWMutex
	ready   bool
	logoPNG []byte
	err     error
}

func NewExporter(opts Options) *Exporter {
	if opts.Loc == nil {
		opts.Loc = time.Local
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{opts: opts, logger: logger, done: make(chan struct{})}
}

// Prepare loads the assets in the background. Calling it again is a no-op.
// The returned channel is closed once preparation ends.
func (e *Exporter) Prepare(ctx context.Context) <-chan struct{} {
	e.once.Do(func() {
		go func() {
			defer close(e.done)
			logo, err := e.loadLogo(ctx)
			e.mu.Lock()
			defer e.mu.Unlock()
			if err != nil {
				e.err = err
				e.logger.Error("report assets failed to load", zap.Error(err))
				return
			}
			e.logoPNG = logo
			e.ready = true
			e.logger.Debug("report assets ready")
		}()
	})
	return e.done
}

// Wait blocks until preparation ends and returns its error.
func (e *Exporter) Wait(ctx context.Context) error {
	select {
	case <-e.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.err
}

func (e *Exporter) Ready() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ready
}

func (e *Exporter) loadLogo(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	img := imaging.New(100, 50, logoColor)
	if e.opts.LogoPath != "" {
		src, err := imaging.Open(e.opts.LogoPath)
		if err != nil {
			return nil, fmt.Errorf("open logo: %w", err)
		}
		img = imaging.Fit(src, 200, 100, imaging.Lanczos)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode logo: %w", err)
	}
	return buf.Bytes(), nil
}

func (e *Exporter) assets() ([]byte, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.ready {
		return nil, ErrNotReady
	}
	return e.logoPNG, nil
}

// ActivitiesFilename is Relatorio_Atividades_<plot or all>_<dd-mm-yyyy>.pdf.
func ActivitiesFilename(plotName string, now time.Time) string {
	if plotName == "" {
		plotName = AllPlots
	}
	return utils.SanitizeFilename(fmt.Sprintf("Relatorio_Atividades_%s_%s.pdf", plotName, now.Format("02-01-2006")))
}

// ProductionFilename is Producao_<dd-mm-yyyy>.xlsx.
func ProductionFilename(now time.Time) string {
	return "Producao_" + now.Format("02-01-2006") + ".xlsx"
}
