package pipeline

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"mcpanel/download"
	"mcpanel/internal/validation"
	"mcpanel/properties"
	"mcpanel/resourcepack"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ExtractReportInterval is how many archive entries pass between extracting
// events.
const ExtractReportInterval = 50

// ServePath is the URL path of the generated pack.
const ServePath = "/api/resourcepacks/serve/" + resourcepack.GeneratedFilename

// ErrGenerationInProgress is reported when a second generation is requested
// while one is running.
var ErrGenerationInProgress = errors.New("generation already in progress")

// SelectionStore is the part of resourcepack.Store the generator needs.
type SelectionStore interface {
	Get(ctx context.Context) (*resourcepack.Selection, error)
	Commit(ctx context.Context, fn resourcepack.CommitFunc) (*resourcepack.Artifact, error)
}

// Mirror receives a copy of each committed artifact.
type Mirror interface {
	Upload(ctx context.Context, key, path string) error
}

// GeneratorConfig locates the files a generation reads and writes.
type GeneratorConfig struct {
	PacksDir       string // <data>/resourcepacks, holds the output
	CustomDir      string // uploaded packs
	PropertiesPath string
	PublicURL      string // prefix for the URL written to server.properties
}

// Generator builds the server resource pack from the current selection and
// points server.properties at it. Only one generation runs at a time.
type Generator struct {
	cfg     GeneratorConfig
	store   SelectionStore
	fetcher Fetcher
	mirror  Mirror
	opts    Options
	mu      sync.Mutex
	now     func() time.Time
}

// NewGenerator creates a generator. mirror may be nil.
func NewGenerator(cfg GeneratorConfig, store SelectionStore, fetcher Fetcher, mirror Mirror, opts Options) *Generator {
	return &Generator{
		cfg:     cfg,
		store:   store,
		fetcher: fetcher,
		mirror:  mirror,
		opts:    opts,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// PackURL is the URL advertised to game clients.
func (g *Generator) PackURL() string {
	return strings.TrimRight(g.cfg.PublicURL, "/") + ServePath
}

// Stream starts a generation and returns its events. The channel is closed
// after the terminal event, or as soon as ctx is done.
func (g *Generator) Stream(ctx context.Context) <-chan Event {
	ch := make(chan Event, eventBuffer)
	em := &emitter{
		ctx:       ctx,
		ch:        ch,
		name:      "generate",
		publisher: g.opts.Publisher,
		logger:    g.opts.logger(),
	}

	go func() {
		defer close(ch)
		if !g.mu.TryLock() {
			em.send(ErrorEvent{Message: ErrGenerationInProgress.Error()})
			g.opts.Metrics.PipelineRun("generate", "busy")
			return
		}
		defer g.mu.Unlock()

		outcome := g.run(ctx, em)
		g.opts.Metrics.PipelineRun("generate", outcome)
	}()
	return ch
}

func (g *Generator) run(ctx context.Context, em *emitter) string {
	logger := g.opts.logger()

	sel, err := g.store.Get(ctx)
	if err != nil {
		logger.Error("Failed to read selection", zap.Error(err))
		em.send(ErrorEvent{Message: "Failed to read resource pack selection"})
		return "error"
	}
	if len(sel.Packs) == 0 {
		em.send(ErrorEvent{Message: "No resource packs selected"})
		return "error"
	}

	if err := os.MkdirAll(g.cfg.PacksDir, 0o755); err != nil {
		logger.Error("Failed to create resource pack directory", zap.Error(err))
		em.send(ErrorEvent{Message: "Failed to prepare resource pack directory"})
		return "error"
	}

	summaries := make([]Summary, len(sel.Packs))
	for i, p := range sel.Packs {
		summaries[i] = Summary{ID: p.ID, Name: p.Name, Size: p.Size}
	}
	if !em.send(GenerateStartEvent{TotalPacks: len(sel.Packs), Packs: summaries}) {
		return "cancelled"
	}

	var (
		output    string
		finalSize int64
		message   string
	)
	if len(sel.Packs) == 1 {
		output, err = g.single(ctx, sel.Packs[0], em)
		message = "Resource pack generated successfully"
	} else {
		var merged int
		output, merged, err = g.merge(ctx, sel.Packs, em)
		message = fmt.Sprintf("%d packs merged successfully", merged)
	}
	if err != nil {
		if ctx.Err() != nil {
			return "cancelled"
		}
		logger.Error("Generation failed", zap.Error(err))
		em.send(ErrorEvent{Message: err.Error()})
		return "error"
	}
	defer os.Remove(output)

	em.send(ProcessingEvent{Message: "Computing SHA-1"})
	sum, size, err := hashFile(output)
	if err != nil {
		logger.Error("Failed to hash generated pack", zap.Error(err))
		em.send(ErrorEvent{Message: "Failed to hash generated pack"})
		return "error"
	}
	if len(sel.Packs) > 1 {
		finalSize = size
	}

	em.send(ProcessingEvent{Message: "Updating server.properties"})
	artifact, err := g.commit(ctx, output, sum, size)
	if err != nil {
		logger.Error("Failed to commit generated pack", zap.Error(err))
		em.send(ErrorEvent{Message: "Failed to update server configuration"})
		return "error"
	}

	logger.Info("Resource pack generated",
		zap.String("sha1", artifact.SHA1),
		zap.Int64("size", size),
		zap.Int("packs", len(sel.Packs)),
	)
	g.mirrorArtifact()

	em.send(GenerateCompleteEvent{Message: message, Pack: artifact, FinalSize: finalSize})
	return "complete"
}

// task maps a selected pack to its source: uploaded packs are copied from
// the custom directory, everything else is fetched over HTTP.
func (g *Generator) task(pack resourcepack.Pack, dest string) (download.Task, error) {
	task := download.Task{ItemID: pack.ID, Name: pack.Name, URL: pack.DownloadURL, Dest: dest, Size: pack.Size}
	if pack.Custom {
		local, err := validation.ValidateFilePath(g.cfg.CustomDir, pack.Filename)
		if err != nil {
			return task, err
		}
		task.LocalPath = local
		return task, nil
	}
	if !strings.HasPrefix(pack.DownloadURL, "http://") && !strings.HasPrefix(pack.DownloadURL, "https://") {
		return task, fmt.Errorf("unsupported download URL for %s", pack.Name)
	}
	return task, nil
}

func (g *Generator) fetchPack(ctx context.Context, idx int, pack resourcepack.Pack, dest string, em *emitter) error {
	task, err := g.task(pack, dest)
	if err != nil {
		return err
	}

	em.send(PackDownloadingEvent{PackID: pack.ID, PackName: pack.Name, PackIndex: idx, Progress: 0, Total: pack.Size})
	t := newThrottle()
	n, err := g.fetcher.Fetch(ctx, task, func(downloaded, total int64) {
		if p, ok := t.next(downloaded, total); ok {
			em.send(PackDownloadingEvent{
				PackID:     pack.ID,
				PackName:   pack.Name,
				PackIndex:  idx,
				Progress:   p,
				Downloaded: downloaded,
				Total:      total,
			})
		}
	})
	g.opts.Metrics.AddDownloaded(n)
	return err
}

func (g *Generator) tempPath(pack resourcepack.Pack) string {
	name := "temp_" + pack.ID + ".zip"
	if validation.ValidateFilename(name) != nil {
		name = "temp_" + uuid.New().String() + ".zip"
	}
	return filepath.Join(g.cfg.PacksDir, name)
}

// single downloads the only selected pack; its bytes are used verbatim.
func (g *Generator) single(ctx context.Context, pack resourcepack.Pack, em *emitter) (string, error) {
	dest := g.tempPath(pack)
	if err := g.fetchPack(ctx, 0, pack, dest, em); err != nil {
		os.Remove(dest)
		g.opts.Metrics.PipelineItem("generate", "error")
		return "", fmt.Errorf("%s: %s", pack.Name, packErrorText(err))
	}
	g.opts.Metrics.PipelineItem("generate", "ok")
	return dest, nil
}

// merge downloads and merges every pack in selection order. Packs that fail
// are reported and skipped.
func (g *Generator) merge(ctx context.Context, packs []resourcepack.Pack, em *emitter) (string, int, error) {
	merger := resourcepack.NewMerger()

	for idx, pack := range packs {
		if ctx.Err() != nil {
			return "", 0, ctx.Err()
		}

		err := g.mergePack(ctx, merger, idx, pack, em)
		if err != nil {
			g.opts.Metrics.PipelineItem("generate", "error")
			g.opts.logger().Warn("Pack skipped", zap.String("pack", pack.ID), zap.Error(err))
			em.send(PackErrorEvent{PackID: pack.ID, PackName: pack.Name, PackIndex: idx, Error: packErrorText(err)})
			continue
		}
		g.opts.Metrics.PipelineItem("generate", "ok")
		em.send(PackCompleteEvent{PackID: pack.ID, PackName: pack.Name, PackIndex: idx})
	}

	if ctx.Err() != nil {
		return "", 0, ctx.Err()
	}
	// With every pack skipped the output still carries synthesised metadata.
	em.send(MergingEvent{Message: "Creating merged pack"})
	em.send(CompressingEvent{Message: "Compressing final pack"})

	out, err := os.CreateTemp(g.cfg.PacksDir, resourcepack.GeneratedFilename+".tmp-*")
	if err != nil {
		g.opts.logger().Error("Failed to create output file", zap.Error(err))
		return "", 0, errors.New("Failed to write merged pack")
	}
	if _, err := merger.Write(out); err != nil {
		out.Close()
		os.Remove(out.Name())
		g.opts.logger().Error("Failed to write merged pack", zap.Error(err))
		return "", 0, errors.New("Failed to write merged pack")
	}
	if err := out.Sync(); err != nil {
		out.Close()
		os.Remove(out.Name())
		return "", 0, errors.New("Failed to write merged pack")
	}
	if err := out.Close(); err != nil {
		os.Remove(out.Name())
		return "", 0, errors.New("Failed to write merged pack")
	}
	return out.Name(), len(merger.Sources()), nil
}

func (g *Generator) mergePack(ctx context.Context, merger *resourcepack.Merger, idx int, pack resourcepack.Pack, em *emitter) error {
	temp := g.tempPath(pack)
	defer os.Remove(temp)

	if err := g.fetchPack(ctx, idx, pack, temp, em); err != nil {
		return err
	}

	em.send(ExtractingEvent{PackID: pack.ID, PackName: pack.Name, PackIndex: idx})
	return merger.AddFile(pack.Name, temp, func(processed, total int) {
		if processed%ExtractReportInterval == 0 {
			em.send(ExtractingEvent{
				PackID:         pack.ID,
				PackName:       pack.Name,
				PackIndex:      idx,
				FilesProcessed: processed,
				TotalFiles:     total,
			})
		}
	})
}

func packErrorText(err error) string {
	var archiveErr *resourcepack.ArchiveError
	if errors.As(err, &archiveErr) {
		return "archive is corrupt or unreadable"
	}
	var vErr *validation.ValidationError
	if errors.As(err, &vErr) {
		return vErr.Message
	}
	if errors.Is(err, download.ErrDownloadFailed) {
		return failureMessage(err)
	}
	return err.Error()
}

// commit publishes output as the current artifact. The renames and the
// server.properties rewrite run inside the selection transaction; on failure
// the previous pack file and configuration are restored and nothing is
// recorded.
func (g *Generator) commit(ctx context.Context, output, sum string, size int64) (*resourcepack.Artifact, error) {
	doc, err := properties.Load(g.cfg.PropertiesPath)
	if err != nil {
		return nil, err
	}
	url := g.PackURL()
	properties.ApplyResourcePack(doc, url, sum)
	content := doc.Bytes()

	final := filepath.Join(g.cfg.PacksDir, resourcepack.GeneratedFilename)
	return g.store.Commit(ctx, func(*resourcepack.Artifact) (*resourcepack.Artifact, error) {
		backup := final + ".prev"
		hadPrevious := true
		if err := os.Rename(final, backup); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("back up previous pack: %w", err)
			}
			hadPrevious = false
		}
		restore := func() {
			if hadPrevious {
				os.Rename(backup, final)
			} else {
				os.Remove(final)
			}
		}

		if err := os.Rename(output, final); err != nil {
			restore()
			return nil, fmt.Errorf("install generated pack: %w", err)
		}
		if err := properties.WriteFile(g.cfg.PropertiesPath, content); err != nil {
			restore()
			return nil, err
		}
		if hadPrevious {
			os.Remove(backup)
		}

		return &resourcepack.Artifact{
			Filename:    resourcepack.GeneratedFilename,
			SHA1:        sum,
			GeneratedAt: g.now(),
			URL:         url,
			Size:        size,
		}, nil
	})
}

// mirrorArtifact uploads the committed pack in the background. Failures are
// logged only.
func (g *Generator) mirrorArtifact() {
	if g.mirror == nil {
		return
	}
	path := filepath.Join(g.cfg.PacksDir, resourcepack.GeneratedFilename)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if err := g.mirror.Upload(ctx, resourcepack.GeneratedFilename, path); err != nil {
			g.opts.logger().Warn("Mirror upload failed", zap.Error(err))
		}
	}()
}

func hashFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	h := sha1.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}
