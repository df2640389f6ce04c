package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"mcpanel/download"
	"mcpanel/internal/validation"

	"go.uber.org/zap"
)

// ItemKind selects the target directory of an installation.
type ItemKind string

const (
	KindMod    ItemKind = "mod"
	KindShader ItemKind = "shader"
)

func (k ItemKind) plural() string {
	if k == KindShader {
		return "shader(s)"
	}
	return "mod(s)"
}

// Item is one file to install.
type Item struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DownloadURL string `json:"downloadUrl"`
	Filename    string `json:"filename"`
	Size        int64  `json:"size"`
}

// InstallRequest is a batch of items of one kind.
type InstallRequest struct {
	Kind  ItemKind `json:"kind"`
	Items []Item   `json:"items"`
}

// ParseInstallRequest validates and decodes a request body. Items may be
// listed under "items" or under the kind's own key ("mods", "shaders").
func ParseInstallRequest(kind ItemKind, body []byte) (InstallRequest, error) {
	if err := validation.ValidateJSON(validation.SchemaInstall, body); err != nil {
		return InstallRequest{}, err
	}

	var raw struct {
		Items   []Item `json:"items"`
		Mods    []Item `json:"mods"`
		Shaders []Item `json:"shaders"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return InstallRequest{}, validation.NewValidationError("body", "invalid request body")
	}

	req := InstallRequest{Kind: kind, Items: raw.Items}
	switch kind {
	case KindMod:
		req.Items = append(req.Items, raw.Mods...)
	case KindShader:
		req.Items = append(req.Items, raw.Shaders...)
	}
	return req, nil
}

// Installer downloads batches of mods or shader packs into the server's data
// directory. Items are processed one after another; a failing item never
// aborts the rest of the batch.
type Installer struct {
	dirs    map[ItemKind]string
	fetcher Fetcher
	opts    Options
}

// NewInstaller creates an installer writing each kind into its directory.
func NewInstaller(dirs map[ItemKind]string, fetcher Fetcher, opts Options) *Installer {
	return &Installer{dirs: dirs, fetcher: fetcher, opts: opts}
}

// Stream starts the installation and returns its events. The channel is
// closed after the terminal event, or as soon as ctx is done.
func (i *Installer) Stream(ctx context.Context, req InstallRequest) <-chan Event {
	ch := make(chan Event, eventBuffer)
	em := &emitter{
		ctx:       ctx,
		ch:        ch,
		name:      "install",
		publisher: i.opts.Publisher,
		logger:    i.opts.logger(),
	}

	go func() {
		defer close(ch)
		outcome := i.run(ctx, req, em)
		i.opts.Metrics.PipelineRun("install", outcome)
	}()
	return ch
}

func (i *Installer) run(ctx context.Context, req InstallRequest, em *emitter) string {
	logger := i.opts.logger().With(zap.String("kind", string(req.Kind)))

	if len(req.Items) == 0 {
		em.send(ErrorEvent{Message: fmt.Sprintf("No %s to install", req.Kind.plural())})
		return "error"
	}

	dir, ok := i.dirs[req.Kind]
	if !ok {
		em.send(ErrorEvent{Message: fmt.Sprintf("Unknown item kind %q", req.Kind)})
		return "error"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		logger.Error("Failed to create target directory", zap.String("dir", dir), zap.Error(err))
		em.send(ErrorEvent{Message: fmt.Sprintf("Failed to prepare %s directory", req.Kind)})
		return "error"
	}

	summaries := make([]Summary, len(req.Items))
	for idx, item := range req.Items {
		summaries[idx] = Summary{ID: item.ID, Name: item.Name, Size: item.Size}
	}
	if !em.send(StartEvent{Kind: req.Kind, TotalItems: len(req.Items), Items: summaries}) {
		return "cancelled"
	}

	installed := []string{}
	failed := []string{}
	for idx, item := range req.Items {
		if ctx.Err() != nil {
			return "cancelled"
		}

		if err := i.installItem(ctx, dir, idx, item, em); err != nil {
			logger.Warn("Item install failed", zap.String("item", item.ID), zap.Error(err))
			i.opts.Metrics.PipelineItem("install", "error")
			failed = append(failed, item.Name)
			if !em.send(ItemErrorEvent{ItemID: item.ID, ItemName: item.Name, ItemIndex: idx, Error: itemErrorText(err)}) {
				return "cancelled"
			}
			continue
		}

		i.opts.Metrics.PipelineItem("install", "ok")
		installed = append(installed, item.Name)
		if !em.send(ItemCompleteEvent{ItemID: item.ID, ItemName: item.Name, ItemIndex: idx, Filename: item.Filename}) {
			return "cancelled"
		}
	}

	message := fmt.Sprintf("%d %s installed", len(installed), req.Kind.plural())
	if len(failed) > 0 {
		message += fmt.Sprintf(", %d failed", len(failed))
	}
	logger.Info("Install finished", zap.Int("installed", len(installed)), zap.Int("failed", len(failed)))
	em.send(CompleteEvent{Message: message, Installed: installed, Failed: failed})
	return "complete"
}

func (i *Installer) installItem(ctx context.Context, dir string, idx int, item Item, em *emitter) error {
	if err := validation.ValidateFilename(item.Filename); err != nil {
		return err
	}
	dest, err := validation.ValidateFilePath(dir, item.Filename)
	if err != nil {
		return err
	}

	em.send(DownloadingEvent{ItemID: item.ID, ItemName: item.Name, ItemIndex: idx, Progress: 0, Total: item.Size})

	t := newThrottle()
	task := download.Task{ItemID: item.ID, Name: item.Name, URL: item.DownloadURL, Dest: dest, Size: item.Size}
	n, err := i.fetcher.Fetch(ctx, task, func(downloaded, total int64) {
		if p, ok := t.next(downloaded, total); ok {
			em.send(DownloadingEvent{
				ItemID:     item.ID,
				ItemName:   item.Name,
				ItemIndex:  idx,
				Progress:   p,
				Downloaded: downloaded,
				Total:      total,
			})
		}
	})
	i.opts.Metrics.AddDownloaded(n)
	return err
}

func itemErrorText(err error) string {
	var vErr *validation.ValidationError
	if errors.As(err, &vErr) {
		return vErr.Message
	}
	return failureMessage(err)
}
