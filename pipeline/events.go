package pipeline

import (
	"encoding/json"
	"fmt"

	"mcpanel/resourcepack"
)

// Wire names of the event types.
const (
	TypeStart        = "start"
	TypeDownloading  = "downloading"
	TypeExtracting   = "extracting"
	TypeItemComplete = "itemComplete"
	TypeItemError    = "itemError"
	TypePackComplete = "packComplete"
	TypePackError    = "packError"
	TypeMerging      = "merging"
	TypeCompressing  = "compressing"
	TypeProcessing   = "processing"
	TypeComplete     = "complete"
	TypeError        = "error"
)

// Event is one progress notification. Each phase has its own struct; the
// wire form carries the discriminator as its first "type" field.
type Event interface {
	EventType() string
}

// Summary identifies an item or pack in a start event.
type Summary struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// StartEvent opens an installation run.
type StartEvent struct {
	Kind       ItemKind  `json:"kind"`
	TotalItems int       `json:"totalItems"`
	Items      []Summary `json:"items"`
}

// DownloadingEvent reports progress of one item download.
type DownloadingEvent struct {
	ItemID     string `json:"itemId"`
	ItemName   string `json:"itemName"`
	ItemIndex  int    `json:"itemIndex"`
	Progress   int    `json:"progress"`
	Downloaded int64  `json:"downloaded,omitempty"`
	Total      int64  `json:"total,omitempty"`
}

// ItemCompleteEvent reports an item saved under Filename.
type ItemCompleteEvent struct {
	ItemID    string `json:"itemId"`
	ItemName  string `json:"itemName"`
	ItemIndex int    `json:"itemIndex"`
	Filename  string `json:"filename"`
}

// ItemErrorEvent reports a failed item; the batch goes on.
type ItemErrorEvent struct {
	ItemID    string `json:"itemId"`
	ItemName  string `json:"itemName"`
	ItemIndex int    `json:"itemIndex"`
	Error     string `json:"error"`
}

// CompleteEvent ends an installation run. Names are in request order.
type CompleteEvent struct {
	Message   string   `json:"message"`
	Installed []string `json:"installed"`
	Failed    []string `json:"failed"`
}

// GenerateStartEvent opens a generation run.
type GenerateStartEvent struct {
	TotalPacks int       `json:"totalPacks"`
	Packs      []Summary `json:"packs"`
}

// PackDownloadingEvent reports progress of one pack download.
type PackDownloadingEvent struct {
	PackID     string `json:"packId"`
	PackName   string `json:"packName"`
	PackIndex  int    `json:"packIndex"`
	Progress   int    `json:"progress"`
	Downloaded int64  `json:"downloaded,omitempty"`
	Total      int64  `json:"total,omitempty"`
}

// ExtractingEvent is sent when a pack starts being read and then every
// ExtractReportInterval entries.
type ExtractingEvent struct {
	PackID         string `json:"packId"`
	PackName       string `json:"packName"`
	PackIndex      int    `json:"packIndex"`
	FilesProcessed int    `json:"filesProcessed,omitempty"`
	TotalFiles     int    `json:"totalFiles,omitempty"`
}

// PackCompleteEvent reports a pack added to the merge.
type PackCompleteEvent struct {
	PackID    string `json:"packId"`
	PackName  string `json:"packName"`
	PackIndex int    `json:"packIndex"`
}

// PackErrorEvent reports a pack left out of the merge.
type PackErrorEvent struct {
	PackID    string `json:"packId"`
	PackName  string `json:"packName"`
	PackIndex int    `json:"packIndex"`
	Error     string `json:"error"`
}

// MergingEvent marks the start of the merge.
type MergingEvent struct {
	Message string `json:"message"`
}

// CompressingEvent marks the start of archive compression.
type CompressingEvent struct {
	Message string `json:"message"`
}

// ProcessingEvent reports a post-build step such as hashing.
type ProcessingEvent struct {
	Message string `json:"message"`
}

// GenerateCompleteEvent ends a generation run. FinalSize is only set when
// several packs were merged.
type GenerateCompleteEvent struct {
	Message   string                 `json:"message"`
	Pack      *resourcepack.Artifact `json:"pack"`
	FinalSize int64                  `json:"finalSize,omitempty"`
}

// ErrorEvent ends any run that could not complete.
type ErrorEvent struct {
	Message string `json:"message"`
}

func (StartEvent) EventType() string { return TypeStart }
func (DownloadingEvent) EventType() string { return TypeDownloading }
func (ItemCompleteEvent) EventType() string { return TypeItemComplete }
func (ItemErrorEvent) EventType() string { return TypeItemError }
func (CompleteEvent) EventType() string { return TypeComplete }
func (GenerateStartEvent) EventType() string { return TypeStart }
func (PackDownloadingEvent) EventType() string { return TypeDownloading }
func (ExtractingEvent) EventType() string { return TypeExtracting }
func (PackCompleteEvent) EventType() string { return TypePackComplete }
func (PackErrorEvent) EventType() string { return TypePackError }
func (MergingEvent) EventType() string { return TypeMerging }
func (CompressingEvent) EventType() string { return TypeCompressing }
func (ProcessingEvent) EventType() string { return TypeProcessing }
func (GenerateCompleteEvent) EventType() string { return TypeComplete }
func (ErrorEvent) EventType() string { return TypeError }

// IsTerminal reports whether e ends a run.
func IsTerminal(e Event) bool {
	t := e.EventType()
	return t == TypeComplete || t == TypeError
}

// Encode renders e as a JSON object whose first member is "type".
func Encode(e Event) ([]byte, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode %s event: %w", e.EventType(), err)
	}
	if len(body) < 2 || body[0] != '{' {
		return nil, fmt.Errorf("encode %s event: not an object", e.EventType())
	}

	typeField, _ := json.Marshal(e.EventType())
	out := make([]byte, 0, len(body)+len(typeField)+9)
	out = append(out, `{"type":`...)
	out = append(out, typeField...)
	if len(body) > 2 {
		out = append(out, ',')
	}
	return append(out, body[1:]...), nil
}
