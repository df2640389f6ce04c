package container

import (
	"context"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// State is the part of an inspect answer the panel shows.
type State struct {
	Running   bool       `json:"running"`
	Status    string     `json:"status"`
	StartedAt *time.Time `json:"startedAt"`
	Health    string     `json:"health,omitempty"`
	TTY       bool       `json:"-"`
}

type inspectResponse struct {
	State struct {
		Running   bool   `json:"Running"`
		Status    string `json:"Status"`
		StartedAt string `json:"StartedAt"`
		Health    *struct {
			Status string `json:"Status"`
		} `json:"Health"`
	} `json:"State"`
	Config struct {
		Tty bool `json:"Tty"`
	} `json:"Config"`
}

// Inspect returns the container state.
func (c *Client) Inspect(ctx context.Context) (*State, error) {
	var raw inspectResponse
	if err := c.getJSON(ctx, c.endpoint("/json", nil), &raw); err != nil {
		return nil, err
	}

	st := &State{
		Running: raw.State.Running,
		Status:  raw.State.Status,
		TTY:     raw.Config.Tty,
	}
	// A never-started container reports the zero time.
	if t, err := time.Parse(time.RFC3339Nano, raw.State.StartedAt); err == nil && t.Year() > 1 {
		st.StartedAt = &t
	}
	if raw.State.Health != nil {
		st.Health = raw.State.Health.Status
	}
	return st, nil
}

// NotFoundState is reported by the status page when the container is
// missing or the engine is unreachable.
func NotFoundState() *State {
	return &State{Status: "not found"}
}

// Stats is a single resource usage sample.
type Stats struct {
	MemoryUsage   uint64  `json:"memoryUsage"`
	MemoryLimit   uint64  `json:"memoryLimit"`
	MemoryPercent float64 `json:"memoryPercent"`
	CPUPercent    float64 `json:"cpuPercent"`
}

type cpuStats struct {
	CPUUsage struct {
		TotalUsage uint64 `json:"total_usage"`
	} `json:"cpu_usage"`
	SystemUsage uint64 `json:"system_cpu_usage"`
	OnlineCPUs  uint32 `json:"online_cpus"`
}

type statsResponse struct {
	MemoryStats struct {
		Usage uint64 `json:"usage"`
		Limit uint64 `json:"limit"`
	} `json:"memory_stats"`
	CPUStats    cpuStats `json:"cpu_stats"`
	PreCPUStats cpuStats `json:"precpu_stats"`
}

// Stats returns one usage sample without streaming.
func (c *Client) Stats(ctx context.Context) (*Stats, error) {
	var raw statsResponse
	q := url.Values{"stream": {"false"}}
	if err := c.getJSON(ctx, c.endpoint("/stats", q), &raw); err != nil {
		return nil, err
	}
	return computeStats(raw), nil
}

func computeStats(raw statsResponse) *Stats {
	s := &Stats{
		MemoryUsage: raw.MemoryStats.Usage,
		MemoryLimit: raw.MemoryStats.Limit,
	}
	if s.MemoryLimit > 0 {
		s.MemoryPercent = float64(s.MemoryUsage) / float64(s.MemoryLimit) * 100
	}

	cpuDelta := float64(raw.CPUStats.CPUUsage.TotalUsage) - float64(raw.PreCPUStats.CPUUsage.TotalUsage)
	systemDelta := float64(raw.CPUStats.SystemUsage) - float64(raw.PreCPUStats.SystemUsage)
	cpus := float64(raw.CPUStats.OnlineCPUs)
	if cpus == 0 {
		cpus = 1
	}
	if cpuDelta > 0 && systemDelta > 0 {
		s.CPUPercent = cpuDelta / systemDelta * cpus * 100
	}
	return s
}

// LogOptions selects a log range.
type LogOptions struct {
	Follow     bool
	Tail       int // 0 means all
	Timestamps bool
	Since      time.Time
}

// Logs opens the log stream of the container. Unless the container has a TTY
// the stream is multiplexed and must be fed through a dockerlog decoder.
// Followed streams stay open until ctx is done or the body is closed.
func (c *Client) Logs(ctx context.Context, opts LogOptions) (io.ReadCloser, error) {
	q := url.Values{
		"stdout": {"1"},
		"stderr": {"1"},
	}
	if opts.Follow {
		q.Set("follow", "1")
	}
	if opts.Tail > 0 {
		q.Set("tail", strconv.Itoa(opts.Tail))
	} else {
		q.Set("tail", "all")
	}
	if opts.Timestamps {
		q.Set("timestamps", "1")
	}
	if !opts.Since.IsZero() {
		q.Set("since", strconv.FormatInt(opts.Since.Unix(), 10))
	}

	cancel := context.CancelFunc(func() {})
	if !opts.Follow {
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
	}
	resp, err := c.do(ctx, http.MethodGet, c.endpoint("/logs", q))
	if err != nil {
		cancel()
		return nil, err
	}
	return cancelOnClose{ReadCloser: resp.Body, cancel: cancel}, nil
}

// FormatUptime renders the time since startedAt, e.g. "2d 3h 4m". A nil
// start yields "N/A".
func FormatUptime(startedAt *time.Time, now time.Time) string {
	if startedAt == nil {
		return "N/A"
	}
	d := now.Sub(*startedAt)
	if d < 0 {
		d = 0
	}
	seconds := int64(d / time.Second)
	minutes := seconds / 60
	hours := minutes / 60
	days := hours / 24

	switch {
	case days > 0:
		return strconv.FormatInt(days, 10) + "d " + strconv.FormatInt(hours%24, 10) + "h " + strconv.FormatInt(minutes%60, 10) + "m"
	case hours > 0:
		return strconv.FormatInt(hours, 10) + "h " + strconv.FormatInt(minutes%60, 10) + "m"
	case minutes > 0:
		return strconv.FormatInt(minutes, 10) + "m " + strconv.FormatInt(seconds%60, 10) + "s"
	default:
		return strconv.FormatInt(seconds, 10) + "s"
	}
}

var byteUnits = []string{"B", "KB", "MB", "GB", "TB"}

// FormatBytes renders n with a binary unit and at most two decimals.
func FormatBytes(n uint64) string {
	if n == 0 {
		return "0 B"
	}
	i := int(math.Floor(math.Log(float64(n)) / math.Log(1024)))
	if i >= len(byteUnits) {
		i = len(byteUnits) - 1
	}
	v := math.Round(float64(n)/math.Pow(1024, float64(i))*100) / 100
	return strconv.FormatFloat(v, 'f', -1, 64) + " " + byteUnits[i]
}
