package gateway

import (
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/StefanHeng/test-ECG-Signal-Viewer/annotation"
	"github.com/StefanHeng/test-ECG-Signal-Viewer/comment"
	"github.com/StefanHeng/test-ECG-Signal-Viewer/errors"
	"github.com/StefanHeng/test-ECG-Signal-Viewer/render"
)

// Gesture types
const (
	GestureShape         = "shape"
	GestureWindow        = "window"
	GestureToggleSync    = "toggle_sync"
	GestureAddChannel    = "add_channel"
	GestureRemoveChannel = "remove_channel"
	GestureClear         = "clear"
	GestureHighlightTag  = "highlight_tag"
	GestureSaveComment   = "save_comment"
	GestureRemoveComment = "remove_comment"
	GestureListComments  = "list_comments"
	GestureSnapshot      = "snapshot"
)

// Gesture is one user action reported by the renderer.
type Gesture struct {
	Type string `json:"type"`
	// ID is echoed in the reply for correlation.
	ID      string `json:"id,omitempty"`
	Channel int    `json:"channel,omitempty"`
	// Index names a tag (highlight_tag) or a comment position (remove_comment).
	Index int    `json:"index,omitempty"`
	Text  string `json:"text,omitempty"`
	// Diff is the renderer's relayout payload for shape gestures.
	Diff   json.RawMessage `json:"diff,omitempty"`
	Window *render.Window  `json:"window,omitempty"`
	// Views is the renderer's current state. When absent the session uses the
	// state it last returned.
	Views map[int]render.ChannelView `json:"views,omitempty"`
	Query *CommentQuery              `json:"query,omitempty"`
}

// CommentQuery selects comments for list_comments. Missing bounds are open.
type CommentQuery struct {
	Channels []int  `json:"channels"`
	Start    *int64 `json:"start,omitempty"`
	End      *int64 `json:"end,omitempty"`
	Verbose  bool   `json:"verbose,omitempty"`
}

func (q CommentQuery) query() comment.Query {
	out := comment.Query{Channels: q.Channels, Start: comment.Unbounded, End: comment.Unbounded}
	if q.Start != nil {
		out.Start = *q.Start
	}
	if q.End != nil {
		out.End = *q.End
	}
	return out
}

// BriefEntry is a comment list row without the amplitude fields.
type BriefEntry struct {
	Index int `json:"index"`
	comment.Brief
}

// Reply answers one gesture.
type Reply struct {
	ID      string `json:"id,omitempty"`
	Session string `json:"session"`
	Seq     uint64 `json:"seq"`
	Type    string `json:"type"`
	OK      bool   `json:"ok"`
	// Class is transient, invalid or fatal when OK is false.
	Class  string             `json:"class,omitempty"`
	Error  string             `json:"error,omitempty"`
	Result *annotation.Result `json:"result,omitempty"`
	Change string             `json:"change,omitempty"`
	Mode   string             `json:"mode,omitempty"`

	Comment  *comment.Comment `json:"comment,omitempty"`
	Comments []comment.Entry  `json:"comments,omitempty"`
	Briefs   []BriefEntry     `json:"briefs,omitempty"`
}

// Config holds the websocket transport settings
type Config struct {
	// MaxMessageSize limits an incoming gesture in bytes (default: 1MB)
	MaxMessageSize int64 `json:"max_message_size,omitempty"`

	// ReadTimeout closes connections silent for longer than this; pongs
	// count as activity
	ReadTimeout time.Duration `json:"read_timeout,omitempty"`

	WriteTimeout time.Duration `json:"write_timeout,omitempty"`

	// PingInterval must be shorter than ReadTimeout
	PingInterval time.Duration `json:"ping_interval,omitempty"`

	// GestureRate caps gestures per second on one connection; zero means
	// no limit. GestureBurst gestures may arrive back to back.
	GestureRate  float64 `json:"gesture_rate,omitempty"`
	GestureBurst int     `json:"gesture_burst,omitempty"`
}

// Validate ensures the gateway configuration is valid
func (c *Config) Validate() error {
	if c.MaxMessageSize < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"max_message_size cannot be negative")
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 1024 * 1024
	}
	if c.MaxMessageSize > 100*1024*1024 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"max_message_size cannot exceed 100MB")
	}

	if c.ReadTimeout <= 0 || c.WriteTimeout <= 0 || c.PingInterval <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"timeouts and ping_interval must be positive")
	}
	if c.GestureRate < 0 || c.GestureBurst < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"gesture_rate and gesture_burst cannot be negative")
	}
	if c.GestureRate > 0 && c.GestureBurst == 0 {
		c.GestureBurst = 1
	}
	if c.PingInterval >= c.ReadTimeout {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			fmt.Sprintf("ping_interval %v must be shorter than read_timeout %v", c.PingInterval, c.ReadTimeout))
	}
	return nil
}

// DefaultConfig returns default gateway configuration
func DefaultConfig() Config {
	return Config{
		MaxMessageSize: 1024 * 1024,
		ReadTimeout:    60 * time.Second,
		WriteTimeout:   10 * time.Second,
		PingInterval:   30 * time.Second,
		GestureRate:    100,
		GestureBurst:   20,
	}
}

// limiter returns the per-connection gesture limiter.
func (c Config) limiter() *rate.Limiter {
	if c.GestureRate == 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Limit(c.GestureRate), max(c.GestureBurst, 1))
}
