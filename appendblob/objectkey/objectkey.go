package objectkey

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lestrrat-go/strftime"
)

// DefaultKeyFormat ...
const DefaultKeyFormat = "%{path}%{time_slice}-%{index}.log"

// DefaultTimeSliceFormat ...
const DefaultTimeSliceFormat = "%Y%m%d"

const (
	placeholderPath      = "path"
	placeholderTimeSlice = "time_slice"
	placeholderIndex     = "index"
)

// Metadata describes the chunk an object name is rendered for.
type Metadata struct {
	// TimeKey is the start of the chunk's time bucket. Nil renders an empty time slice.
	TimeKey *time.Time
	Tag     string
	ChunkID string
	// Variables holds extra values for the host's own placeholder pass.
	Variables map[string]string
}

// Expander is the host-owned placeholder pass applied after the key format was rendered.
type Expander interface {
	Expand(name string, meta Metadata) string
}

// ExpanderFunc adapts a function to Expander.
type ExpanderFunc func(name string, meta Metadata) string

// Expand ...
func (f ExpanderFunc) Expand(name string, meta Metadata) string {
	return f(name, meta)
}

// Options configures a Template.
type Options struct {
	// KeyFormat may reference %{path}, %{time_slice} and %{index}.
	KeyFormat string
	// Path is a strftime pattern evaluated against the wall clock on every call.
	Path string
	// TimeSliceFormat is the strftime pattern used for the chunk's time key.
	TimeSliceFormat string
	// LocalTime formats both patterns in local time instead of UTC.
	LocalTime bool
	// Now defaults to time.Now.
	Now      func() time.Time
	Expander Expander
}

// Template renders object names from chunk metadata and a rotation index.
type Template struct {
	keyFormat string
	path      *strftime.Strftime
	timeSlice *strftime.Strftime
	localTime bool
	now       func() time.Time
	expander  Expander
}

// New compiles the time patterns of opts.
func New(opts Options) (*Template, error) {
	if opts.KeyFormat == "" {
		opts.KeyFormat = DefaultKeyFormat
	}
	if opts.TimeSliceFormat == "" {
		opts.TimeSliceFormat = DefaultTimeSliceFormat
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	timeSlice, err := strftime.New(opts.TimeSliceFormat)
	if err != nil {
		return nil, fmt.Errorf("invalid time slice format %q: %w", opts.TimeSliceFormat, err)
	}

	var path *strftime.Strftime
	if opts.Path != "" {
		path, err = strftime.New(opts.Path)
		if err != nil {
			return nil, fmt.Errorf("invalid path %q: %w", opts.Path, err)
		}
	}

	return &Template{
		keyFormat: opts.KeyFormat,
		path:      path,
		timeSlice: timeSlice,
		localTime: opts.LocalTime,
		now:       opts.Now,
		expander:  opts.Expander,
	}, nil
}

// Generate returns the object name for meta and the rotation index.
// The path is re-evaluated against the current wall clock, not the chunk's time key.
func (t *Template) Generate(meta Metadata, index int) string {
	values := map[string]string{
		placeholderPath:      t.renderPath(),
		placeholderTimeSlice: t.renderTimeSlice(meta.TimeKey),
		placeholderIndex:     strconv.Itoa(index),
	}

	name := substitute(t.keyFormat, values)
	if t.expander != nil {
		name = t.expander.Expand(name, meta)
	}
	return name
}

// HasIndex reports whether the key format references %{index}.
// Without it the writer cannot rotate away from a sealed object.
func (t *Template) HasIndex() bool {
	return strings.Contains(t.keyFormat, "%{"+placeholderIndex+"}")
}

func (t *Template) renderPath() string {
	if t.path == nil {
		return ""
	}
	return t.path.FormatString(t.inZone(t.now()))
}

func (t *Template) renderTimeSlice(timeKey *time.Time) string {
	if timeKey == nil {
		return ""
	}
	return t.timeSlice.FormatString(t.inZone(*timeKey))
}

func (t *Template) inZone(tm time.Time) time.Time {
	if t.localTime {
		return tm.Local()
	}
	return tm.UTC()
}

// substitute replaces every known %{name} placeholder in format with its value.
// The scan is left to right and never revisits substituted text; unknown
// placeholders and unterminated openings are copied verbatim.
func substitute(format string, values map[string]string) string {
	var b strings.Builder
	b.Grow(len(format))

	rest := format
	for {
		start := strings.Index(rest, "%{")
		if start < 0 {
			b.WriteString(rest)
			break
		}
		end := strings.IndexByte(rest[start+2:], '}')
		if end < 0 {
			b.WriteString(rest)
			break
		}
		end += start + 2

		b.WriteString(rest[:start])
		name := rest[start+2 : end]
		if value, ok := values[name]; ok {
			b.WriteString(value)
		} else {
			b.WriteString(rest[start : end+1])
		}
		rest = rest[end+1:]
	}

	return b.String()
}
