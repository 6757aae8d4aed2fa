// internal/trigger/params.go
package trigger

import (
	"fmt"
	"math"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// timerToken matches a "<UNIT>:<value>" field such as "S:30" or "MS:500".
var timerToken = regexp.MustCompile(`^([A-Za-z]+)\s*:\s*(\d+)$`)

// units in descending size, used both for parsing and canonical formatting.
var units = []struct {
	name string
	dur  time.Duration
}{
	{"D", 24 * time.Hour},
	{"H", time.Hour},
	{"M", time.Minute},
	{"S", time.Second},
	{"MS", time.Millisecond},
}

const initialToken = "INITIAL"

// Config is the parsed form of a trigger parameter string. It is not
// modified after parsing.
type Config struct {
	// FileName is the watched file's base name.
	FileName string
	// Directories are the candidate directories in priority order.
	Directories []string
	// Interval is the timer interval; zero disables the timer.
	Interval time.Duration
	// FireOnStartup fires the callback once as soon as the watches are set up.
	FireOnStartup bool
}

// ParseParameters parses a parameter string of the form
//
//	<path incl. file name>[, <dir>...][ | <dir>, <dir>...][ | INITIAL][ | <UNIT>:<value>]
//
// Fields are separated by '|' and trimmed. UNIT is one of MS, S, M, H, D.
// Only the first timer field is honored. Directories given after the file
// path, either comma separated or as further fields, are fallbacks.
func ParseParameters(params string) (Config, error) {
	var cfg Config
	timerSeen := false
	pathSeen := false
	seen := make(map[string]bool)

	addDir := func(dir string) {
		dir = strings.TrimSpace(dir)
		if dir == "" || seen[dir] {
			return
		}
		seen[dir] = true
		cfg.Directories = append(cfg.Directories, dir)
	}

	for _, field := range strings.Split(params, "|") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}

		if m := timerToken.FindStringSubmatch(field); m != nil {
			if timerSeen {
				continue
			}
			timerSeen = true
			d, err := parseInterval(m[1], m[2])
			if err != nil {
				return Config{}, err
			}
			cfg.Interval = d
			continue
		}

		if strings.EqualFold(field, initialToken) {
			cfg.FireOnStartup = true
			continue
		}

		segments := strings.Split(field, ",")
		if !pathSeen {
			pathSeen = true
			filePath := strings.TrimSpace(segments[0])
			name := filepath.Base(filePath)
			if filePath == "" || strings.HasSuffix(filePath, string(filepath.Separator)) ||
				name == "." || name == ".." || name == string(filepath.Separator) {
				return Config{}, fmt.Errorf("%w: no file name in %q", ErrConfiguration, filePath)
			}
			cfg.FileName = name
			addDir(filepath.Dir(filePath))
			segments = segments[1:]
		}
		for _, dir := range segments {
			addDir(dir)
		}
	}

	if !pathSeen {
		return Config{}, fmt.Errorf("%w: missing file path in %q", ErrConfiguration, params)
	}
	if len(cfg.Directories) == 0 {
		return Config{}, fmt.Errorf("%w: no candidate directory in %q", ErrConfiguration, params)
	}
	return cfg, nil
}

func parseInterval(unit, value string) (time.Duration, error) {
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad timer value %q: %v", ErrConfiguration, value, err)
	}
	for _, u := range units {
		if !strings.EqualFold(unit, u.name) {
			continue
		}
		if n > math.MaxInt64/int64(u.dur) {
			return 0, fmt.Errorf("%w: timer value %s:%s overflows", ErrConfiguration, unit, value)
		}
		return time.Duration(n) * u.dur, nil
	}
	return 0, fmt.Errorf("%w: unknown time unit %q, allowed are MS=milliseconds, S=seconds, M=minutes, H=hours, D=days",
		ErrConfiguration, unit)
}

// String formats the configuration back into canonical parameter form.
// ParseParameters(cfg.String()) yields an equivalent Config.
func (c Config) String() string {
	var fields []string
	if len(c.Directories) > 0 {
		fields = append(fields, filepath.Join(c.Directories[0], c.FileName))
		if len(c.Directories) > 1 {
			fields = append(fields, strings.Join(c.Directories[1:], ", "))
		}
	} else {
		fields = append(fields, c.FileName)
	}
	if c.FireOnStartup {
		fields = append(fields, initialToken)
	}
	if c.Interval > 0 {
		fields = append(fields, formatInterval(c.Interval))
	}
	return strings.Join(fields, " | ")
}

func formatInterval(d time.Duration) string {
	for _, u := range units {
		if d%u.dur == 0 {
			return fmt.Sprintf("%s:%d", u.name, d/u.dur)
		}
	}
	// Sub-millisecond precision cannot be expressed; round down.
	return fmt.Sprintf("MS:%d", d/time.Millisecond)
}
