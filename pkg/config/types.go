package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultBars is used when a timeframe is given without a bar count
const DefaultBars = 500

// Timeframe is one kline interval and how many bars to pull for it
type Timeframe struct {
	Interval string `yaml:"interval"`
	Bars     int    `yaml:"bars"`
}

// Timeframes keeps the configured order, which is the output order of a scan.
// The env form is "15m:500,1h:500"; a missing count means DefaultBars.
type Timeframes []Timeframe

// EnvDecode implements envconfig.Decoder
func (t *Timeframes) EnvDecode(val string) error {
	parsed, err := ParseTimeframes(val)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ParseTimeframes parses the env form of Timeframes
func ParseTimeframes(val string) (Timeframes, error) {
	var out Timeframes
	seen := make(map[string]bool)

	for _, part := range strings.Split(val, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		tf := Timeframe{Interval: part, Bars: DefaultBars}
		if idx := strings.Index(part, ":"); idx >= 0 {
			tf.Interval = strings.TrimSpace(part[:idx])
			bars, err := strconv.Atoi(strings.TrimSpace(part[idx+1:]))
			if err != nil {
				return nil, fmt.Errorf("invalid bar count in %q: %w", part, err)
			}
			tf.Bars = bars
		}

		if tf.Interval == "" {
			return nil, fmt.Errorf("empty interval in %q", part)
		}
		if seen[tf.Interval] {
			return nil, fmt.Errorf("duplicate timeframe %s", tf.Interval)
		}
		seen[tf.Interval] = true
		out = append(out, tf)
	}

	return out, nil
}

// Intervals returns the interval names in order
func (t Timeframes) Intervals() []string {
	out := make([]string, len(t))
	for i, tf := range t {
		out[i] = tf.Interval
	}
	return out
}

func (t Timeframes) String() string {
	parts := make([]string, len(t))
	for i, tf := range t {
		parts[i] = fmt.Sprintf("%s:%d", tf.Interval, tf.Bars)
	}
	return strings.Join(parts, ",")
}

// UnmarshalYAML fills missing bar counts with DefaultBars
func (t *Timeframes) UnmarshalYAML(value *yaml.Node) error {
	var raw []Timeframe
	if err := value.Decode(&raw); err != nil {
		return err
	}

	out := make(Timeframes, 0, len(raw))
	seen := make(map[string]bool)
	for _, tf := range raw {
		tf.Interval = strings.TrimSpace(tf.Interval)
		if tf.Interval == "" {
			return fmt.Errorf("timeframe without interval")
		}
		if seen[tf.Interval] {
			return fmt.Errorf("duplicate timeframe %s", tf.Interval)
		}
		seen[tf.Interval] = true
		if tf.Bars == 0 {
			tf.Bars = DefaultBars
		}
		out = append(out, tf)
	}

	*t = out
	return nil
}

// Seconds is a duration that also accepts a bare integer number of seconds
type Seconds time.Duration

// Duration returns the value as a time.Duration
func (s Seconds) Duration() time.Duration {
	return time.Duration(s)
}

func (s Seconds) String() string {
	return time.Duration(s).String()
}

// EnvDecode implements envconfig.Decoder
func (s *Seconds) EnvDecode(val string) error {
	d, err := parseSeconds(val)
	if err != nil {
		return err
	}
	*s = Seconds(d)
	return nil
}

// UnmarshalYAML accepts the same forms as EnvDecode
func (s *Seconds) UnmarshalYAML(value *yaml.Node) error {
	d, err := parseSeconds(value.Value)
	if err != nil {
		return err
	}
	*s = Seconds(d)
	return nil
}

func parseSeconds(val string) (time.Duration, error) {
	val = strings.TrimSpace(val)
	if n, err := strconv.Atoi(val); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", val)
	}
	return d, nil
}
