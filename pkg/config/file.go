package config

import (
	"fmt"
	"os"

	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"
)

// fileConfig is the YAML overlay. Pointer fields distinguish "absent" from zero.
type fileConfig struct {
	Symbols     []string   `yaml:"symbols"`
	Timeframes  Timeframes `yaml:"timeframes"`
	RSIPeriod   *int       `yaml:"rsi_period"`
	Lookback    *int       `yaml:"lookback"`
	Lookahead   *int       `yaml:"lookahead"`
	RangeLower  *int       `yaml:"range_lower"`
	RangeUpper  *int       `yaml:"range_upper"`
	Workers     *int       `yaml:"workers"`
	CacheTTL    *Seconds   `yaml:"cache_ttl"`
	RefreshCron *string    `yaml:"refresh_cron"`
}

// applyFile overlays values from a YAML file onto cfg. A key that is set in
// the environment keeps its environment value.
func applyFile(cfg *Config, path string, lookuper envconfig.Lookuper) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}

	unset := func(key string) bool {
		return !lookupSet(lookuper, key)
	}

	if len(fc.Symbols) > 0 && unset("SYMBOLS") {
		cfg.Scanner.Symbols = fc.Symbols
	}
	if len(fc.Timeframes) > 0 && unset("TIMEFRAMES") {
		cfg.Scanner.Timeframes = fc.Timeframes
	}
	setInt(&cfg.Scanner.RSIPeriod, fc.RSIPeriod, unset("RSI_PERIOD"))
	setInt(&cfg.Scanner.Lookback, fc.Lookback, unset("LB_L"))
	setInt(&cfg.Scanner.Lookahead, fc.Lookahead, unset("LB_R"))
	setInt(&cfg.Scanner.RangeLower, fc.RangeLower, unset("RANGE_LOWER"))
	setInt(&cfg.Scanner.RangeUpper, fc.RangeUpper, unset("RANGE_UPPER"))
	setInt(&cfg.Scanner.Workers, fc.Workers, unset("SCAN_WORKERS"))
	if fc.CacheTTL != nil && unset("CACHE_TTL") {
		cfg.Cache.TTL = *fc.CacheTTL
	}
	if fc.RefreshCron != nil && unset("REFRESH_CRON") {
		cfg.Cache.RefreshCron = *fc.RefreshCron
	}

	return nil
}

func setInt(dst *int, v *int, allowed bool) {
	if v != nil && allowed {
		*dst = *v
	}
}
