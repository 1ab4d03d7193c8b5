// Package config resolves tool settings from flags, PLINKO_UBT_* environment
// variables and defaults, in that order.
package config

import (
	"fmt"
	"strings"

	"github.com/ledgerwatch/log/v3"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"plinko-ubt/internal/plinkodb"
	"plinko-ubt/internal/ubt"
)

const EnvPrefix = "PLINKO_UBT"

const (
	KeyLogLevel        = "log-level"
	KeyProgressEvery   = "progress-every"
	KeyMetricsTextfile = "metrics-textfile"
	KeyChain           = "chain"
	KeySource          = "source"
	KeyFormatVersion   = "format-version"
	KeyInputFormat     = "input-format"
	KeyManifest        = "manifest"
	KeyManifestVersion = "manifest-version"
	KeyIPFSAPI         = "ipfs-api"
	KeyIPFSGateway     = "ipfs-gateway"
	KeyScheme          = "scheme"
	KeyStemIndex       = "stem-index"
	KeyJSON            = "json"
	KeyCheckDuplicates = "check-duplicates"
)

const (
	defaultLogLevel      = "info"
	defaultProgressEvery = 1_000_000
	defaultInputFormat   = InputRaw
	defaultScheme        = "raw"
)

// Input formats accepted by convert.
const (
	InputRaw  = "raw"
	InputPIR2 = "pir2"
)

type Config struct {
	LogLevel        log.Lvl
	ProgressEvery   uint64
	MetricsTextfile string

	// Chain is empty unless set; convert then derives it from a PIR2 header
	// or falls back to plinkodb.DefaultChain.
	Chain           string
	Source          string
	FormatVersion   string
	InputFormat     string
	Manifest        bool
	ManifestVersion string
	IPFSAPI         string
	IPFSGateway     string

	Scheme    ubt.Scheme
	StemIndex string

	JSON            bool
	CheckDuplicates bool
}

// New returns a viper instance with defaults and environment binding set up.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault(KeyLogLevel, defaultLogLevel)
	v.SetDefault(KeyProgressEvery, defaultProgressEvery)
	v.SetDefault(KeySource, plinkodb.DefaultSource)
	v.SetDefault(KeyFormatVersion, plinkodb.DefaultFormatVersion)
	v.SetDefault(KeyInputFormat, defaultInputFormat)
	v.SetDefault(KeyScheme, defaultScheme)
	return v
}

// BindFlags binds every flag in fs whose name is a config key.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	var err error
	fs.VisitAll(func(f *pflag.Flag) {
		if err != nil {
			return
		}
		err = v.BindPFlag(f.Name, f)
	})
	return err
}

// Load reads and validates the settings held by v.
func Load(v *viper.Viper) (Config, error) {
	cfg := Config{
		ProgressEvery:   v.GetUint64(KeyProgressEvery),
		MetricsTextfile: strings.TrimSpace(v.GetString(KeyMetricsTextfile)),
		Chain:           strings.TrimSpace(v.GetString(KeyChain)),
		Source:          firstNonEmpty(v.GetString(KeySource), plinkodb.DefaultSource),
		FormatVersion:   firstNonEmpty(v.GetString(KeyFormatVersion), plinkodb.DefaultFormatVersion),
		InputFormat:     strings.ToLower(firstNonEmpty(v.GetString(KeyInputFormat), defaultInputFormat)),
		ManifestVersion: strings.TrimSpace(v.GetString(KeyManifestVersion)),
		IPFSAPI:         strings.TrimSpace(v.GetString(KeyIPFSAPI)),
		IPFSGateway:     strings.TrimSpace(v.GetString(KeyIPFSGateway)),
		StemIndex:       strings.TrimSpace(v.GetString(KeyStemIndex)),
	}

	var ok bool
	if cfg.Manifest, ok = boolValue(v, KeyManifest); !ok {
		return Config{}, fmt.Errorf("invalid %s value %q", KeyManifest, v.GetString(KeyManifest))
	}
	if cfg.JSON, ok = boolValue(v, KeyJSON); !ok {
		return Config{}, fmt.Errorf("invalid %s value %q", KeyJSON, v.GetString(KeyJSON))
	}
	if cfg.CheckDuplicates, ok = boolValue(v, KeyCheckDuplicates); !ok {
		return Config{}, fmt.Errorf("invalid %s value %q", KeyCheckDuplicates, v.GetString(KeyCheckDuplicates))
	}
	// An IPFS endpoint implies a manifest to record the CIDs in.
	if cfg.IPFSAPI != "" {
		cfg.Manifest = true
	}

	lvl, err := log.LvlFromString(firstNonEmpty(v.GetString(KeyLogLevel), defaultLogLevel))
	if err != nil {
		return Config{}, fmt.Errorf("invalid %s: %w", KeyLogLevel, err)
	}
	cfg.LogLevel = lvl

	if cfg.ProgressEvery == 0 {
		cfg.ProgressEvery = defaultProgressEvery
	}

	switch cfg.InputFormat {
	case InputRaw, InputPIR2:
	default:
		return Config{}, fmt.Errorf("invalid %s %q (want %s or %s)", KeyInputFormat, cfg.InputFormat, InputRaw, InputPIR2)
	}

	if cfg.Scheme, err = ubt.ParseScheme(v.GetString(KeyScheme)); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// boolValue accepts the usual spellings of a boolean; unset is false.
func boolValue(v *viper.Viper, key string) (bool, bool) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return false, true
	}
	return parseBool(raw)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func parseBool(value string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "y", "on":
		return true, true
	case "0", "false", "no", "n", "off":
		return false, true
	default:
		return false, false
	}
}
