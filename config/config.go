// Package config provides a go-simpler.org/env configuration table for the
// relay binary: listen address, data directory, rate-limit thresholds, NIP-11
// relay information fields, and log level. Grounded on the teacher's
// config.C/New (struct tags + xdg defaults + .env overlay), generalized to
// this module's session/ratelimit/httpapi wiring instead of the teacher's
// spidering and whitelist options, which are out of scope (spec.md
// Non-goals).
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"go-simpler.org/env"

	"orly.dev/utils/apputil"
	"orly.dev/utils/chk"
	"orly.dev/utils/log"
)

// C is the configuration for the relay. Values are read from the process
// environment, with an optional .env file at Config/.env overlaid on top.
type C struct {
	AppName      string `env:"ORLY_APP_NAME" default:"orly"`
	Config       string `env:"ORLY_CONFIG_DIR" usage:"location for configuration file, which has the name '.env' to make it harder to delete, and is a standard environment KEY=value<newline>... style"`
	DataDir      string `env:"ORLY_DATA_DIR" usage:"storage location for the event store"`
	Listen       string `env:"ORLY_LISTEN" default:"0.0.0.0" usage:"network listen address"`
	Port         int    `env:"ORLY_PORT" default:"3334" usage:"port to listen on"`
	RelayURL     string `env:"ORLY_RELAY_URL" usage:"canonical wss:// URL clients use to reach this relay, echoed in NIP-42 AUTH challenges"`
	LogLevel     string `env:"ORLY_LOG_LEVEL" default:"info" usage:"log level: fatal error warn info debug trace"`
	Pprof        string `env:"ORLY_PPROF" usage:"enable pprof on 127.0.0.1:6060" enum:"cpu,memory,allocation"`
	AuthRequired bool   `env:"ORLY_AUTH_REQUIRED" default:"false" usage:"send a NIP-42 AUTH challenge and require AUTH before accepting kind-4 events"`

	EventsPerWindow  int `env:"ORLY_RATE_LIMIT_EVENTS" default:"60" usage:"events admitted per remote address per 60s window"`
	QueriesPerWindow int `env:"ORLY_RATE_LIMIT_QUERIES" default:"120" usage:"REQ/COUNT queries admitted per remote address per 60s window"`
	MaxConnections   int `env:"ORLY_RATE_LIMIT_CONNECTIONS" default:"10" usage:"concurrent connections admitted per remote address"`

	RelayName        string `env:"ORLY_RELAY_NAME" default:"orly" usage:"name reported in the NIP-11 relay information document"`
	RelayDescription string `env:"ORLY_RELAY_DESCRIPTION" usage:"description reported in the NIP-11 relay information document"`
	RelayPubkey      string `env:"ORLY_RELAY_PUBKEY" usage:"operator pubkey reported in the NIP-11 relay information document"`
	RelayContact     string `env:"ORLY_RELAY_CONTACT" usage:"operator contact reported in the NIP-11 relay information document"`
	RelayIcon        string `env:"ORLY_RELAY_ICON" usage:"icon URL reported in the NIP-11 relay information document"`
}

// New loads a C from the environment, overlaying Config/.env if present, and
// fills in xdg-resolved defaults for any path left unset.
func New() (cfg *C, err error) {
	cfg = &C{}
	if err = env.Load(cfg, &env.Options{SliceSep: ","}); chk.T(err) {
		return
	}
	if cfg.Config == "" {
		cfg.Config = filepath.Join(xdg.ConfigHome, cfg.AppName)
	}
	if cfg.DataDir == "" {
		cfg.DataDir = filepath.Join(xdg.DataHome, cfg.AppName)
	}
	envPath := filepath.Join(cfg.Config, ".env")
	if apputil.FileExists(envPath) {
		if err = godotenv.Overload(envPath); chk.E(err) {
			return
		}
		cfg = &C{}
		if err = env.Load(cfg, &env.Options{SliceSep: ","}); chk.E(err) {
			return
		}
		log.SetLevel(log.ParseLevel(cfg.LogLevel))
		log.I.F("loaded configuration from %s", envPath)
	}
	return
}

// HelpRequested reports whether the first CLI argument asked for help.
func HelpRequested() (help bool) {
	if len(os.Args) > 1 {
		switch strings.ToLower(os.Args[1]) {
		case "help", "-h", "--h", "-help", "--help", "?":
			help = true
		}
	}
	return
}

// GetEnv reports whether the first CLI argument is "env", asking the
// current configuration be printed as environment variable assignments.
func GetEnv() (requested bool) {
	if len(os.Args) > 1 {
		requested = strings.ToLower(os.Args[1]) == "env"
	}
	return
}

// KV is a key/value pair.
type KV struct{ Key, Value string }

// KVSlice is a sortable collection of KV pairs.
type KVSlice []KV

func (kv KVSlice) Len() int           { return len(kv) }
func (kv KVSlice) Less(i, j int) bool { return kv[i].Key < kv[j].Key }
func (kv KVSlice) Swap(i, j int)      { kv[i], kv[j] = kv[j], kv[i] }

// EnvKV turns a C into its `env`-tagged key/value pairs, one per struct
// field, for printing or for writing out a fresh .env file.
func EnvKV(cfg C) (m KVSlice) {
	t := reflect.TypeOf(cfg)
	v := reflect.ValueOf(cfg)
	for i := 0; i < t.NumField(); i++ {
		k := t.Field(i).Tag.Get("env")
		if k == "" {
			continue
		}
		var val string
		switch fv := v.Field(i).Interface().(type) {
		case string:
			val = fv
		case int, bool, time.Duration:
			val = fmt.Sprint(fv)
		case []string:
			val = strings.Join(fv, ",")
		}
		m = append(m, KV{k, val})
	}
	return
}

// PrintEnv writes cfg's key/value pairs to printer, sorted by key.
func PrintEnv(cfg *C, printer io.Writer) {
	kvs := EnvKV(*cfg)
	sort.Sort(kvs)
	for _, v := range kvs {
		_, _ = fmt.Fprintf(printer, "%s=%s\n", v.Key, v.Value)
	}
}

// PrintHelp writes the environment variable reference and the currently
// resolved configuration to printer.
func PrintHelp(cfg *C, printer io.Writer) {
	_, _ = fmt.Fprintf(printer, "%s\n\n", cfg.AppName)
	_, _ = fmt.Fprintf(
		printer, "Environment variables that configure %s:\n\n", cfg.AppName,
	)
	env.Usage(cfg, printer, &env.Options{SliceSep: ","})
	_, _ = fmt.Fprintf(
		printer,
		"\nCLI parameter 'help' also prints this information\n"+
			"\na .env file found at %s is loaded automatically; set "+
			"ORLY_CONFIG_DIR to change its location\n\n"+
			"use the parameter 'env' to print the current configuration\n\n"+
			"\t%s env > %s/.env\n",
		filepath.Join(cfg.Config, ".env"), os.Args[0], cfg.Config,
	)
	_, _ = fmt.Fprintf(printer, "\ncurrent configuration:\n\n")
	PrintEnv(cfg, printer)
	_, _ = fmt.Fprintln(printer)
}
