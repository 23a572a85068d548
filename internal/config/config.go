package config

import (
	"strings"

	"github.com/labstack/gommon/log"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to environment variable names: --rate-limit is read
// from DATAVISTA_RATE_LIMIT.
const EnvPrefix = "DATAVISTA"

// Config holds the service settings.
type Config struct {
	ConfigFile  string
	Addr        string
	Data        string
	LogLevel    string
	RateLimit   float64
	BodyLimit   string
	CORSOrigins []string
}

func Default() *Config {
	return &Config{
		Addr:        ":8080",
		LogLevel:    "info",
		RateLimit:   20,
		BodyLimit:   "8M",
		CORSOrigins: []string{"*"},
	}
}

// Flags registers every setting on fs, with the current values as defaults.
func (c *Config) Flags(fs *pflag.FlagSet) {
	fs.StringVarP(&c.ConfigFile, "config", "c", c.ConfigFile, "TOML configuration file")
	fs.StringVar(&c.Addr, "addr", c.Addr, "HTTP listen address")
	fs.StringVar(&c.Data, "data", c.Data, "sales dataset (.csv or .json); built-in sample when empty")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "debug, info, warn, error or off")
	fs.Float64Var(&c.RateLimit, "rate-limit", c.RateLimit, "requests per second per client, 0 disables")
	fs.StringVar(&c.BodyLimit, "body-limit", c.BodyLimit, "maximum upload size, e.g. 8M")
	fs.StringSliceVar(&c.CORSOrigins, "cors-origins", c.CORSOrigins, "allowed CORS origins")
}

// Load reads flags, then the environment, then the config file (if one is
// named), applying them in that priority order onto the flag values.
func Load(v *viper.Viper, flags *pflag.FlagSet) error {
	if err := v.BindPFlags(flags); err != nil {
		return err
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if c := v.GetString("config"); c != "" {
		v.SetConfigFile(c)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return errors.Wrapf(err, "reading configuration file '%s'", c)
		}
	}

	var flagErr error
	flags.VisitAll(func(f *pflag.Flag) {
		if flagErr != nil || f.Changed {
			return
		}
		var value string
		if f.Value.Type() == "stringSlice" {
			// GetString returns "" for a list coming from the config file.
			value = strings.Join(v.GetStringSlice(f.Name), ",")
		} else {
			value = v.GetString(f.Name)
		}
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			flagErr = sv.Replace(splitList(value))
			return
		}
		flagErr = f.Value.Set(value)
	})
	return errors.Wrap(flagErr, "applying configuration")
}

func splitList(s string) []string {
	if s == "" {
		return []string{}
	}
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// Level maps LogLevel onto a gommon log level.
func (c *Config) Level() (log.Lvl, error) {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return log.DEBUG, nil
	case "", "info":
		return log.INFO, nil
	case "warn", "warning":
		return log.WARN, nil
	case "error":
		return log.ERROR, nil
	case "off":
		return log.OFF, nil
	}
	return log.INFO, errors.Errorf("unknown log level %q", c.LogLevel)
}
