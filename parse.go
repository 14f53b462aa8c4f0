package xmr

import (
	"fmt"
	"os"
	"strconv"

	"github.com/go-yaml/yaml"
	"github.com/spf13/pflag"
)

type options struct {
	options []ConfigOption
	err     error
}

// ParseCommandLine configures the runner from command line options or from
// a YAML configuration file passed with the -c flag.  Returns a slice of
// functional options that can be applied to the configuration.
func ParseCommandLine() ([]ConfigOption, error) {
	pf := createFlagSet()
	return parse(os.Args[1:], pf)
}

func parse(args []string, pf *pflag.FlagSet) ([]ConfigOption, error) {
	options := options{}
	if err := pf.ParseAll(args, parseFlag(&options)); err != nil {
		return options.options, err
	}
	return options.options, options.err
}

func createFlagSet() *pflag.FlagSet {
	pf := pflag.NewFlagSet("xmr", pflag.ContinueOnError)
	pf.Usage = func() {
		fmt.Printf("Usage of xmr:\nxmr <options>\n\nRuns a control chart pass over the measurements in the store: the first 8 rows form the baseline, every later row is evaluated in order and its control limits are written back.\n")
		fmt.Printf("\n%s", pf.FlagUsagesWrapped(10))
	}

	pf.StringP("series", "s", "process", "Name of the measured series, with optional tags (e.g. deploy_lead_time[team=core])")
	pf.StringP("config", "c", "", "Use yaml configuration file")
	pf.String("id", "", "Run identifier (defaults to a generated UUID)")
	pf.String("store", "sqlite", "Measurement store backend: memory, sqlite, xlsx or redis")
	pf.String("path", "", "File path for the sqlite or xlsx store (defaults to xmr.db / xmr.xlsx)")
	pf.String("sheet", "Process", "Worksheet name for the xlsx store")
	pf.String("redis-addr", "localhost:6379", "Redis address as host:port")
	pf.String("redis-password", "", "Redis password")
	pf.Int("redis-db", 0, "Redis database number")
	pf.String("redis-prefix", "xmr", "Key prefix for chart rows in redis")
	pf.String("webhook", "", "URL that receives a JSON report when the run finishes")
	pf.Duration("notify-timeout", 0, "Maximum time to retry a failing webhook (e.g. 90s, 5m)")
	pf.Bool("no-notify-on-success", false, "Do not send a report on successful completion of the run.")
	pf.Bool("no-notify-on-failure", false, "Do not send a report when the run fails.")
	pf.String("log-level", "info", "Minimum log level: debug, info, warn or error")
	pf.Bool("no-error-reports", false, "Do not send reports when there are unexpected errors in the client")

	return pf
}

func parseFlag(o *options) func(*pflag.Flag, string) error {
	return func(flag *pflag.Flag, value string) error {
		switch flag.Name {
		case "config":
			opts, err := parseFromFile(value)
			if err != nil {
				o.err = err
				return err
			}
			o.options = append(o.options, opts...)
		default:
			option, err := handleOption(flag.Name, value)
			if err != nil {
				o.err = err
				return err
			}
			o.options = append(o.options, option)
		}
		return nil
	}
}

func handleOption(name string, value string) (ConfigOption, error) {
	switch name {
	case "id":
		return ID(value), nil
	case "series":
		return Series(value), nil
	case "store":
		return Store(value), nil
	case "path":
		return Path(value), nil
	case "sheet":
		return Sheet(value), nil
	case "redis-addr":
		return RedisAddr(value), nil
	case "redis-password":
		return RedisPassword(value), nil
	case "redis-db":
		return RedisDB(value), nil
	case "redis-prefix":
		return RedisPrefix(value), nil
	case "webhook":
		return Webhook(value), nil
	case "notify-timeout":
		return NotifyTimeout(value), nil
	case "no-notify-on-success":
		return NoNotifyOnSuccess(), nil
	case "no-notify-on-failure":
		return NoNotifyOnFailure(), nil
	case "log-level":
		return LogLevel(value), nil
	case "no-error-reports":
		return NoErrorReports(), nil
	default:
		return nil, fmt.Errorf("unknown option: %s", name)
	}
}

func parseFromFile(fpath string) ([]ConfigOption, error) {
	var options []ConfigOption
	data, err := os.ReadFile(fpath)
	if err != nil {
		return options, err
	}

	cfg := make(map[string]interface{})
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return options, err
	}
	for k, v := range cfg {
		switch v := v.(type) {
		case string:
			opt, err := handleOption(k, v)
			if err != nil {
				return options, err
			}
			options = append(options, opt)
		case int:
			opt, err := handleOption(k, strconv.Itoa(v))
			if err != nil {
				return options, err
			}
			options = append(options, opt)
		case bool:
			// a false boolean key is the same as leaving it out
			if !v {
				continue
			}
			opt, err := handleOption(k, "")
			if err != nil {
				return options, err
			}
			options = append(options, opt)
		default:
			return options, fmt.Errorf("could not process config key %s, unknown type", k)
		}
	}
	return options, nil
}
