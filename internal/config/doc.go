// Package config provides loading and environment overlay for mbus runtime
// configuration. It exposes a Default() baseline, a file loader for JSON
// and YAML, and an MBUS_* environment overlay that also honors a .env file
// in the working directory.
//
// Example:
//
//	cfg := config.Default()
//	if fileCfg, err := config.Load("/etc/mbus.yaml"); err == nil {
//	    cfg = fileCfg
//	}
//	if err := config.FromEnv(&cfg); err != nil {
//	    return err
//	}
//	db, _ := pebblestore.Open(pebblestore.Options{DataDir: cfg.DataDir})
package config
