// Package config loads and validates Edgeberry Core configuration.
//
// Configuration comes from three layers, later layers winning:
//   - built-in defaults
//   - a YAML file
//   - EDGEBERRY_* environment variables
//
// Secrets (MQTT password, InfluxDB token, JWT secret) should be supplied via
// the environment rather than the file. The file should be mode 0600.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Bridge.DefaultTimeout)
package config
