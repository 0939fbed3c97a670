// Package config provides application configuration management.
//
// The config package loads the service configuration from a YAML file and
// CODERUNNER_* environment variables using viper. It covers the HTTP/MCP
// transport, the container-runtime backend, the workspace root, logging and
// the per-language execution recipes.
//
// The sandbox safety limits (memory, CPU, network, timeouts) are deliberately
// absent: they are constants of the sandbox package.
//
// Usage:
//
//	cfg, err := config.Load("coderunner.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Listening on %d\n", cfg.Server.HTTPPort)
package config
