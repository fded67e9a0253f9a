// Package config defines configuration structures for the provisioning
// engine.
//
// Configuration can be provided via:
//   - Command-line flags
//   - Environment variables (AICC_ prefix)
//   - YAML configuration file
//
// # Structure
//
//	type Config struct {
//	    RegistryURL      string
//	    ModelsDir        string
//	    APIToken         string
//	    ListenAddr       string
//	    ProgressInterval time.Duration
//	    JobRetention     time.Duration
//	    StallTimeout     time.Duration
//	    TransferRetries  int
//	    Retry            RetryConfig
//	}
//
//	type RetryConfig struct {
//	    Attempts   int
//	    Backoff    time.Duration
//	    MaxBackoff time.Duration
//	}
package config
