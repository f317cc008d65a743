// Package config carries the engine configuration: matcher, scheduler and
// runner limits, the NATS connection and logging.
//
// Configuration loads from a JSON or YAML file over built-in defaults;
// fields absent from the file keep their default value. Duration fields
// accept Go duration strings ("2s", "1m30s") as well as plain nanosecond
// numbers. KOTOBA_-prefixed environment variables override the file for
// the NATS connection and logging, so deployments can inject credentials
// without editing the config file.
package config
