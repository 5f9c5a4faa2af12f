// Package config handles YAML configuration loading with environment variable substitution.
//
// Configuration files support ${VAR} syntax for environment variable interpolation.
// Well-known variables (API_URL, API_KEY, DB_HOST, KAFKA_BROKER, ...) are also
// overlaid on top of the file, so the crawler can run from the environment alone
// when no file is given.
package config
