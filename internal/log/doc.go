// Package log provides slog loggers that redact credentials.
//
// The crawler routes requests through vendor proxies whose URLs embed the
// vendor app key and secret, and batch mode connects to databases with DSNs
// carrying passwords. SecureHandler masks those values before any handler
// writes them:
//   - attributes whose key names a credential (app_secret, dsn, password, ...)
//   - URL userinfo ("user:pass@") inside any string, error or message
//   - vendor query parameters such as appSecret=
//
// # Usage
//
//	logger := log.NewSecureLogger(os.Stderr, verbose)
//	logger.Info("leased proxy", "proxy", lease.URL.String()) // http://***REDACTED***@1.2.3.4:8080
//	slog.SetDefault(logger)
package log
