// Package log provides secure logging functionality with automatic sanitization
// of sensitive information, built on top of the standard slog package.
//
// The SecureHandler rewrites attributes before they reach the wrapped handler:
//   - HTTP headers (Authorization, Cookie, Proxy-Authorization)
//   - Secret values detected by pattern matching (tokens, keys, DSNs with passwords)
//   - Email addresses found in messages, string values and errors, which keep
//     only the first character of their local part
//
// Harvested contact data is personal data, so even verbose logs never carry
// a full address.
//
// # Usage
//
//	logger := log.NewSecureLogger(os.Stderr, verbose)
//	logger.Info("email found", "email", "jane@acme.fr") // email=j***@acme.fr
//	slog.SetDefault(logger)
package log
