// Package logging builds the process logger on log/slog.
//
// # Usage
//
//	logger, err := logging.New(cfg.Telemetry.Logging, os.Stderr)
//	if err != nil {
//	    return err
//	}
//	slog.SetDefault(logger.Logger)
//
//	ctx = logging.WithRequestID(ctx, id)
//	logger.InfoContext(ctx, "request routed", "provider", "openai")
//
// Records logged with a context carry its request_id and, when a span is
// active, its trace_id.
//
// # Redaction
//
// Attributes whose key names a credential (api_key, token, authorization,
// credential, secret, password) keep only a four character prefix:
//
//	"api_key", "sk-abc123xyz"  ->  "sk-a***"
//
// Other string values and errors are scanned for API keys and bearer
// tokens, which are masked in place.
package logging
