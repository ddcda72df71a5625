// Package audit records security relevant portal events: logins, failed
// logins, logouts, registrations and denied requests.
//
// Events go to a Logger. LogrusLogger writes them into the application log
// tagged with audit=true; FileLogger appends them as JSON lines to a rotating
// file; MultiLogger fans out to several loggers.
//
//	auditor := audit.NewMultiLogger(audit.NewLogrusLogger(logger), fileLogger)
//	auditor.Log(ctx, audit.NewEvent(ctx, r, audit.EventTypeAuthLogin, audit.EventStatusSuccess))
package audit
