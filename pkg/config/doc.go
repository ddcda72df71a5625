// Package config loads portal configuration from an optional YAML file and
// PORTAL_* environment variables. Environment variables win over the file.
//
// # Configuration File
//
// PORTAL_CONFIG_FILE names a YAML file with the provider sections. A provider
// is enabled only when its client id is present:
//
//	googleClientId: "1234.apps.googleusercontent.com"
//	encGoogleClientSecret: "<base64 ciphertext>"
//	googleOauthCallbackUrl: "https://portal.example.com/public/auth/google/callback"
//	slackClientId: "1111.2222"
//	encSlackClientSecret: "<base64 ciphertext>"
//	slackOauthCallbackUrl: "https://portal.example.com/public/auth/slack/callback"
//	slackTeamId: "T012345"
//	localUsersPath: "/etc/portal/localUsers.json"
//	encExpressSessionSecret: "<base64 ciphertext>"
//	isSecure: true
//
// Values prefixed with enc are decrypted at startup with PORTAL_MASTER_KEY
// (see package secrets).
//
// # Environment
//
//	PORTAL_PORT="8081"
//	PORTAL_SESSION_STORE="memory"   # memory or redis
//	PORTAL_REDIS_URL="redis://localhost:6379/0"
//	PORTAL_DB_DRIVER="sqlite3"      # sqlite3 or postgres
//	PORTAL_DB_DSN="portal.db"
//	PORTAL_LOG_LEVEL="info"
//	PORTAL_AUDIT_LOG_PATH="/var/log/portal"  # adds the JSON-lines audit file
package config
