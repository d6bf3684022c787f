package i18n

// EnMessages English message catalog
var EnMessages = map[string]string{
	// Transcript
	"chat.title.new":         "New Chat",
	"chat.title.image":       "Image Analysis",
	"chat.empty_response":    "The model returned an empty response.",
	"chat.error_annotation":  "\n\n**Error: %s**",
	"chat.interrupted":       "generation interrupted",
	"chat.request_failed":    "Failed to get response from server.",
	"chat.no_active_model":   "No model selected. Use `groups use <model>` first.",
	"chat.turn_in_progress":  "A reply is still streaming for this session.",
	"chat.context_estimate":  "context ≈ %d tokens",
	"chat.attachment_header": "Attachment: %s",

	// REPL
	"repl.welcome":     "gravchat: type a message, /help for commands, Ctrl-D to quit.",
	"repl.help":        "Commands: /new, /list, /show, /open <id>, /delete <id>, /resend <n>, /edit <n>, /attach <file>, /model <id>, /context on|off, /retention <days>, /quit",
	"repl.prompt":      "you> ",
	"repl.bye":         "Bye.",
	"repl.unknown":     "Unknown command: %s",
	"repl.new":         "Started a new chat.",
	"repl.opened":      "Opened %s (%s)",
	"repl.deleted":     "Deleted %s",
	"repl.draft":       "Draft restored: %s",
	"repl.model_set":   "Model set to %s (%s)",
	"repl.context_on":  "Context inclusion enabled",
	"repl.context_off": "Context inclusion disabled",
	"repl.retention":   "Retention set to %d days",
	"repl.usage":       "Usage: %s",

	// Groups
	"groups.created":   "Created group %s with %d models",
	"groups.deleted":   "Deleted group %s",
	"groups.synced":    "Synced %s: %d models (+%d / -%d)",
	"groups.sync_fail": "Sync failed for %s",
	"groups.empty":     "No provider groups configured.",

	// Sessions
	"sessions.empty":   "No saved sessions.",
	"sessions.pruned":  "Removed %d expired sessions",
	"sessions.cleared": "History cleared",

	// Store
	"store.usage":    "Usage: %s MB of %s MB (%.1f%%)",
	"store.imported": "Imported %d sessions (%d skipped), group: %t, settings: %d",

	// Errors
	"error.provider": "Provider error: %s",
	"error.config":   "Config error: %s",
	"error.store":    "Storage unavailable: %s",
}
