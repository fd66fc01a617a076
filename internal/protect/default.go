package protect

// DefaultPatterns are always protected. Patterns loaded from a file are
// added to these, never substituted for them.
var DefaultPatterns = Patterns{
	Basenames: []string{
		"toolgate.json",
		".env",
	},
	Prefixes: []string{
		".env.",
	},
	Files: []string{
		"**/toolgate.json",
		"**/.toolgate/config.json",
		"**/.toolgate/config.yaml",
		"**/.env",
		"**/.env.*",
	},
	Scan: []string{
		"toolgate.json",
		".toolgate/config.json",
		".toolgate/config.yaml",
		".env",
		".env.local",
		".env.development",
		".env.production",
		".env.test",
	},
}
