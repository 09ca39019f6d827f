package config

const (
	defaultNotesRef    = "refs/notes/agent-trace"
	defaultStagingPath = ".tracenotes/pending.jsonl"
	defaultGitBinary   = "git"
	defaultGitTimeout  = "30s"
	defaultAPIListen   = ":8765"
	defaultKafkaTopic  = "tracenotes.traces"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Notes: NotesConfig{
			Ref: defaultNotesRef,
		},
		Staging: StagingConfig{
			Path: defaultStagingPath,
		},
		Git: GitConfig{
			Binary:  defaultGitBinary,
			Timeout: defaultGitTimeout,
		},
		API: APIConfig{
			Listen: defaultAPIListen,
		},
		Events: EventsConfig{
			KafkaTopic: defaultKafkaTopic,
		},
	}
}
