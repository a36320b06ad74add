package config

// Defaults returns the configuration used when no file exists and the
// base that loaded files are merged over.
func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel:        "info",
			DefaultProvider: "deepseek",
			ToolsAddr:       "localhost:50051",
		},
		Providers: map[string]ProviderConfig{
			"deepseek": {
				Enabled:      true,
				APIBase:      "https://api.deepseek.com/v1",
				DefaultModel: "deepseek-chat",
				Temperature:  0.7,
			},
			"ollama": {
				Enabled:      true,
				APIBase:      "http://localhost:11434",
				DefaultModel: "llama3.1:8b",
				Temperature:  0.7,
			},
		},
		Server: ServerConfig{
			Addr: "localhost:50051",
		},
		Tools: ToolsConfig{
			Convert: ConvertConfig{
				ProfilesDir:    "~/.flightbot/profiles",
				TimeoutSeconds: 300,
			},
			Search: SearchConfig{
				MaxResults:     5,
				TimeoutSeconds: 30,
			},
		},
		History: HistoryConfig{
			Enabled:                   true,
			DBPath:                    "~/.flightbot/history.db",
			MaxHistoryPerConversation: 50,
			RetentionDays:             90,
		},
	}
}
