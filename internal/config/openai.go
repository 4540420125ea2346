package config

// GetOpenAIKey returns the OpenAI API key, or an empty string when the
// reference backend should fall back to the scripted responder.
func GetOpenAIKey() string {
	return GetEnvOrDefault("OPENAI_KEY", "")
}
