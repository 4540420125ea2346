package config

// GetServerURL returns the base URL of the conversation backend
func GetServerURL() string {
	return GetEnvOrDefault("CONSULT_SERVER_URL", "http://localhost:8080")
}

// GetListenAddr returns the address the reference backend binds to
func GetListenAddr() string {
	return GetEnvOrDefault("CONSULT_LISTEN_ADDR", ":8080")
}
