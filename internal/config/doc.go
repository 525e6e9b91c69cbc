// Package config handles configuration loading for rei-gateway.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and fails fast on missing required fields.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${REI_JWT_SECRET}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	server:
//	  shutdown_timeout: "15s"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: "0.0.0.0:8080"
//	  shutdown_timeout: "15s"
//
// Database:
//
//	database:
//	  path: "/var/lib/rei/gateway.db"
//
// Authentication:
//
//	auth:
//	  jwt_secret: "${REI_JWT_SECRET}"
//
// Inference backend (any OpenAI-compatible endpoint):
//
//	model:
//	  base_url: "http://localhost:11434/v1"
//	  api_key: "${REI_MODEL_API_KEY}"
//	  name: "llama3.1"
//	  context_length: 8192
//	  max_output_tokens: 1024
//
// Hazard guard (optional second model; base_url and api_key default to the
// main model's endpoint):
//
//	safety:
//	  enabled: true
//	  name: "llama-guard3"
//
// Conversation behavior:
//
//	chat:
//	  max_tool_iterations: 5
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// Metrics:
//
//	metrics:
//	  enabled: true
//	  path: "/metrics"
//
// # Usage
//
//	cfg, err := config.Load("/etc/rei/gateway.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
