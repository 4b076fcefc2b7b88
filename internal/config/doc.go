// Package config loads collabcode configuration.
//
// Configuration comes from three layers, later layers winning:
//
//  1. built-in defaults (New)
//  2. collabcode.json, which may contain comments and trailing commas
//  3. COLLABCODE_* environment variables
//
// Command-line flags are applied by the caller on top.
//
// # Configuration File Structure
//
//	{
//	  // relay settings
//	  "server": {
//	    "address": ":8080",
//	    "path": "/ws",
//	    "heartbeatInterval": "30s",
//	    "heartbeatTimeout": "30s",
//	    "sendQueue": 256
//	  },
//	  "client": {
//	    "url": "ws://localhost:8080/ws",
//	    "username": "ada",
//	    "connectTimeout": "15s"
//	  },
//	  "log": {"level": "info", "format": "text"},
//	  "metrics": {"enabled": true, "path": "/metrics"}
//	}
package config
