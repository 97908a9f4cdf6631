// Package config provides configuration parsing for Trellis clients.
//
// The configuration is stored in trellis.json at the project root.
// This package handles loading, saving, and validating configuration.
//
// # Configuration File Structure
//
//	{
//	  "server": {
//	    "url": "wss://app.example.com/ws",
//	    "codec": "msgpack",
//	    "pingInterval": "30s"
//	  },
//	  "routing": {
//	    "mode": "hash",
//	    "initialPath": "/"
//	  },
//	  "theme": {
//	    "mode": "system"
//	  },
//	  "worker": {
//	    "interpreter": ["python3", "-u", "-m", "trellis_worker"],
//	    "packages": ["trellis", "httpx"],
//	    "initTimeout": "90s"
//	  },
//	  "metrics": {
//	    "enabled": true,
//	    "listen": "localhost:9464"
//	  }
//	}
//
// The server section drives remote sessions ('trellis-client connect'),
// the worker section local ones ('trellis-client run'). Durations are
// strings in Go syntax; empty values fall back to the runtime defaults.
//
// # Usage
//
//	cfg, err := config.Load(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Println("Server:", cfg.ResolvedServerURL())
package config
