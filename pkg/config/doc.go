// Package config provides typed, path-based access to host configuration.
//
// A Configuration is built from one or more Sources. File sources are parsed by
// a Factory picked from the file extension (YAML/JSON, TOML, properties), and
// an Env source lets environment variables override any path:
//
//	src, err := config.OpenFile("boot.yaml")
//	cfg := config.New("boot.yaml", config.Layered(config.NewEnv(os.Environ()), src))
//	port, err := cfg.GetInt("wisp.websocket.port")
//
// Getters never fall back to defaults. Callers that treat a value as optional
// check HasPath first.
package config
