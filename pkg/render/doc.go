// Package render emits the compose bundle for the media stack.
//
// A Renderer reads a template tree (the embedded defaults or a directory
// supplied by the operator) and writes three artifacts into the generated
// output directory:
//
//   - docker-compose.yml, describing every enabled service with its
//     volume mounts and port publications
//   - .env, carrying uid/gid/timezone and derived values the compose
//     file references
//   - .secrets/, a tree of credential files mirroring templates/secrets/
//
// Template Source Layout:
//
//	templates/
//	├── docker-compose.yml.tmpl
//	├── env.tmpl
//	└── secrets/
//	    └── api-keys.env.tmpl   → generated/.secrets/api-keys.env
//
// Templates are standard text/template documents extended with the sprig
// function map plus three stack helpers:
//
//	internalPort "radarr"        container-internal listen port
//	secret "radarr" "api_key"    value from the secrets snapshot
//	proxyHost "https://r.lan"    hostname component of a proxy_url
//
// Rendering is a pure function of (config, secrets). The apply runner
// renders once before deploying and re-renders only the .secrets/ tree
// when service configuration mints new credentials.
//
// Usage:
//
//	r := render.New("")
//	result, err := r.Render(cfg, secrets, filepath.Join(root, "generated"))
//	if errors.Is(err, render.ErrTemplateNotFound) {
//	    // operator-supplied template dir is incomplete
//	}
package render
