package render

import (
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/rs/zerolog"

	"github.com/ereinha3/eznas/pkg/config"
	"github.com/ereinha3/eznas/pkg/log"
	"github.com/ereinha3/eznas/pkg/types"
)

// ErrTemplateNotFound indicates a required template file is missing from
// the template source.
var ErrTemplateNotFound = errors.New("template not found")

//go:embed templates
var defaultTemplates embed.FS

const (
	composeTemplate = "docker-compose.yml.tmpl"
	envTemplate     = "env.tmpl"
	secretsSubdir   = "secrets"
	templateSuffix  = ".tmpl"
)

// Renderer turns a stack config plus a secrets snapshot into the compose
// bundle: docker-compose.yml, .env, and the .secrets/ tree. Rendering is
// a pure function of its inputs; calling it twice with the same config
// and secrets produces identical bytes.
type Renderer struct {
	fsys   fs.FS
	logger zerolog.Logger
}

// New builds a renderer reading templates from templateDir. An empty dir
// selects the built-in templates shipped with the binary.
func New(templateDir string) *Renderer {
	var fsys fs.FS
	if templateDir == "" {
		sub, err := fs.Sub(defaultTemplates, "templates")
		if err != nil {
			// The embedded tree always contains templates/.
			panic(fmt.Sprintf("embedded templates missing: %v", err))
		}
		fsys = sub
	} else {
		fsys = os.DirFS(templateDir)
	}
	return &Renderer{
		fsys:   fsys,
		logger: log.WithComponent("render"),
	}
}

// renderContext is the data every template renders against.
type renderContext struct {
	Config     *types.StackConfig
	Secrets    types.SecretsState
	ConfigHash string
}

func buildContext(cfg *types.StackConfig, secrets types.SecretsState) (*renderContext, error) {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("hashing config: %w", err)
	}
	sum := sha256.Sum256(raw)
	if secrets == nil {
		secrets = types.SecretsState{}
	}
	return &renderContext{
		Config:     cfg,
		Secrets:    secrets,
		ConfigHash: hex.EncodeToString(sum[:]),
	}, nil
}

func (r *Renderer) funcs(secrets types.SecretsState) template.FuncMap {
	funcs := sprig.HermeticTxtFuncMap()
	funcs["internalPort"] = func(service string) int {
		return config.InternalPorts[service]
	}
	funcs["secret"] = func(service, key string) string {
		return secrets.Get(service, key)
	}
	funcs["proxyHost"] = proxyHost
	return funcs
}

// proxyHost extracts the hostname from a proxy_url value. Bare hostnames
// are accepted as-is.
func proxyHost(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	if !strings.Contains(rawURL, "://") {
		rawURL = "https://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

func (r *Renderer) parse(name string, secrets types.SecretsState) (*template.Template, error) {
	raw, err := fs.ReadFile(r.fsys, name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
		}
		return nil, fmt.Errorf("reading template %s: %w", name, err)
	}
	tmpl, err := template.New(path.Base(name)).Funcs(r.funcs(secrets)).Parse(string(raw))
	if err != nil {
		return nil, fmt.Errorf("parsing template %s: %w", name, err)
	}
	return tmpl, nil
}

func (r *Renderer) renderFile(name string, ctx *renderContext) ([]byte, error) {
	tmpl, err := r.parse(name, ctx.Secrets)
	if err != nil {
		return nil, err
	}
	var buf strings.Builder
	if err := tmpl.Execute(&buf, ctx); err != nil {
		return nil, fmt.Errorf("rendering %s: %w", name, err)
	}
	return []byte(buf.String()), nil
}

// secretTemplates lists the template files under secrets/, sorted so the
// output order is stable. A missing secrets/ directory is not an error.
func (r *Renderer) secretTemplates() ([]string, error) {
	var names []string
	err := fs.WalkDir(r.fsys, secretsSubdir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && p == secretsSubdir {
				return fs.SkipAll
			}
			return err
		}
		if !d.IsDir() && strings.HasSuffix(p, templateSuffix) {
			names = append(names, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning secret templates: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

// Render writes the full compose bundle into outputDir and reports where
// everything landed.
func (r *Renderer) Render(cfg *types.StackConfig, secrets types.SecretsState, outputDir string) (*types.RenderResult, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output dir: %w", err)
	}
	ctx, err := buildContext(cfg, secrets)
	if err != nil {
		return nil, err
	}

	composeOut, err := r.renderFile(composeTemplate, ctx)
	if err != nil {
		return nil, err
	}
	envOut, err := r.renderFile(envTemplate, ctx)
	if err != nil {
		return nil, err
	}

	composePath := filepath.Join(outputDir, "docker-compose.yml")
	if err := os.WriteFile(composePath, composeOut, 0o644); err != nil {
		return nil, fmt.Errorf("writing compose file: %w", err)
	}
	envPath := filepath.Join(outputDir, ".env")
	if err := os.WriteFile(envPath, envOut, 0o600); err != nil {
		return nil, fmt.Errorf("writing env file: %w", err)
	}

	secretsDir, secretFiles, err := r.writeSecrets(ctx, outputDir)
	if err != nil {
		return nil, err
	}

	r.logger.Debug().
		Str("compose", composePath).
		Int("secret_files", len(secretFiles)).
		Msg("rendered compose bundle")

	return &types.RenderResult{
		ComposePath: composePath,
		EnvPath:     envPath,
		SecretsDir:  secretsDir,
		SecretFiles: secretFiles,
	}, nil
}

// RenderSecrets rewrites only the .secrets/ tree. The apply runner calls
// this after service configuration mints new credentials.
func (r *Renderer) RenderSecrets(cfg *types.StackConfig, secrets types.SecretsState, outputDir string) (string, map[string]string, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", nil, fmt.Errorf("creating output dir: %w", err)
	}
	ctx, err := buildContext(cfg, secrets)
	if err != nil {
		return "", nil, err
	}
	return r.writeSecrets(ctx, outputDir)
}

func (r *Renderer) writeSecrets(ctx *renderContext, outputDir string) (string, map[string]string, error) {
	names, err := r.secretTemplates()
	if err != nil {
		return "", nil, err
	}
	if len(names) == 0 {
		return "", map[string]string{}, nil
	}

	secretsDir := filepath.Join(outputDir, ".secrets")
	secretFiles := make(map[string]string, len(names))
	for _, name := range names {
		out, err := r.renderFile(name, ctx)
		if err != nil {
			return "", nil, err
		}
		rel := strings.TrimSuffix(strings.TrimPrefix(name, secretsSubdir+"/"), templateSuffix)
		target := filepath.Join(secretsDir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(target), 0o700); err != nil {
			return "", nil, fmt.Errorf("creating secrets dir: %w", err)
		}
		if err := os.WriteFile(target, out, 0o600); err != nil {
			return "", nil, fmt.Errorf("writing secret %s: %w", rel, err)
		}
		secretFiles[rel] = target
	}
	return secretsDir, secretFiles, nil
}
