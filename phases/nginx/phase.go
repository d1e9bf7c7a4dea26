package nginx

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/BrianJOC/host-harden/phases"
	"github.com/BrianJOC/host-harden/utils/distro"
	"github.com/BrianJOC/host-harden/utils/rootexec"
	"github.com/BrianJOC/host-harden/utils/rootfile"
	"github.com/BrianJOC/host-harden/utils/service"
)

const (
	// Input identifiers
	InputDomain       = "domain"
	InputExtraDomains = "extra-domains"
	InputBackends     = "backends"
	InputCertbot      = "certbot"
	InputEmail        = "email"

	marker = "# Managed by harden"
)

// Phase puts nginx in front of local backends and optionally issues a certificate.
type Phase struct{}

// New creates the nginx phase.
func New() *Phase {
	return &Phase{}
}

func (p *Phase) Metadata() phases.PhaseMetadata {
	return phases.PhaseMetadata{
		Key:         phases.KeyNginx,
		Title:       "Reverse Proxy",
		Description: "Install nginx, proxy a domain to local backends and request a Let's Encrypt certificate.",
		Inputs: []phases.InputDefinition{
			{
				ID:          InputDomain,
				Label:       "Domain",
				Description: "Primary server name, e.g. example.com.",
				Kind:        phases.InputKindText,
				Required:    true,
				Validate:    phases.ValidDomain,
			},
			{
				ID:          InputExtraDomains,
				Label:       "Extra domains",
				Description: "Comma separated additional server names, e.g. www.example.com.",
				Kind:        phases.InputKindList,
				Validate:    phases.Each(phases.ValidDomain),
			},
			{
				ID:          InputBackends,
				Label:       "Backends",
				Description: "Comma separated host:port upstreams.",
				Kind:        phases.InputKindList,
				Required:    true,
				Default:     "127.0.0.1:8080",
				Validate:    phases.Each(phases.ValidHostPort),
			},
			{
				ID:          InputCertbot,
				Label:       "Issue certificate",
				Description: "Run certbot to obtain a certificate and redirect HTTP to HTTPS.",
				Kind:        phases.InputKindConfirm,
				Default:     "true",
			},
			{
				ID:          InputEmail,
				Label:       "Contact email",
				Description: "Let's Encrypt expiry notices; empty registers without an email.",
				Kind:        phases.InputKindText,
				Validate:    phases.ValidEmail,
			},
		},
		Tags: []string{"web", "tls"},
	}
}

// ValidateOptions rejects a primary domain repeated in extra-domains.
func (p *Phase) ValidateOptions(opts *phases.Options) error {
	domain := opts.String(InputDomain)
	for _, extra := range opts.List(InputExtraDomains) {
		if strings.EqualFold(extra, domain) {
			return phases.ValidationError{Field: InputExtraDomains, Value: extra, Reason: "repeats --domain"}
		}
	}
	return nil
}

func (p *Phase) Satisfied(ctx context.Context, env *phases.Env, opts *phases.Options) (bool, error) {
	installed, err := env.Packages.Installed(ctx, "nginx")
	if err != nil || !installed {
		return false, err
	}
	site, ok, err := env.Files.Read(ctx, SitePath(opts.String(InputDomain)))
	if err != nil || !ok || !siteMatches(site, opts) {
		return false, err
	}
	if !opts.Bool(InputCertbot) {
		return true, nil
	}
	return env.Files.Exists(ctx, CertPath(opts.String(InputDomain)))
}

func (p *Phase) Apply(ctx context.Context, env *phases.Env, opts *phases.Options) error {
	domain := opts.String(InputDomain)
	certbot := opts.Bool(InputCertbot)

	if _, err := env.Packages.Ensure(ctx, packages(env.Context.PackageManager, certbot)); err != nil {
		return err
	}

	path := SitePath(domain)
	site, ok, err := env.Files.Read(ctx, path)
	if err != nil {
		return err
	}
	// certbot edits the site in place, so only rewrite when it drifted.
	if !ok || !siteMatches(site, opts) || opts.Force {
		if err := env.Files.Write(ctx, path, []byte(RenderSite(opts)), rootfile.WithMode(0o644)); err != nil {
			return err
		}
	}
	if _, err := env.Exec.Run(ctx, []string{"nginx", "-t"}, rootexec.Capture()); err != nil {
		return fmt.Errorf("nginx rejected %s: %w", path, err)
	}

	systemd := service.New(env.Exec)
	if err := systemd.EnableNow(ctx, "nginx"); err != nil {
		return err
	}
	if err := systemd.Reload(ctx, "nginx"); err != nil {
		return err
	}

	if !certbot {
		return nil
	}
	hasCert, err := env.Files.Exists(ctx, CertPath(domain))
	if err != nil {
		return err
	}
	if hasCert && !opts.Force {
		return nil
	}
	if _, err := env.Exec.Run(ctx, certbotArgv(opts), rootexec.Capture()); err != nil {
		return fmt.Errorf("certificate for %s not issued; check DNS points at this host: %w", domain, err)
	}
	env.Log().Info("certificate issued", zap.String("domain", domain))
	return nil
}

// SitePath is the managed server block for domain.
func SitePath(domain string) string {
	return "/etc/nginx/conf.d/harden-" + domain + ".conf"
}

// CertPath is where certbot stores the chain for domain.
func CertPath(domain string) string {
	return "/etc/letsencrypt/live/" + domain + "/fullchain.pem"
}

// RenderSite returns the server block for opts.
func RenderSite(opts *phases.Options) string {
	domain := opts.String(InputDomain)
	upstream := upstreamName(domain)

	var b strings.Builder
	b.WriteString(marker + ". certbot may add TLS directives below.\n")
	fmt.Fprintf(&b, "upstream %s {\n", upstream)
	for _, backend := range opts.List(InputBackends) {
		fmt.Fprintf(&b, "    server %s;\n", backend)
	}
	b.WriteString("}\n\n")
	b.WriteString("server {\n")
	b.WriteString("    listen 80;\n")
	b.WriteString("    listen [::]:80;\n")
	fmt.Fprintf(&b, "    %s\n\n", serverNames(opts))
	b.WriteString("    location / {\n")
	fmt.Fprintf(&b, "        proxy_pass http://%s;\n", upstream)
	b.WriteString("        proxy_set_header Host $host;\n")
	b.WriteString("        proxy_set_header X-Real-IP $remote_addr;\n")
	b.WriteString("        proxy_set_header X-Forwarded-For $proxy_add_x_forwarded_for;\n")
	b.WriteString("        proxy_set_header X-Forwarded-Proto $scheme;\n")
	b.WriteString("    }\n")
	b.WriteString("}\n")
	return b.String()
}

// siteMatches checks the parts of the site certbot leaves alone.
func siteMatches(site string, opts *phases.Options) bool {
	if !strings.HasPrefix(site, marker) || !strings.Contains(site, serverNames(opts)) {
		return false
	}
	for _, backend := range opts.List(InputBackends) {
		if !strings.Contains(site, "server "+backend+";") {
			return false
		}
	}
	return true
}

func serverNames(opts *phases.Options) string {
	names := append([]string{opts.String(InputDomain)}, opts.List(InputExtraDomains)...)
	return "server_name " + strings.Join(names, " ") + ";"
}

func upstreamName(domain string) string {
	return "harden_" + strings.NewReplacer(".", "_", "-", "_").Replace(domain)
}

func packages(pm distro.PackageManager, certbot bool) []string {
	pkgs := []string{"nginx"}
	if !certbot {
		return pkgs
	}
	if pm == distro.Pacman {
		return append(pkgs, "certbot", "certbot-nginx")
	}
	return append(pkgs, "certbot", "python3-certbot-nginx")
}

func certbotArgv(opts *phases.Options) []string {
	argv := []string{"certbot", "--nginx", "--non-interactive", "--agree-tos", "--redirect"}
	if email := opts.String(InputEmail); email != "" {
		argv = append(argv, "--email", email)
	} else {
		argv = append(argv, "--register-unsafely-without-email")
	}
	argv = append(argv, "-d", opts.String(InputDomain))
	for _, extra := range opts.List(InputExtraDomains) {
		argv = append(argv, "-d", extra)
	}
	return argv
}
