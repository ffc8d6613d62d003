package issuer

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// CertbotIssuer shells out to certbot with the dns-route53 plugin. The
// certbot binary owns DNS validation, timeouts and retries; this type only
// runs the command and collects the resulting PEM files.
type CertbotIssuer struct {
	Email string

	// WorkDir overrides certbot's work/log directory, mainly for tests.
	// Empty means the OS temp dir.
	WorkDir string
}

func NewCertbotIssuer(email string) *CertbotIssuer {
	return &CertbotIssuer{Email: email}
}

func (c *CertbotIssuer) Issue(ctx context.Context, domain string) (Bundle, error) {
	workDir := c.WorkDir
	if workDir == "" {
		workDir = os.TempDir()
	}

	configDir, err := os.MkdirTemp(workDir, "certbot-")
	if err != nil {
		return Bundle{}, fmt.Errorf("create certbot config dir: %w", err)
	}
	defer os.RemoveAll(configDir)

	cmd := exec.CommandContext(ctx, "certbot", "certonly",
		"--dns-route53",
		"--domains", domain,
		"--non-interactive",
		"--agree-tos",
		"--config-dir", configDir,
		"--work-dir", workDir,
		"--logs-dir", workDir,
		"--email", c.Email,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return Bundle{}, fmt.Errorf("certbot certonly for %s: %w: %s", domain, err, out)
	}

	return readBundle(filepath.Join(configDir, "live", domain))
}

func readBundle(dir string) (Bundle, error) {
	var b Bundle
	var err error
	if b.Cert, err = os.ReadFile(filepath.Join(dir, "cert.pem")); err != nil {
		return Bundle{}, fmt.Errorf("read cert.pem: %w", err)
	}
	if b.Key, err = os.ReadFile(filepath.Join(dir, "privkey.pem")); err != nil {
		return Bundle{}, fmt.Errorf("read privkey.pem: %w", err)
	}
	if b.Chain, err = os.ReadFile(filepath.Join(dir, "chain.pem")); err != nil {
		return Bundle{}, fmt.Errorf("read chain.pem: %w", err)
	}
	return b, nil
}
