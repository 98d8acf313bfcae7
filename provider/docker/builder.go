// Package docker builds container images with the docker CLI and pushes them
// to a registry.
package docker

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/diversitus/infra/provider"
	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// CredentialsFunc returns credentials for a registry.
type CredentialsFunc func(ctx context.Context) (*provider.RegistryCredentials, error)

// A Builder builds and pushes images.
type Builder struct {
	// Binary is the docker executable. If not set, docker is used from PATH.
	Binary string

	// Credentials, if set, are used to log in to the registry before
	// pushing. Otherwise the credentials from the docker configuration are
	// used.
	Credentials CredentialsFunc

	Logger *zap.Logger

	// run executes a command and returns its combined output. Replaced in
	// tests.
	run func(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, error)

	// digest resolves the digest of a pushed image. Replaced in tests.
	digest func(ctx context.Context, ref string, auth authn.Authenticator) (string, error)
}

var _ provider.ImageBuilder = (*Builder)(nil)

// BuildAndPush builds the image for the given platform and pushes it. The
// returned digest is resolved from the registry after the push.
func (b *Builder) BuildAndPush(ctx context.Context, spec provider.ImageSpec) (*provider.ImageInfo, error) {
	logger := b.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	run := b.run
	if run == nil {
		run = runCommand
	}
	digest := b.digest
	if digest == nil {
		digest = remoteDigest
	}
	bin := b.Binary
	if bin == "" {
		bin = "docker"
	}

	uri := fmt.Sprintf("%s:%s", spec.RepositoryURL, spec.Tag)
	if _, err := name.ParseReference(uri); err != nil {
		return nil, errors.Wrapf(err, "parse image reference %q", uri)
	}
	logger = logger.With(zap.String("image", uri), zap.String("platform", spec.Platform))

	auth := authn.Anonymous
	if b.Credentials != nil {
		creds, err := b.Credentials(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "get registry credentials")
		}
		logger.Debug("Login", zap.String("server", creds.Server))
		out, err := run(ctx, []byte(creds.Password), bin, "login", "--username", creds.Username, "--password-stdin", creds.Server)
		if err != nil {
			return nil, errors.Wrapf(err, "docker login: %s", strings.TrimSpace(string(out)))
		}
		auth = authn.FromConfig(authn.AuthConfig{Username: creds.Username, Password: creds.Password})
	}

	logger.Info("Build image")
	out, err := run(ctx, nil, bin, buildArgs(spec, uri)...)
	if err != nil {
		return nil, errors.Wrapf(err, "docker build: %s", lastLines(out, 10))
	}

	logger.Info("Push image")
	out, err = run(ctx, nil, bin, "push", uri)
	if err != nil {
		return nil, errors.Wrapf(err, "docker push: %s", lastLines(out, 10))
	}

	d, err := digest(ctx, uri, auth)
	if err != nil {
		return nil, errors.Wrap(err, "resolve digest")
	}
	logger.Debug("Pushed", zap.String("digest", d))
	return &provider.ImageInfo{URI: uri, Digest: d}, nil
}

func buildArgs(spec provider.ImageSpec, uri string) []string {
	args := []string{"build", "--tag", uri}
	if spec.Platform != "" {
		args = append(args, "--platform", spec.Platform)
	}
	if spec.Dockerfile != "" {
		args = append(args, "--file", filepath.Join(spec.Context, spec.Dockerfile))
	}
	return append(args, spec.Context)
}

func runCommand(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	return cmd.CombinedOutput()
}

func remoteDigest(ctx context.Context, ref string, auth authn.Authenticator) (string, error) {
	r, err := name.ParseReference(ref)
	if err != nil {
		return "", err
	}
	desc, err := remote.Head(r, remote.WithAuth(auth), remote.WithContext(ctx))
	if err != nil {
		return "", err
	}
	return desc.Digest.String(), nil
}

func lastLines(out []byte, n int) string {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
