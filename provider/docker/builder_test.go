package docker

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/diversitus/infra/provider"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-containerregistry/pkg/authn"
)

type call struct {
	Stdin string
	Args  []string
}

func fakeBuilder(fail string) (*Builder, *[]call) {
	var calls []call
	b := &Builder{
		run: func(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, error) {
			calls = append(calls, call{Stdin: string(stdin), Args: append([]string{name}, args...)})
			if args[0] == fail {
				return []byte("step 1\nstep 2\nno space left on device\n"), errors.New("exit status 1")
			}
			return nil, nil
		},
		digest: func(ctx context.Context, ref string, auth authn.Authenticator) (string, error) {
			return "sha256:abc", nil
		},
	}
	return b, &calls
}

var spec = provider.ImageSpec{
	Context:       "./app",
	Dockerfile:    "Dockerfile",
	RepositoryURL: "123456789012.dkr.ecr.us-east-1.amazonaws.com/app",
	Platform:      "linux/amd64",
	Tag:           "latest",
}

func TestBuilder_BuildAndPush(t *testing.T) {
	b, calls := fakeBuilder("")
	b.Credentials = func(ctx context.Context) (*provider.RegistryCredentials, error) {
		return &provider.RegistryCredentials{Server: "https://123456789012.dkr.ecr.us-east-1.amazonaws.com", Username: "AWS", Password: "secret"}, nil
	}

	got, err := b.BuildAndPush(context.Background(), spec)
	if err != nil {
		t.Fatalf("BuildAndPush() error = %v", err)
	}
	want := &provider.ImageInfo{
		URI:    "123456789012.dkr.ecr.us-east-1.amazonaws.com/app:latest",
		Digest: "sha256:abc",
	}
	if diff := cmp.Diff(got, want); diff != "" {
		t.Errorf("BuildAndPush() (-got +want)\n%s", diff)
	}

	wantCalls := []call{
		{Stdin: "secret", Args: []string{"docker", "login", "--username", "AWS", "--password-stdin", "https://123456789012.dkr.ecr.us-east-1.amazonaws.com"}},
		{Args: []string{"docker", "build", "--tag", want.URI, "--platform", "linux/amd64", "--file", "app/Dockerfile", "./app"}},
		{Args: []string{"docker", "push", want.URI}},
	}
	if diff := cmp.Diff(*calls, wantCalls); diff != "" {
		t.Errorf("Commands (-got +want)\n%s", diff)
	}
}

func TestBuilder_buildError(t *testing.T) {
	b, calls := fakeBuilder("build")
	_, err := b.BuildAndPush(context.Background(), spec)
	if err == nil {
		t.Fatal("BuildAndPush() did not return an error")
	}
	if !strings.Contains(err.Error(), "no space left on device") {
		t.Errorf("Error does not contain build output: %v", err)
	}
	if len(*calls) != 1 {
		t.Errorf("Got %d commands, want 1 (no push after failed build)", len(*calls))
	}
}

func TestBuilder_invalidReference(t *testing.T) {
	b, calls := fakeBuilder("")
	s := spec
	s.RepositoryURL = "Not A Repo"
	if _, err := b.BuildAndPush(context.Background(), s); err == nil {
		t.Fatal("BuildAndPush() did not return an error")
	}
	if len(*calls) != 0 {
		t.Errorf("Got %d commands, want 0", len(*calls))
	}
}
