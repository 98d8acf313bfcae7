package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"gopkg.in/go-playground/validator.v9"
)

// Filename is the name of the configuration file.
const Filename = "stack.hcl"

// A Stack is the configuration for a deployment.
type Stack struct {
	// Dir is the absolute path to the directory containing the config file.
	// Relative paths in the configuration are relative to Dir.
	Dir string

	Project Project `hcl:"project,block"`
	App     *App    `hcl:"app,block"`
	Seed    *Seed   `hcl:"seed,block"`
}

// Project identifies the deployment.
type Project struct {
	Name       string `hcl:"name,label" validate:"required,resname"`
	Region     string `hcl:"region,optional" validate:"required"`
	Domain     string `hcl:"domain,optional" validate:"required,fqdn"`
	RootDomain string `hcl:"root_domain,optional" validate:"required,fqdn"`
}

// App configures the container image and the service running it.
type App struct {
	Context      string            `hcl:"context,optional"`
	Dockerfile   string            `hcl:"dockerfile,optional"`
	Platform     string            `hcl:"platform,optional"`
	Tag          string            `hcl:"tag,optional"`
	Port         int64             `hcl:"port,optional" validate:"min=1,max=65535"`
	CPU          int64             `hcl:"cpu,optional" validate:"oneof=256 512 1024 2048 4096"`
	Memory       int64             `hcl:"memory,optional" validate:"min=512"`
	DesiredCount int64             `hcl:"desired_count,optional" validate:"min=0"`
	Environment  map[string]string `hcl:"environment,optional"`
}

// Seed configures the seed data.
type Seed struct {
	// File is a YAML file with the seed records. If not set, the built in
	// dataset is used.
	File string `hcl:"file,optional"`

	// State is the bbolt file storing the identifiers assigned to seed
	// records. If not set, ~/.diversitus/state.db is used.
	State string `hcl:"state,optional"`

	// Disabled skips seeding.
	Disabled bool `hcl:"disabled,optional"`
}

// Defaults for optional values.
const (
	DefaultRegion       = "us-east-1"
	DefaultDockerfile   = "Dockerfile"
	DefaultPlatform     = "linux/amd64"
	DefaultTag          = "latest"
	DefaultPort         = 8080
	DefaultCPU          = 256
	DefaultMemory       = 512
	DefaultDesiredCount = 1
)

var check = validator.New()

func init() {
	mustRegister(check, "resname", validResourceName)
}

func mustRegister(v *validator.Validate, name string, fn validator.Func) {
	if err := v.RegisterValidation(name, fn); err != nil {
		panic(err)
	}
}

// validResourceName checks that a name can be used as a prefix for AWS
// resource names, which are the most restrictive for load balancers.
func validResourceName(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if len(s) == 0 || len(s) > 20 {
		return false
	}
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		case r == '-' && i > 0 && i < len(s)-1:
		default:
			return false
		}
	}
	return true
}

// Getenv looks up an environment variable. Replaced in tests.
var Getenv = os.Getenv

// applyEnv sets values that are not set in the file from the environment.
func (s *Stack) applyEnv() {
	set := func(dst *string, key string) {
		if *dst == "" {
			*dst = Getenv(key)
		}
	}
	set(&s.Project.Region, "DEPLOY_REGION")
	set(&s.Project.Domain, "DEPLOY_DOMAIN")
	set(&s.Project.RootDomain, "DEPLOY_ROOT_DOMAIN")
	if s.App == nil {
		s.App = &App{}
	}
	set(&s.App.Tag, "DEPLOY_IMAGE_TAG")
	if s.Project.Region == "" {
		s.Project.Region = Getenv("AWS_REGION")
	}
}

// applyDefaults sets default values and resolves relative paths.
func (s *Stack) applyDefaults() {
	if s.Project.Region == "" {
		s.Project.Region = DefaultRegion
	}
	if s.App == nil {
		s.App = &App{}
	}
	a := s.App
	if a.Context == "" {
		a.Context = "."
	}
	if !filepath.IsAbs(a.Context) {
		a.Context = filepath.Join(s.Dir, a.Context)
	}
	if a.Dockerfile == "" {
		a.Dockerfile = DefaultDockerfile
	}
	if a.Platform == "" {
		a.Platform = DefaultPlatform
	}
	if a.Tag == "" {
		a.Tag = DefaultTag
	}
	if a.Port == 0 {
		a.Port = DefaultPort
	}
	if a.CPU == 0 {
		a.CPU = DefaultCPU
	}
	if a.Memory == 0 {
		a.Memory = DefaultMemory
	}
	if a.DesiredCount == 0 {
		a.DesiredCount = DefaultDesiredCount
	}
	if s.Seed == nil {
		s.Seed = &Seed{}
	}
	if s.Seed.File != "" && !filepath.IsAbs(s.Seed.File) {
		s.Seed.File = filepath.Join(s.Dir, s.Seed.File)
	}
}

// A ValidationError is returned when the configuration is invalid.
type ValidationError struct {
	Field string
	Tag   string
	Value interface{}
}

func (e ValidationError) Error() string {
	if e.Tag == "" {
		return fmt.Sprintf("%s: %v", e.Field, e.Value)
	}
	return fmt.Sprintf("%s: validation failed on %q, got %v", e.Field, e.Tag, e.Value)
}

// Validate validates the configuration. All validation errors are returned,
// combined with multierr.
func (s *Stack) Validate() error {
	var errs error
	if err := check.Struct(s); err != nil {
		verrs, ok := err.(validator.ValidationErrors)
		if !ok {
			return errors.Wrap(err, "validate")
		}
		for _, fe := range verrs {
			field := strings.TrimPrefix(fe.Namespace(), "Stack.")
			errs = multierr.Append(errs, ValidationError{Field: field, Tag: fe.Tag(), Value: fe.Value()})
		}
	}
	d, root := strings.TrimSuffix(s.Project.Domain, "."), strings.TrimSuffix(s.Project.RootDomain, ".")
	if d != "" && root != "" && d != root && !strings.HasSuffix(d, "."+root) {
		errs = multierr.Append(errs, ValidationError{
			Field: "Project.Domain",
			Value: fmt.Sprintf("%s is not in zone %s", d, root),
		})
	}
	return errs
}
