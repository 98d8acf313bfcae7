package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/hashicorp/hcl2/gohcl"
	"github.com/hashicorp/hcl2/hcl"
	"github.com/hashicorp/hcl2/hclparse"
	"github.com/pkg/errors"
	"golang.org/x/crypto/ssh/terminal"
)

// A Loader loads the stack configuration from disk.
//
// The zero value is ready to load files.
type Loader struct {
	parser *hclparse.Parser
}

// Root finds the root directory of a project. The returned string is the
// absolute path to the directory containing the config file.
//
// If the given dir does not contain a config file, parent directories are
// traversed until one is found. An empty string is returned if no config file
// was found.
func (l *Loader) Root(dir string) (string, error) {
	// Check that dir itself exists
	if _, err := os.Stat(dir); err != nil {
		return "", err
	}
	stat, err := os.Stat(filepath.Join(dir, Filename))
	if err == nil && !stat.IsDir() {
		// Match
		return filepath.Abs(dir)
	}

	parent := filepath.Dir(dir)
	if parent == dir || parent[len(parent)-1] == filepath.Separator {
		return "", nil
	}

	return l.Root(parent)
}

// Load loads the configuration file from the given directory. Values not set
// in the file are read from the environment or set to their defaults, and the
// result is validated.
//
// Syntax and decoding errors are returned as hcl.Diagnostics and can be
// printed with WriteDiagnostics.
func (l *Loader) Load(dir string) (*Stack, error) {
	if l.parser == nil {
		l.parser = hclparse.NewParser()
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	filename := filepath.Join(abs, Filename)

	f, diags := l.parser.ParseHCLFile(filename)
	if diags.HasErrors() {
		return nil, diags
	}

	stack := &Stack{Dir: abs}
	if diags := gohcl.DecodeBody(f.Body, nil, stack); diags.HasErrors() {
		return nil, diags
	}

	stack.applyEnv()
	stack.applyDefaults()
	if err := stack.Validate(); err != nil {
		return nil, errors.Wrap(err, filename)
	}
	return stack, nil
}

// WriteDiagnostics writes diagnostics as a human readable string to w. It
// should only be used for diagnostics that originate from files loaded by
// Loader.
//
// If a TTY is attached, the output will be colorized and wrap at the terminal
// width. Otherwise, wrap will occur at 78 characters and output won't contain
// ANSI escape characters.
func (l *Loader) WriteDiagnostics(w io.Writer, diags hcl.Diagnostics) {
	var files map[string]*hcl.File
	if l.parser != nil {
		files = l.parser.Files()
	}
	cols, _, err := terminal.GetSize(0)
	if err != nil {
		cols = 78
	}
	color := terminal.IsTerminal(0)
	wr := hcl.NewDiagnosticTextWriter(w, files, uint(cols), color)
	if err := wr.WriteDiagnostics(diags); err != nil {
		fmt.Fprintln(w, err)
	}
}
