package seed

import (
	"bytes"
	_ "embed" // Default seed data.
	"io"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultData []byte

// A File is a set of seed data.
//
//   companies:
//     - name: Creative Co.
//       traits:
//         collaboration: 8
//   jobs:
//     - title: Frontend Developer
//       company: Creative Co.
//       description: Build beautiful and accessible user interfaces.
type File struct {
	Companies []CompanyInput `yaml:"companies"`
	Jobs      []JobInput     `yaml:"jobs"`
}

// Load decodes seed data. Unknown fields are rejected.
func Load(r io.Reader) (*File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var f File
	if err := dec.Decode(&f); err != nil {
		if err == io.EOF {
			return &File{}, nil
		}
		return nil, errors.Wrap(err, "decode seed data")
	}
	return &f, nil
}

// LoadFile decodes seed data from a file.
func LoadFile(filename string) (*File, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrap(err, "open seed file")
	}
	defer f.Close() // nolint: errcheck
	data, err := Load(f)
	if err != nil {
		return nil, errors.Wrap(err, filename)
	}
	return data, nil
}

// Default returns the default seed data: three companies and five jobs.
func Default() *File {
	f, err := Load(bytes.NewReader(defaultData))
	if err != nil {
		panic(err)
	}
	return f
}
