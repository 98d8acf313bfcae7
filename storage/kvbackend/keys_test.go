package kvbackend

import (
	"testing"

	"github.com/pkg/errors"
)

func TestSplitKey(t *testing.T) {
	tests := []struct {
		input      string
		wantBucket string
		wantName   string
		wantErr    string
	}{
		{input: "", wantErr: "no bucket"},
		{input: "jobs", wantErr: "no bucket"},
		{input: "/jobs", wantErr: "starts with a slash"},
		{input: "/diversitus/jobs", wantErr: "starts with a slash"},
		{input: "jobs/", wantErr: "ends with a slash"},
		{input: "diversitus/jobs/", wantErr: "ends with a slash"},
		{input: "diversitus/jobs", wantBucket: "diversitus", wantName: "jobs"},
		{input: "diversitus/jobs/Frontend%20Developer", wantBucket: "diversitus/jobs", wantName: "Frontend%20Developer"},
		{input: "diversitus/companies/UI%2FUX", wantBucket: "diversitus/companies", wantName: "UI%2FUX"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			bucket, name, err := splitKey(tt.input)
			if tt.wantErr != "" {
				ierr, ok := errors.Cause(err).(*InvalidKeyError)
				if !ok {
					t.Fatalf("Error = %v, want *InvalidKeyError", err)
				}
				if ierr.Reason != tt.wantErr {
					t.Errorf("Reason = %q, want = %q", ierr.Reason, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Error = %v", err)
			}
			if bucket != tt.wantBucket {
				t.Errorf("Bucket = %q, want = %q", bucket, tt.wantBucket)
			}
			if name != tt.wantName {
				t.Errorf("Name = %q, want = %q", name, tt.wantName)
			}
		})
	}
}
