package provider

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestPolicyDocument_JSON(t *testing.T) {
	tests := []struct {
		name    string
		input   PolicyDocument
		want    string
		wantErr bool
	}{
		{
			"AssumeRole",
			PolicyDocument{
				Statements: []PolicyStatement{{
					ID:         "test",
					Effect:     "Allow",
					Actions:    []string{"sts:AssumeRole"},
					Principals: map[string][]string{"Service": {"ecs-tasks.amazonaws.com"}},
				}},
			},
			minify(`{
				"Version": "2012-10-17",
				"Statement": [{
					"Sid": "test",
					"Effect": "Allow",
					"Action": "sts:AssumeRole",
					"Principal": {
						"Service": "ecs-tasks.amazonaws.com"
					}
				}]
			}`),
			false,
		},
		{
			"Tables",
			PolicyDocument{
				Version: "2012-10-17",
				Statements: []PolicyStatement{{
					Effect:  "Allow",
					Actions: []string{"dynamodb:Scan", "dynamodb:Query"},
					Resources: []string{
						"arn:aws:dynamodb:us-east-1:123456789012:table/users",
						"arn:aws:dynamodb:us-east-1:123456789012:table/users/index/EmailIndex",
					},
				}},
			},
			minify(`{
				"Version": "2012-10-17",
				"Statement": [{
					"Effect": "Allow",
					"Action": [
						"dynamodb:Scan",
						"dynamodb:Query"
					],
					"Resource": [
						"arn:aws:dynamodb:us-east-1:123456789012:table/users",
						"arn:aws:dynamodb:us-east-1:123456789012:table/users/index/EmailIndex"
					]
				}]
			}`),
			false,
		},
		{
			"InvalidEffect",
			PolicyDocument{Statements: []PolicyStatement{{Effect: "allow"}}},
			"",
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.input.JSON()
			if (err != nil) != tt.wantErr {
				t.Fatalf("JSON() error = %v, wantErr %t", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("JSON()\nGot:  %s\nWant: %s", got, tt.want)
			}
		})
	}
}

func TestAssumeRolePolicy(t *testing.T) {
	got := AssumeRolePolicy("ecs-tasks.amazonaws.com")
	want := minify(`{
		"Version": "2012-10-17",
		"Statement": [{
			"Effect": "Allow",
			"Action": "sts:AssumeRole",
			"Principal": {"Service": "ecs-tasks.amazonaws.com"}
		}]
	}`)
	if got != want {
		t.Errorf("AssumeRolePolicy()\nGot:  %s\nWant: %s", got, want)
	}
}

func minify(str string) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(str)); err != nil {
		panic(err)
	}
	return buf.String()
}
