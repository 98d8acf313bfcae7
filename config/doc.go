// Package config loads the stack configuration from disk.
//
// The configuration is read from a stack.hcl file in the project root:
//
//  project "diversitus" {
//    region      = "us-east-1"
//    domain      = "api.example.com"  # served by the load balancer
//    root_domain = "example.com"      # hosted zone
//  }
//
//  app {
//    context    = ".."
//    dockerfile = "backend/app/Dockerfile"
//  }
//
//  seed {
//    file = "seed.yaml"
//  }
//
// Only the project block is required. Values that are not set in the file are
// read from DEPLOY_* environment variables, for example DEPLOY_DOMAIN.
package config
