package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	defaultProfile  = "./rebasectl.toml"
	defaultEndpoint = "http://127.0.0.1:8090"
	tokenEnv        = "REBASECTL_TOKEN"
	defaultPassEnv  = "REBASE_KEYSTORE_PASS"
	defaultSecret   = "REBASED_AUTH_SECRET"
)

// profile is the on-disk operator profile. Every field may be overridden on
// the command line.
type profile struct {
	Endpoint     string `toml:"Endpoint"`
	Token        string `toml:"Token"`
	KeystorePath string `toml:"KeystorePath"`
	PassEnv      string `toml:"PassEnv"`
	SecretEnv    string `toml:"SecretEnv"`
	Issuer       string `toml:"Issuer"`
	Audience     string `toml:"Audience"`
}

// loadProfile reads path. A missing default profile is not an error.
func loadProfile(path string, explicit bool) (profile, error) {
	p := profile{}
	if _, err := toml.DecodeFile(path, &p); err != nil {
		if errors.Is(err, fs.ErrNotExist) && !explicit {
			p.normalize()
			return p, nil
		}
		return profile{}, fmt.Errorf("read profile %s: %w", path, err)
	}
	p.normalize()
	return p, nil
}

func (p *profile) normalize() {
	p.Endpoint = strings.TrimSpace(p.Endpoint)
	if p.Endpoint == "" {
		p.Endpoint = defaultEndpoint
	}
	p.Token = strings.TrimSpace(p.Token)
	p.KeystorePath = strings.TrimSpace(p.KeystorePath)
	if p.PassEnv = strings.TrimSpace(p.PassEnv); p.PassEnv == "" {
		p.PassEnv = defaultPassEnv
	}
	if p.SecretEnv = strings.TrimSpace(p.SecretEnv); p.SecretEnv == "" {
		p.SecretEnv = defaultSecret
	}
}

// save writes the profile, replacing any existing file.
func (p profile) save(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(p)
}

// token picks the bearer token: explicit flag, then environment, then the
// profile.
func (p profile) token(flagValue string) string {
	if v := strings.TrimSpace(flagValue); v != "" {
		return v
	}
	if v := strings.TrimSpace(os.Getenv(tokenEnv)); v != "" {
		return v
	}
	return p.Token
}
