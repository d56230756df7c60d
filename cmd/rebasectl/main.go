package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/MRAlirad/ccip-rebase-token/cmd/internal/passphrase"
	"github.com/MRAlirad/ccip-rebase-token/crypto"
	"github.com/MRAlirad/ccip-rebase-token/services/rebased/client"
	rbmw "github.com/MRAlirad/ccip-rebase-token/services/rebased/middleware"
)

type env struct {
	stdout io.Writer
	stderr io.Writer
}

type command struct {
	summary string
	run     func(e env, args []string) error
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"keygen":        {"generate a holder key into an encrypted keystore", runKeygen},
		"address":       {"print the address of a keystore", runAddress},
		"token":         {"issue a bearer token for an address (needs the service secret)", runToken},
		"init-profile":  {"write a profile file", runInitProfile},
		"mint":          {"mint tokens to an account", runMint},
		"burn":          {"burn tokens from an account (--amount max burns everything)", runBurn},
		"transfer":      {"transfer tokens to an account", runTransfer},
		"transfer-from": {"transfer using an allowance", runTransferFrom},
		"approve":       {"set an allowance for a spender", runApprove},
		"realize":       {"fold pending interest into principal", runRealize},
		"set-rate":      {"move the global interest rate", runSetRate},
		"grant":         {"grant a capability", runGrant},
		"revoke":        {"revoke a capability", runRevoke},
		"pause":         {"pause balance-changing operations", runPause},
		"resume":        {"resume balance-changing operations", runResume},
		"account":       {"show an account", runAccount},
		"balance":       {"show an account's effective balance", runBalance},
		"protocol":      {"show protocol state", runProtocol},
		"allowance":     {"show an allowance", runAllowance},
		"capabilities":  {"list an account's capabilities", runCapabilities},
		"events":        {"list journaled events", runEvents},
	}
}

func main() {
	if err := run(os.Args[1:], env{stdout: os.Stdout, stderr: os.Stderr}); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, e env) error {
	if len(args) == 0 {
		usage(e.stderr)
		return errors.New("command required")
	}
	cmd, ok := commands[args[0]]
	if !ok {
		usage(e.stderr)
		return fmt.Errorf("unknown command %q", args[0])
	}
	return cmd.run(e, args[1:])
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "Usage: rebasectl <command> [flags]")
	fmt.Fprintln(w)
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-14s %s\n", name, commands[name].summary)
	}
}

// apiFlags are shared by every command that talks to the service.
type apiFlags struct {
	profilePath string
	endpoint    string
	token       string
	idemKey     string
	timeout     time.Duration
}

func (f *apiFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.profilePath, "profile", defaultProfile, "Path to the rebasectl profile")
	fs.StringVar(&f.endpoint, "endpoint", "", "Service endpoint (overrides the profile)")
	fs.StringVar(&f.token, "token", "", "Bearer token (overrides "+tokenEnv+" and the profile)")
	fs.StringVar(&f.idemKey, "idempotency-key", "", "Idempotency key for mutating calls")
	fs.DurationVar(&f.timeout, "timeout", 30*time.Second, "Request timeout")
}

func (f *apiFlags) client(fs *flag.FlagSet) (*client.Client, context.Context, context.CancelFunc, error) {
	p, err := loadProfile(f.profilePath, flagSet(fs, "profile"))
	if err != nil {
		return nil, nil, nil, err
	}
	endpoint := p.Endpoint
	if strings.TrimSpace(f.endpoint) != "" {
		endpoint = f.endpoint
	}
	c, err := client.New(endpoint, client.WithToken(p.token(f.token)))
	if err != nil {
		return nil, nil, nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	if f.idemKey != "" {
		ctx = client.WithIdempotencyKey(ctx, f.idemKey)
	}
	return c, ctx, cancel, nil
}

func flagSet(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

func newFlagSet(name string, e env) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(e.stderr)
	return fs
}

func required(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("--%s is required", name)
	}
	return nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runKeygen(e env, args []string) error {
	fs := newFlagSet("keygen", e)
	keystorePath := fs.String("keystore", "holder.keystore", "Output path for the keystore file")
	passEnv := fs.String("pass-env", defaultPassEnv, "Environment variable containing the keystore passphrase")
	force := fs.Bool("force", false, "Overwrite an existing keystore file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !*force {
		if _, err := os.Stat(*keystorePath); err == nil {
			return fmt.Errorf("keystore file %s already exists (use --force to overwrite)", *keystorePath)
		} else if !os.IsNotExist(err) {
			return err
		}
	}
	pass, err := passphrase.NewSource(*passEnv).WithLabel("holder keystore").Get()
	if err != nil {
		return err
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return err
	}
	addr, err := crypto.SaveToKeystore(*keystorePath, key, pass)
	if err != nil {
		return fmt.Errorf("failed to write keystore: %w", err)
	}
	fmt.Fprintf(e.stdout, "%s\n", addr.String())
	return nil
}

func loadKeystoreAddress(path, passEnv string) (crypto.Address, error) {
	pass, err := passphrase.NewSource(passEnv).WithLabel("holder keystore").Get()
	if err != nil {
		return crypto.Address{}, err
	}
	key, err := crypto.LoadFromKeystore(path, pass)
	if err != nil {
		return crypto.Address{}, err
	}
	return key.PubKey().Address(), nil
}

func runAddress(e env, args []string) error {
	fs := newFlagSet("address", e)
	keystorePath := fs.String("keystore", "holder.keystore", "Keystore file")
	passEnv := fs.String("pass-env", defaultPassEnv, "Environment variable containing the keystore passphrase")
	if err := fs.Parse(args); err != nil {
		return err
	}
	addr, err := loadKeystoreAddress(*keystorePath, *passEnv)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "%s\n%s\n", addr.String(), addr.Hex())
	return nil
}

func runToken(e env, args []string) error {
	fs := newFlagSet("token", e)
	profilePath := fs.String("profile", defaultProfile, "Path to the rebasectl profile")
	subject := fs.String("subject", "", "Address the token authenticates (defaults to the profile keystore)")
	ttl := fs.Duration("ttl", time.Hour, "Token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	p, err := loadProfile(*profilePath, flagSet(fs, "profile"))
	if err != nil {
		return err
	}
	var addr crypto.Address
	switch {
	case strings.TrimSpace(*subject) != "":
		if addr, err = crypto.DecodeAddress(*subject); err != nil {
			return err
		}
	case p.KeystorePath != "":
		if addr, err = loadKeystoreAddress(p.KeystorePath, p.PassEnv); err != nil {
			return err
		}
	default:
		return errors.New("--subject or a profile KeystorePath is required")
	}
	secret, ok := os.LookupEnv(p.SecretEnv)
	if !ok || strings.TrimSpace(secret) == "" {
		return fmt.Errorf("environment variable %s is not set", p.SecretEnv)
	}
	token, err := rbmw.IssueToken(secret, addr, p.Issuer, p.Audience, *ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(e.stdout, token)
	return nil
}

func runInitProfile(e env, args []string) error {
	fs := newFlagSet("init-profile", e)
	path := fs.String("profile", defaultProfile, "Profile file to write")
	endpoint := fs.String("endpoint", defaultEndpoint, "Service endpoint")
	keystorePath := fs.String("keystore", "", "Holder keystore used by the token command")
	issuer := fs.String("issuer", "", "Token issuer expected by the service")
	audience := fs.String("audience", "", "Token audience expected by the service")
	force := fs.Bool("force", false, "Overwrite an existing profile")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !*force {
		if _, err := os.Stat(*path); err == nil {
			return fmt.Errorf("profile %s already exists (use --force to overwrite)", *path)
		}
	}
	p := profile{Endpoint: *endpoint, KeystorePath: *keystorePath, Issuer: *issuer, Audience: *audience}
	p.normalize()
	if err := p.save(*path); err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "Wrote %s\n", *path)
	return nil
}
