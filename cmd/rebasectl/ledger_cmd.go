package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/MRAlirad/ccip-rebase-token/services/rebased/api"
	"github.com/MRAlirad/ccip-rebase-token/services/rebased/client"
)

// apiCommand parses args, builds a client and hands both to call. setup
// registers command specific flags before parsing.
func apiCommand(e env, name string, args []string, setup func(fs *flag.FlagSet) func() error, call func(ctx context.Context, c *client.Client) (interface{}, error)) error {
	fs := newFlagSet(name, e)
	var common apiFlags
	common.register(fs)
	validate := setup(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if validate != nil {
		if err := validate(); err != nil {
			return err
		}
	}
	c, ctx, cancel, err := common.client(fs)
	if err != nil {
		return err
	}
	defer cancel()
	out, err := call(ctx, c)
	if err != nil {
		return err
	}
	return printJSON(e.stdout, out)
}

func runMint(e env, args []string) error {
	var to, amount string
	return apiCommand(e, "mint", args, func(fs *flag.FlagSet) func() error {
		fs.StringVar(&to, "to", "", "Recipient address")
		fs.StringVar(&amount, "amount", "", "Amount in base units (1e18 per token)")
		return func() error {
			if err := required("to", to); err != nil {
				return err
			}
			return required("amount", amount)
		}
	}, func(ctx context.Context, c *client.Client) (interface{}, error) {
		return c.Mint(ctx, to, amount)
	})
}

func runBurn(e env, args []string) error {
	var from, amount string
	return apiCommand(e, "burn", args, func(fs *flag.FlagSet) func() error {
		fs.StringVar(&from, "from", "", "Account to burn from")
		fs.StringVar(&amount, "amount", "max", "Amount in base units or \"max\"")
		return func() error { return required("from", from) }
	}, func(ctx context.Context, c *client.Client) (interface{}, error) {
		return c.Burn(ctx, from, amount)
	})
}

func runTransfer(e env, args []string) error {
	var to, amount string
	return apiCommand(e, "transfer", args, func(fs *flag.FlagSet) func() error {
		fs.StringVar(&to, "to", "", "Recipient address")
		fs.StringVar(&amount, "amount", "", "Amount in base units or \"max\"")
		return func() error {
			if err := required("to", to); err != nil {
				return err
			}
			return required("amount", amount)
		}
	}, func(ctx context.Context, c *client.Client) (interface{}, error) {
		return c.Transfer(ctx, to, amount)
	})
}

func runTransferFrom(e env, args []string) error {
	var from, to, amount string
	return apiCommand(e, "transfer-from", args, func(fs *flag.FlagSet) func() error {
		fs.StringVar(&from, "from", "", "Owner whose allowance is spent")
		fs.StringVar(&to, "to", "", "Recipient address")
		fs.StringVar(&amount, "amount", "", "Amount in base units or \"max\"")
		return func() error {
			for name, value := range map[string]string{"from": from, "to": to, "amount": amount} {
				if err := required(name, value); err != nil {
					return err
				}
			}
			return nil
		}
	}, func(ctx context.Context, c *client.Client) (interface{}, error) {
		return c.TransferFrom(ctx, from, to, amount)
	})
}

func runApprove(e env, args []string) error {
	var spender, amount string
	return apiCommand(e, "approve", args, func(fs *flag.FlagSet) func() error {
		fs.StringVar(&spender, "spender", "", "Spender address")
		fs.StringVar(&amount, "amount", "", "Allowance in base units, 0 to revoke or \"max\" for unlimited")
		return func() error {
			if err := required("spender", spender); err != nil {
				return err
			}
			return required("amount", amount)
		}
	}, func(ctx context.Context, c *client.Client) (interface{}, error) {
		return c.Approve(ctx, spender, amount)
	})
}

func runRealize(e env, args []string) error {
	var account string
	return apiCommand(e, "realize", args, func(fs *flag.FlagSet) func() error {
		fs.StringVar(&account, "account", "", "Account to realize (defaults to the caller)")
		return nil
	}, func(ctx context.Context, c *client.Client) (interface{}, error) {
		return c.Realize(ctx, account)
	})
}

func runSetRate(e env, args []string) error {
	var rate string
	return apiCommand(e, "set-rate", args, func(fs *flag.FlagSet) func() error {
		fs.StringVar(&rate, "rate", "", "Per-second rate scaled by 1e18")
		return func() error { return required("rate", rate) }
	}, func(ctx context.Context, c *client.Client) (interface{}, error) {
		return c.SetGlobalRate(ctx, rate)
	})
}

func capabilityCommand(e env, name string, args []string, apply func(c *client.Client) func(context.Context, string, string) (*api.Capabilities, error)) error {
	var account, capability string
	return apiCommand(e, name, args, func(fs *flag.FlagSet) func() error {
		fs.StringVar(&account, "account", "", "Account address")
		fs.StringVar(&capability, "capability", "", "owner, rate_admin or mint_burn")
		return func() error {
			if err := required("account", account); err != nil {
				return err
			}
			return required("capability", capability)
		}
	}, func(ctx context.Context, c *client.Client) (interface{}, error) {
		return apply(c)(ctx, account, capability)
	})
}

func runGrant(e env, args []string) error {
	return capabilityCommand(e, "grant", args, func(c *client.Client) func(context.Context, string, string) (*api.Capabilities, error) {
		return c.Grant
	})
}

func runRevoke(e env, args []string) error {
	return capabilityCommand(e, "revoke", args, func(c *client.Client) func(context.Context, string, string) (*api.Capabilities, error) {
		return c.Revoke
	})
}

func runPause(e env, args []string) error {
	return apiCommand(e, "pause", args, func(*flag.FlagSet) func() error { return nil },
		func(ctx context.Context, c *client.Client) (interface{}, error) {
			return c.SetPaused(ctx, true)
		})
}

func runResume(e env, args []string) error {
	return apiCommand(e, "resume", args, func(*flag.FlagSet) func() error { return nil },
		func(ctx context.Context, c *client.Client) (interface{}, error) {
			return c.SetPaused(ctx, false)
		})
}

func runAccount(e env, args []string) error {
	var address string
	return apiCommand(e, "account", args, func(fs *flag.FlagSet) func() error {
		fs.StringVar(&address, "address", "", "Account address")
		return func() error { return required("address", address) }
	}, func(ctx context.Context, c *client.Client) (interface{}, error) {
		return c.Account(ctx, address)
	})
}

func runBalance(e env, args []string) error {
	var address string
	return apiCommand(e, "balance", args, func(fs *flag.FlagSet) func() error {
		fs.StringVar(&address, "address", "", "Account address")
		return func() error { return required("address", address) }
	}, func(ctx context.Context, c *client.Client) (interface{}, error) {
		balance, err := c.BalanceOf(ctx, address)
		if err != nil {
			return nil, err
		}
		return map[string]string{"address": address, "balance": balance}, nil
	})
}

func runProtocol(e env, args []string) error {
	return apiCommand(e, "protocol", args, func(*flag.FlagSet) func() error { return nil },
		func(ctx context.Context, c *client.Client) (interface{}, error) {
			return c.Protocol(ctx)
		})
}

func runAllowance(e env, args []string) error {
	var owner, spender string
	return apiCommand(e, "allowance", args, func(fs *flag.FlagSet) func() error {
		fs.StringVar(&owner, "owner", "", "Owner address")
		fs.StringVar(&spender, "spender", "", "Spender address")
		return func() error {
			if err := required("owner", owner); err != nil {
				return err
			}
			return required("spender", spender)
		}
	}, func(ctx context.Context, c *client.Client) (interface{}, error) {
		return c.Allowance(ctx, owner, spender)
	})
}

func runCapabilities(e env, args []string) error {
	var address string
	return apiCommand(e, "capabilities", args, func(fs *flag.FlagSet) func() error {
		fs.StringVar(&address, "address", "", "Account address")
		return func() error { return required("address", address) }
	}, func(ctx context.Context, c *client.Client) (interface{}, error) {
		return c.Capabilities(ctx, address)
	})
}

func runEvents(e env, args []string) error {
	var filter client.EventFilter
	return apiCommand(e, "events", args, func(fs *flag.FlagSet) func() error {
		fs.StringVar(&filter.Account, "account", "", "Only events naming this account")
		fs.StringVar(&filter.Type, "type", "", "Only events of this type, e.g. rebase.transfer")
		fs.Uint64Var(&filter.After, "after", 0, "Only events after this sequence number")
		fs.IntVar(&filter.Limit, "limit", 0, "Maximum number of events")
		return func() error {
			if filter.Limit < 0 {
				return fmt.Errorf("--limit must not be negative")
			}
			return nil
		}
	}, func(ctx context.Context, c *client.Client) (interface{}, error) {
		return c.Events(ctx, filter)
	})
}
