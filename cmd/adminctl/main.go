package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/halide-works/aperture-drop/internal/adapter"
	"github.com/halide-works/aperture-drop/internal/chain"
	"github.com/halide-works/aperture-drop/internal/config"
	"github.com/halide-works/aperture-drop/internal/domain"
	"github.com/halide-works/aperture-drop/internal/ledger"
	"github.com/halide-works/aperture-drop/internal/logger"
	"github.com/halide-works/aperture-drop/internal/pool"
)

const usage = `Usage: adminctl [flags] <command> [args]

Commands:
  deposit <ids>                    deposit tokens into the pool (e.g. 1,2,5 or 1-100)
  withdraw <ids> <to>              withdraw unclaimed tokens to an address
  emergency-withdraw-all <to>      withdraw every unclaimed token (pool must be paused)
  set-authority <address>          rotate the claim-signing authority
  reset-claim-status <address>     clear the has-claimed latch for an address
  reset-nonce <address> <value>    set the nonce for an address
  pause                            pause claims
  unpause                          resume claims
  status                           print pool bitmaps and availability

Flags:
`

var (
	configFile = flag.String("config", "", "Path to configuration file")
	envPath    = flag.String("env", "config/", "Path to environment files")
	timeout    = flag.Duration("timeout", 5*time.Minute, "Overall command timeout")
)

func main() {
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	config.ChdirRepoRoot()
	cfg, err := config.LoadAdminConfig(*configFile, *envPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Initialize(logger.Config{
		Debug:           cfg.Debug,
		SentryDSN:       cfg.SentryDSN,
		BreadcrumbLevel: zapcore.InfoLevel,
		Tags: map[string]string{
			"service": "adminctl",
		},
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Flush(2 * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if cfg.Ledger.Mode != config.LedgerModeChain {
		fmt.Fprintln(os.Stderr, "adminctl requires ledger.mode=chain; the embedded ledger lives inside the API process")
		os.Exit(1)
	}

	owner, err := pool.NewAuthority(cfg.OwnerKey)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load owner key: %v\n", err)
		os.Exit(1)
	}

	backend, err := adapter.NewEthBackendDialer().Dial(ctx, cfg.Ethereum.RPCURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to dial Ethereum RPC: %v\n", err)
		os.Exit(1)
	}

	client, err := chain.NewClient(backend, adapter.NewClock(), chain.Config{
		Contract:     common.HexToAddress(cfg.Ethereum.Contract),
		Signer:       owner.Key(),
		DeployBlock:  cfg.Ethereum.DeployBlock,
		PollInterval: cfg.Ethereum.PollInterval,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create chain client: %v\n", err)
		os.Exit(1)
	}
	defer client.Close()

	if err := run(ctx, client, flag.Args()); err != nil {
		logger.Error(err, zap.String("command", flag.Arg(0)))
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// adminLedger is the surface run needs; chain.Client satisfies it.
type adminLedger interface {
	ledger.Reader
	ledger.Admin
}

func run(ctx context.Context, client adminLedger, args []string) error {
	command, rest := args[0], args[1:]

	switch command {
	case "deposit":
		if len(rest) != 1 {
			return fmt.Errorf("deposit requires a token id list")
		}
		ids, err := parseTokenIDs(rest[0])
		if err != nil {
			return err
		}
		if err := client.Deposit(ctx, ids); err != nil {
			return err
		}
		fmt.Printf("Deposited %d tokens\n", len(ids))

	case "withdraw":
		if len(rest) != 2 {
			return fmt.Errorf("withdraw requires a token id list and a recipient")
		}
		ids, err := parseTokenIDs(rest[0])
		if err != nil {
			return err
		}
		to, err := parseAddress(rest[1])
		if err != nil {
			return err
		}
		if err := client.Withdraw(ctx, ids, to); err != nil {
			return err
		}
		fmt.Printf("Withdrew %d tokens to %s\n", len(ids), to.Hex())

	case "emergency-withdraw-all":
		if len(rest) != 1 {
			return fmt.Errorf("emergency-withdraw-all requires a recipient")
		}
		to, err := parseAddress(rest[0])
		if err != nil {
			return err
		}
		if err := client.EmergencyWithdrawAll(ctx, to); err != nil {
			return err
		}
		fmt.Printf("Emergency withdrawal to %s complete\n", to.Hex())

	case "set-authority":
		if len(rest) != 1 {
			return fmt.Errorf("set-authority requires an address")
		}
		addr, err := parseAddress(rest[0])
		if err != nil {
			return err
		}
		if err := client.SetAuthority(ctx, addr); err != nil {
			return err
		}
		fmt.Printf("Authority set to %s\n", addr.Hex())

	case "reset-claim-status":
		if len(rest) != 1 {
			return fmt.Errorf("reset-claim-status requires an address")
		}
		addr, err := parseAddress(rest[0])
		if err != nil {
			return err
		}
		if err := client.ResetClaimStatus(ctx, addr); err != nil {
			return err
		}
		fmt.Printf("Claim status reset for %s\n", addr.Hex())

	case "reset-nonce":
		if len(rest) != 2 {
			return fmt.Errorf("reset-nonce requires an address and a value")
		}
		addr, err := parseAddress(rest[0])
		if err != nil {
			return err
		}
		value, err := strconv.ParseUint(rest[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid nonce value: %w", err)
		}
		if err := client.ResetNonce(ctx, addr, value); err != nil {
			return err
		}
		fmt.Printf("Nonce for %s set to %d\n", addr.Hex(), value)

	case "pause":
		if err := client.Pause(ctx); err != nil {
			return err
		}
		fmt.Println("Pool paused")

	case "unpause":
		if err := client.Unpause(ctx); err != nil {
			return err
		}
		fmt.Println("Pool unpaused")

	case "status":
		return printStatus(ctx, client)

	default:
		return fmt.Errorf("unknown command: %s", command)
	}

	return nil
}

func printStatus(ctx context.Context, client adminLedger) error {
	available, err := client.AvailableTokens(ctx)
	if err != nil {
		return err
	}
	claimed, err := client.ClaimedBitmap(ctx)
	if err != nil {
		return err
	}
	deposited, err := client.DepositedBitmap(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Available tokens: %d\n", len(available))
	fmt.Printf("Deposited bitmap: %s\n", deposited.Hex())
	fmt.Printf("Claimed bitmap:   %s\n", claimed.Hex())
	return nil
}

// parseTokenIDs parses "1,2,5" or "1-100" (or a mix) into token ids.
func parseTokenIDs(s string) ([]domain.TokenID, error) {
	var ids []domain.TokenID
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if lo, hi, ok := strings.Cut(part, "-"); ok {
			start, err := parseTokenID(lo)
			if err != nil {
				return nil, err
			}
			end, err := parseTokenID(hi)
			if err != nil {
				return nil, err
			}
			if end < start {
				return nil, fmt.Errorf("invalid range %s", part)
			}
			for id := start; id <= end; id++ {
				ids = append(ids, id)
			}
			continue
		}

		id, err := parseTokenID(part)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("no token ids given")
	}
	return ids, nil
}

func parseTokenID(s string) (domain.TokenID, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid token id %q: %w", s, err)
	}
	id := domain.TokenID(v)
	if !id.Valid() {
		return 0, fmt.Errorf("token id %d out of range", v)
	}
	return id, nil
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}
