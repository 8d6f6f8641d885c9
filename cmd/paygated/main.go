package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/paygate-network/paygate-daemon/config"
	"github.com/paygate-network/paygate-daemon/internal/core/application"
	"github.com/paygate-network/paygate-daemon/pkg/wallet"
)

var version = "dev"

func main() {
	app := &cli.App{
		Name:    "paygated",
		Usage:   "custodial payment gateway daemon",
		Version: version,
		Commands: []*cli.Command{
			{
				Name:   "start",
				Usage:  "start the daemon",
				Action: startAction,
			},
			{
				Name:   "genseed",
				Usage:  "generate a fresh mnemonic for vault initialization",
				Action: genSeedAction,
			},
			{
				Name:  "init",
				Usage: "initialize the vault with a mnemonic and the configured passphrase",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "mnemonic",
						Usage:    "space-separated mnemonic words",
						Required: true,
					},
				},
				Action: initAction,
			},
			{
				Name:  "issue",
				Usage: "issue a fresh payment address for an expected amount",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "amount", Required: true},
					&cli.StringFlag{Name: "type", Value: "ETH"},
				},
				Action: issueAction,
			},
			{
				Name:      "release",
				Usage:     "release funds to the merchant address, 'all' sweeps everything",
				ArgsUsage: "<amount|all>",
				Action:    releaseAction,
			},
			{
				Name:  "balance",
				Usage: "show the balance of one address, or of the whole wallet",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "address"},
				},
				Action: balanceAction,
			},
			{
				Name:      "status",
				Usage:     "show the ledger status of a transaction",
				ArgsUsage: "<hash>",
				Action:    statusAction,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.WithError(err).Fatal("exited with error")
	}
}

func startAction(_ *cli.Context) error {
	return withDaemon(false, func(ctx context.Context, d *daemon) error {
		if d.vaultService.IsInitialized(ctx) {
			if config.GetString(config.VaultPassphraseKey) != "" {
				if err := d.unlock(ctx); err != nil {
					return err
				}
			} else {
				log.Warn(
					"vault passphrase not configured, starting locked: set " +
						"PAYGATE_VAULT_PASSPHRASE to enable issuance and releases",
				)
			}
		}
		return d.run()
	})
}

func genSeedAction(_ *cli.Context) error {
	mnemonic, err := wallet.NewMnemonic(wallet.NewMnemonicOpts{EntropySize: 256})
	if err != nil {
		return err
	}
	fmt.Println(strings.Join(mnemonic, " "))
	return nil
}

func initAction(c *cli.Context) error {
	mnemonic := strings.Fields(c.String("mnemonic"))
	passphrase := config.GetString(config.VaultPassphraseKey)
	if passphrase == "" {
		return fmt.Errorf("set PAYGATE_VAULT_PASSPHRASE to initialize the vault")
	}
	return withDaemon(false, func(ctx context.Context, d *daemon) error {
		if err := d.vaultService.InitVault(ctx, mnemonic, passphrase); err != nil {
			return err
		}
		fmt.Println("vault initialized")
		return nil
	})
}

func issueAction(c *cli.Context) error {
	amount, err := parseAmount(c.String("amount"))
	if err != nil {
		return err
	}
	return withDaemon(true, func(ctx context.Context, d *daemon) error {
		record, err := d.operatorService.IssueAddress(ctx, amount, c.String("type"))
		if err != nil {
			return err
		}
		fmt.Printf(
			"address: %s\nexpected: %s %s\nexpires: %s\n",
			record.Address, record.ExpectedAmount, record.CryptoType,
			record.ExpiresAt.Format("2006-01-02 15:04:05 MST"),
		)
		return nil
	})
}

func releaseAction(c *cli.Context) error {
	amount := c.Args().First()
	if amount == "" {
		return fmt.Errorf("usage: paygated release <amount|all>")
	}
	return withDaemon(true, func(ctx context.Context, d *daemon) error {
		result, err := d.operatorService.ReleaseFunds(ctx, amount)
		if err != nil {
			return err
		}
		if result.Summary != nil {
			fmt.Printf(
				"released: %d\nskipped: %d\nfailed: %d\ntotal: %s\n",
				result.Summary.Released, result.Summary.Skipped,
				result.Summary.Failed, result.Summary.TotalReleased,
			)
			return nil
		}
		fmt.Printf(
			"hash: %s\nstatus: %s\n",
			result.Transaction.Hash, result.Transaction.Status,
		)
		return nil
	})
}

func balanceAction(c *cli.Context) error {
	return withDaemon(true, func(ctx context.Context, d *daemon) error {
		var info *application.BalanceInfo
		var err error
		if address := c.String("address"); address != "" {
			info, err = d.operatorService.GetBalance(ctx, address, false)
		} else {
			info, err = d.operatorService.GetTotalBalance(ctx, false)
		}
		if err != nil {
			return err
		}
		fmt.Printf("balance: %s", info.Balance)
		if info.Stale {
			fmt.Print(" (stale)")
		}
		fmt.Println()
		return nil
	})
}

func statusAction(c *cli.Context) error {
	hash := c.Args().First()
	if hash == "" {
		return fmt.Errorf("usage: paygated status <hash>")
	}
	return withDaemon(false, func(ctx context.Context, d *daemon) error {
		tx, err := d.operatorService.GetTransactionStatus(ctx, hash)
		if err != nil {
			return err
		}
		fmt.Printf("status: %s\n", tx.Status)
		for _, entry := range tx.StatusHistory {
			fmt.Printf(
				"  %s  %s  %s\n",
				entry.Timestamp.Format("2006-01-02 15:04:05"),
				entry.Status, entry.Detail,
			)
		}
		return nil
	})
}

func parseAmount(raw string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", raw, err)
	}
	return amount, nil
}

// withDaemon wires the full service stack over the local datadir, runs fn
// and tears everything down. The subcommands share the datadir with a
// running daemon only one at a time, badger holds an exclusive lock.
func withDaemon(
	unlock bool, fn func(ctx context.Context, d *daemon) error,
) error {
	log.SetLevel(log.Level(config.GetInt(config.LogLevelKey)))

	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := config.InitDatadir(); err != nil {
		return fmt.Errorf("creating datadir: %w", err)
	}

	d, err := newDaemon()
	if err != nil {
		return err
	}
	defer d.close()

	ctx := context.Background()
	if unlock {
		if err := d.unlock(ctx); err != nil {
			return err
		}
	}
	return fn(ctx, d)
}
