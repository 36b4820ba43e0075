package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/AH96HSQ/Zurtex-Global/internal/chaindata"
	"github.com/AH96HSQ/Zurtex-Global/internal/config"
	"github.com/AH96HSQ/Zurtex-Global/internal/db"
	"github.com/AH96HSQ/Zurtex-Global/internal/logging"
	"github.com/AH96HSQ/Zurtex-Global/internal/store"
	"github.com/AH96HSQ/Zurtex-Global/internal/sweep"
	"github.com/AH96HSQ/Zurtex-Global/internal/wallet"

	"github.com/jessevdk/go-flags"
)

type options struct {
	Config  string `long:"config" description:"path to config file"`
	Execute bool   `long:"execute" description:"broadcast the sweep transaction (default is dry run)"`
	DryRun  bool   `long:"dry-run" description:"build and print the transaction without broadcasting"`
}

func main() {
	var opts options
	if _, err := flags.Parse(&opts); err != nil {
		os.Exit(1)
	}
	if opts.Execute && opts.DryRun {
		fmt.Fprintln(os.Stderr, "--execute and --dry-run are mutually exclusive")
		os.Exit(1)
	}

	cfg, err := config.Load(opts.Config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Logging.Level, cfg.Logging.Pretty)

	if cfg.Wallet.MerchantAddress == "" {
		logger.Fatal().Msg("wallet.merchant_address is required for sweeping")
	}

	deriver, err := wallet.NewDeriver(cfg.Wallet.Mnemonic)
	if err != nil {
		logger.Fatal().Err(err).Msg("wallet mnemonic rejected")
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.DB.DSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("db connect failed")
	}
	defer pool.Close()

	engine := &sweep.Engine{
		Store:           store.New(pool),
		Chain:           chaindata.NewClient(cfg.Chain.APIBase, cfg.Chain.Token, chaindata.DefaultRetryPolicy()),
		Deriver:         deriver,
		MerchantAddress: cfg.Wallet.MerchantAddress,
		FeeRatePerByte:  cfg.Chain.FeeRatePerByte,
		RequestGap:      cfg.SweepRequestGap(),
		Confirm:         confirmOnStdin,
		Out:             os.Stdout,
		Logger:          logger.With().Str("component", "sweep").Logger(),
	}

	execute := opts.Execute && !opts.DryRun
	if !execute {
		fmt.Println("dry run mode, pass --execute to broadcast")
	}

	if _, err := engine.Run(ctx, execute); err != nil {
		logger.Fatal().Err(err).Msg("sweep failed")
	}
}

func confirmOnStdin(prompt string) (bool, error) {
	fmt.Printf("%s [y/N]: ", prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false, err
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}
