// Command subnetnode runs one subnet-consensus participant: it tracks
// epoch progression on an external Substrate-style chain, computes
// incentives vectors from overlay reachability and optional RPS
// probing, and drives the validate/attest state machine described by
// the Epoch Loop.
//
// Grounded on the teacher's cmd/geth idiom: an urfave/cli/v2 App with
// a handful of top-level flags, config loaded from a TOML file, and
// go-ethereum/log for structured output.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/centrifuge/go-substrate-rpc-client/v4/signature"
	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/hypertensor-blockchain/subnet-consensus/internal/chaingw"
	"github.com/hypertensor-blockchain/subnet-consensus/internal/dht"
	"github.com/hypertensor-blockchain/subnet-consensus/internal/epoch"
	"github.com/hypertensor-blockchain/subnet-consensus/internal/keyring"
	"github.com/hypertensor-blockchain/subnet-consensus/internal/nodeconfig"
	"github.com/hypertensor-blockchain/subnet-consensus/internal/overlay"
	"github.com/hypertensor-blockchain/subnet-consensus/internal/rps"
	"github.com/hypertensor-blockchain/subnet-consensus/internal/vectorbuilder"
)

var (
	configFlag = &cli.StringFlag{Name: "config", Usage: "path to the node's TOML configuration file", Required: true}
	localRPC   = &cli.StringFlag{Name: "local-rpc", Usage: "override LocalRPC from the config file"}
	devRPC     = &cli.StringFlag{Name: "dev-rpc", Usage: "override DevRPC from the config file"}
	phraseEnv  = &cli.StringFlag{Name: "phrase-env", Usage: "environment variable holding the signer's mnemonic or seed URI", Value: "SUBNET_NODE_PHRASE"}
	keyFile    = &cli.StringFlag{Name: "key-file", Usage: "override KeyFile from the config file"}
	logFile    = &cli.StringFlag{Name: "log-file", Usage: "rotate structured logs to this path instead of stderr"}
)

func main() {
	app := &cli.App{
		Name:  "subnetnode",
		Usage: "run a subnet-consensus participant",
		Flags: []cli.Flag{configFlag, localRPC, devRPC, phraseEnv, keyFile, logFile},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		log.Error("subnetnode: fatal", "err", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	setupLogging(c.String(logFile.Name))

	cfg, err := nodeconfig.Load(c.String(configFlag.Name))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if v := c.String(localRPC.Name); v != "" {
		cfg.LocalRPC = v
	}
	if v := c.String(devRPC.Name); v != "" {
		cfg.DevRPC = v
	}
	if v := c.String(keyFile.Name); v != "" {
		cfg.KeyFile = v
	}

	identity, err := loadOrGenerateIdentity(cfg.KeyFile)
	if err != nil {
		return fmt.Errorf("load identity: %w", err)
	}

	signer, err := signerFromEnv(c.String(phraseEnv.Name))
	if err != nil {
		return fmt.Errorf("load signer: %w", err)
	}

	endpoint := cfg.LocalRPC
	if endpoint == "" {
		endpoint = cfg.DevRPC
	}
	gateway, err := chaingw.New(endpoint, signer)
	if err != nil {
		return fmt.Errorf("connect chain gateway: %w", err)
	}
	defer gateway.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	subnetID, ok := gateway.GetSubnetIDByPath(ctx, cfg.SubnetPath)
	if !ok {
		return fmt.Errorf("subnet path %q not found on chain", cfg.SubnetPath)
	}

	handle, err := dht.NewLibP2PHandle(ctx, identity.PrivKey(), cfg.ListenAddr, cfg.BootstrapPeers, cfg.BootstrapFile)
	if err != nil {
		return fmt.Errorf("start overlay handle: %w", err)
	}
	defer handle.Close()

	desc, ok := gateway.GetSubnetData(ctx, subnetID)
	if !ok || desc == nil {
		return fmt.Errorf("subnet %d descriptor unavailable at startup", subnetID)
	}

	peerID, err := identity.PeerID()
	if err != nil {
		return fmt.Errorf("derive peer id: %w", err)
	}

	view := overlay.New(handle, fmt.Sprintf("subnet-%d", subnetID))
	prober := rps.New(handle, nil, 1) // no SessionFactory: ProbeOne yields no sample, so block+RPS mode uses only samples other nodes published

	builder := &vectorbuilder.Builder{
		Gateway:        gateway,
		Handle:         handle,
		View:           view,
		Prober:         prober,
		SubnetID:  subnetID,
		NumBlocks: int(desc.NumBlocks),
		// num_blocks_per_layer is not part of the on-chain subnet
		// descriptor this core reads; RegistrationBlocks stands in for
		// it, so k = 100*RegistrationBlocks/NumBlocks, which is not
		// bounded below 1.
		BlocksPerLayer: desc.RegistrationBlocks,
		Mode:           cfg.ScoringMode,
		RPSTTL:         *cfg.BlockSecs * 100,
	}

	loop := epoch.New(epoch.Config{
		Gateway:           gateway,
		Vectors:           builder,
		Clock:             epoch.NewRealClock(*cfg.BlockSecs),
		SubnetID:          subnetID,
		Coldkey:           signer.Address,
		PeerID:            peerID,
		BlockSecs:         *cfg.BlockSecs,
		MaxAttestChecks:   *cfg.MaxAttestChecks,
		AttestationQuorum: *cfg.AttestationQuorum,
	})

	log.Info("subnetnode: starting epoch loop", "subnet", subnetID, "coldkey", signer.Address)
	loop.Run(ctx)
	log.Info("subnetnode: stopped", "state", loop.State())
	return nil
}

func setupLogging(path string) {
	if path == "" {
		log.SetDefault(log.NewLogger(log.NewTerminalHandler(os.Stderr, true)))
		return
	}
	writer := &lumberjack.Logger{Filename: path, MaxSize: 100, MaxBackups: 5, MaxAge: 28}
	log.SetDefault(log.NewLogger(log.NewTerminalHandler(writer, false)))
}

func loadOrGenerateIdentity(path string) (*keyring.Identity, error) {
	if path == "" {
		return keyring.Generate()
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		id, err := keyring.Generate()
		if err != nil {
			return nil, err
		}
		if err := keyring.Save(id, path); err != nil {
			return nil, err
		}
		return id, nil
	}
	return keyring.Load(path)
}

func signerFromEnv(envVar string) (signature.KeyringPair, error) {
	phrase := os.Getenv(envVar)
	if phrase == "" {
		return signature.KeyringPair{}, fmt.Errorf("%s is not set", envVar)
	}
	return signature.KeyringPairFromSecret(phrase, chaingw.SS58Prefix)
}
