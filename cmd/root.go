// Copyright (c) 2025 The blockidx developers
// Distributed under the MIT software license, see the accompanying
// file COPYING or https://www.opensource.org/licenses/mit-license.php .

package cmd

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/exp/slices"
	"gopkg.in/ini.v1"

	"github.com/blockidx/blockidxd/index"
)

var cfgFile string
var logger = logrus.New()

// Options collects everything the index run needs, resolved from flags,
// the environment, and the optional config files.
type Options struct {
	BlockFile    string `json:"block_file,omitempty"`
	HeaderFile   string `json:"header_file,omitempty"`
	Network      string `json:"network"`
	Magic        string `json:"magic,omitempty"`
	NodeConfPath string `json:"node_conf,omitempty"`
	AccountsPath string `json:"accounts,omitempty"`
	LogLevel     uint64 `json:"log_level,omitempty"`
	LogFile      string `json:"log_file,omitempty"`
	MetricsAddr  string `json:"metrics_addr,omitempty"`
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "blockidxd",
	Short: "Blockidxd indexes a node's raw block data in memory",
	Long: `Blockidxd ingests the raw block data file produced by a full node,
        organizes the header chain by accumulated difficulty, and reports
        the outputs and balance belonging to a set of owned addresses`,
	Run: func(cmd *cobra.Command, args []string) {
		opts := &Options{
			BlockFile:    viper.GetString("block-file"),
			HeaderFile:   viper.GetString("header-file"),
			Network:      viper.GetString("network"),
			Magic:        viper.GetString("magic"),
			NodeConfPath: viper.GetString("node-conf-path"),
			AccountsPath: viper.GetString("accounts"),
			LogLevel:     viper.GetUint64("log-level"),
			LogFile:      viper.GetString("log-file"),
			MetricsAddr:  viper.GetString("metrics-addr"),
		}

		index.Log.Debugf("Options: %#v\n", opts)

		if err := runIndexer(opts); err != nil {
			index.Log.WithFields(logrus.Fields{
				"error": err,
			}).Fatal("indexing failed")
		}
	},
}

// networkMagic resolves the 4-byte block-file magic: an explicit hex
// override wins, otherwise the named network's wire constant.
func networkMagic(opts *Options) ([4]byte, error) {
	var magic [4]byte
	if opts.Magic != "" {
		b, err := hex.DecodeString(opts.Magic)
		if err != nil || len(b) != 4 {
			return magic, fmt.Errorf("magic must be 8 hex digits, got %q", opts.Magic)
		}
		copy(magic[:], b)
		return magic, nil
	}

	var net wire.BitcoinNet
	switch opts.Network {
	case "mainnet":
		net = wire.MainNet
	case "testnet3":
		net = wire.TestNet3
	case "regtest":
		net = wire.TestNet
	case "simnet":
		net = wire.SimNet
	default:
		return magic, fmt.Errorf("unknown network %q", opts.Network)
	}
	binary.LittleEndian.PutUint32(magic[:], uint32(net))
	return magic, nil
}

// applyNodeConf pulls defaults out of a bitcoin.conf-style file: the
// network selection and, via datadir, the default block file location.
func applyNodeConf(opts *Options) error {
	cfg, err := ini.Load(opts.NodeConfPath)
	if err != nil {
		return err
	}
	sec := cfg.Section("")
	if sec.Key("testnet").MustInt(0) == 1 {
		opts.Network = "testnet3"
	}
	if sec.Key("regtest").MustInt(0) == 1 {
		opts.Network = "regtest"
	}
	if opts.BlockFile == "" {
		if dataDir := sec.Key("datadir").String(); dataDir != "" {
			opts.BlockFile = filepath.Join(dataDir, "blk0001.dat")
		}
	}
	return nil
}

// accountsFile is the TOML shape of the owned-accounts declaration:
//
//	[[account]]
//	address = "<20-byte address hash, hex>"
//	pubkey  = "<64-byte raw public key, hex>"
type accountsFile struct {
	Account []accountEntry `toml:"account"`
}

type accountEntry struct {
	Address string `toml:"address"`
	PubKey  string `toml:"pubkey"`
}

// loadAccounts registers every account declared in the TOML file.
func loadAccounts(idx *index.Index, path string) (int, error) {
	var af accountsFile
	if _, err := toml.DecodeFile(path, &af); err != nil {
		return 0, err
	}
	for i, acct := range af.Account {
		addrBytes, err := hex.DecodeString(acct.Address)
		if err != nil || len(addrBytes) != index.AddrLen {
			return 0, fmt.Errorf("account %d: address must be %d hex bytes", i, index.AddrLen)
		}
		pubKey, err := hex.DecodeString(acct.PubKey)
		if err != nil {
			return 0, fmt.Errorf("account %d: bad pubkey hex", i)
		}
		// Accept the uncompressed form with its 0x04 prefix byte.
		if len(pubKey) == index.PubKeyLen+1 && pubKey[0] == 0x04 {
			pubKey = pubKey[1:]
		}
		if len(pubKey) != index.PubKeyLen {
			return 0, fmt.Errorf("account %d: pubkey must be %d raw bytes", i, index.PubKeyLen)
		}
		// The address should be hash160 of the uncompressed key; a mismatch
		// usually means the entry pairs an address with someone else's key.
		uncompressed := append([]byte{0x04}, pubKey...)
		if !bytes.Equal(btcutil.Hash160(uncompressed), addrBytes) {
			index.Log.Warnf("account %d: address is not hash160 of the supplied pubkey", i)
		}
		idx.AddAccount(index.Addr(addrBytes), pubKey)
	}
	return len(af.Account), nil
}

func runIndexer(opts *Options) error {
	if opts.LogFile != "" {
		// instead write parsable logs for logstash/splunk/etc
		output, err := os.OpenFile(opts.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("couldn't open log file %s: %w", opts.LogFile, err)
		}
		defer output.Close()
		logger.SetOutput(output)
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	logger.SetLevel(logrus.Level(opts.LogLevel))
	index.Log = logger.WithFields(logrus.Fields{
		"app":     "blockidxd",
		"version": Version,
	})

	if opts.MetricsAddr != "" {
		go func() {
			http.Handle("/metrics", promhttp.Handler())
			index.Log.Infof("Prometheus metrics on http://%s/metrics", opts.MetricsAddr)
			if err := http.ListenAndServe(opts.MetricsAddr, nil); err != nil {
				index.Log.WithFields(logrus.Fields{
					"error": err,
				}).Warning("metrics listener exited")
			}
		}()
	}

	if opts.NodeConfPath != "" {
		if err := applyNodeConf(opts); err != nil {
			return fmt.Errorf("reading node conf %s: %w", opts.NodeConfPath, err)
		}
	}

	magic, err := networkMagic(opts)
	if err != nil {
		return err
	}
	idx := index.New(magic)

	switch {
	case opts.BlockFile != "":
		numHeaders, err := idx.LoadBlockFile(opts.BlockFile)
		if err != nil {
			return err
		}
		index.Log.Infof("indexed %d headers, %d transactions", numHeaders, idx.NumTx())
	case opts.HeaderFile != "":
		bytesRead, err := idx.LoadHeaderFile(opts.HeaderFile)
		if err != nil {
			return err
		}
		index.Log.Infof("read %d header bytes", bytesRead)
	default:
		return fmt.Errorf("one of --block-file or --header-file is required")
	}

	idx.OrganizeChain(false)
	top := idx.TopBlock()
	if top == nil {
		return fmt.Errorf("no main chain found (missing genesis header?)")
	}
	fmt.Printf("chain tip: %s\n", top.Summary())

	if opts.AccountsPath == "" {
		return nil
	}
	n, err := loadAccounts(idx, opts.AccountsPath)
	if err != nil {
		return fmt.Errorf("loading accounts %s: %w", opts.AccountsPath, err)
	}
	index.Log.Infof("registered %d accounts", n)

	idx.FlagMyTransactions()
	printWalletReport(idx)
	return nil
}

// printWalletReport lists the owned outpoints and the resulting balance.
func printWalletReport(idx *index.Index) {
	lines := make([]string, 0, len(idx.MyTxOuts()))
	for op, out := range idx.MyTxOuts() {
		state := "unspent"
		if out.IsSpent {
			state = "spent"
		}
		lines = append(lines, fmt.Sprintf("  %s  %d sat  (%s)", op, out.Value, state))
	}
	for op := range idx.MyTxOutsNonStandard() {
		lines = append(lines, fmt.Sprintf("  %s  (non-standard)", op))
	}
	slices.Sort(lines)

	fmt.Printf("owned outputs (%d):\n", len(lines))
	for _, line := range lines {
		fmt.Println(line)
	}
	fmt.Printf("balance: %d sat over %d unspent outputs\n",
		idx.Balance(), len(idx.MyUnspentTxOuts()))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(versionCmd)
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is current directory, blockidxd.yaml)")
	rootCmd.Flags().String("block-file", "", "path to the node's raw block data file")
	rootCmd.Flags().String("header-file", "", "path to a bare 80-byte-header file")
	rootCmd.Flags().String("network", "mainnet", "network the block file belongs to (mainnet, testnet3, regtest, simnet)")
	rootCmd.Flags().String("magic", "", "hex override of the 4-byte network magic")
	rootCmd.Flags().String("node-conf-path", "", "node conf file to pull network and datadir from")
	rootCmd.Flags().String("accounts", "", "TOML file declaring owned addresses and public keys")
	rootCmd.Flags().Int("log-level", int(logrus.InfoLevel), "log level (logrus 1-7)")
	rootCmd.Flags().String("log-file", "", "log file to write to")
	rootCmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address")

	viper.BindPFlag("block-file", rootCmd.Flags().Lookup("block-file"))
	viper.SetDefault("block-file", "")
	viper.BindPFlag("header-file", rootCmd.Flags().Lookup("header-file"))
	viper.SetDefault("header-file", "")
	viper.BindPFlag("network", rootCmd.Flags().Lookup("network"))
	viper.SetDefault("network", "mainnet")
	viper.BindPFlag("magic", rootCmd.Flags().Lookup("magic"))
	viper.SetDefault("magic", "")
	viper.BindPFlag("node-conf-path", rootCmd.Flags().Lookup("node-conf-path"))
	viper.SetDefault("node-conf-path", "")
	viper.BindPFlag("accounts", rootCmd.Flags().Lookup("accounts"))
	viper.SetDefault("accounts", "")
	viper.BindPFlag("log-level", rootCmd.Flags().Lookup("log-level"))
	viper.SetDefault("log-level", int(logrus.InfoLevel))
	viper.BindPFlag("log-file", rootCmd.Flags().Lookup("log-file"))
	viper.SetDefault("log-file", "")
	viper.BindPFlag("metrics-addr", rootCmd.Flags().Lookup("metrics-addr"))
	viper.SetDefault("metrics-addr", "")

	logger.SetFormatter(&logrus.TextFormatter{
		//DisableColors:          true,
		FullTimestamp:          true,
		DisableLevelTruncation: true,
	})
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Look in the current directory for a configuration file
		viper.AddConfigPath(".")
		// Viper auto appends extension to this config name
		// For example, blockidxd.yml
		viper.SetConfigName("blockidxd")
	}

	// Replace `-` in config options with `_` for ENV keys
	replacer := strings.NewReplacer("-", "_")
	viper.SetEnvKeyReplacer(replacer)
	viper.AutomaticEnv() // read in environment variables that match
	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Println("Using config file:", viper.ConfigFileUsed())
	}
}
