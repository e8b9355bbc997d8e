package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"

	"github.com/spf13/cobra"

	"github.com/CZERTAINLY/Weaver/internal/log"
	"github.com/CZERTAINLY/Weaver/internal/model"
)

var (
	userConfigPath string // /default/config/path/weaver on given OS
	configPath     string // actual config file used (if loaded)
	config         model.Config

	flagConfigFilePath string   // value of --config flag
	flagVerbose        bool     // value of --verbose flag
	flagPasswords      []string // value of --password flags
)

func init() {
	d, err := os.UserConfigDir()
	if err != nil {
		panic(err)
	}
	userConfigPath = filepath.Join(d, "weaver")
}

func main() {
	rootCmd.PersistentFlags().StringVar(&flagConfigFilePath, "config", "", "Config file to load - default is weaver.yaml in current directory or in "+userConfigPath)
	rootCmd.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "verbose logging")
	rootCmd.PersistentFlags().StringArrayVar(&flagPasswords, "password", nil, "PKCS#12 password candidate, repeatable, tried before the configured ones")

	// never print messages
	rootCmd.SilenceErrors = true

	// parse or create a config, setup logging
	rootCmd.PersistentPreRunE = initWeaver

	rootCmd.AddCommand(parseCmd)
	rootCmd.AddCommand(chainCmd)
	rootCmd.AddCommand(bundleCmd)
	rootCmd.AddCommand(cbomCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		slog.Error("weaver failed", "err", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "weaver",
	Short:        "Tool decoding TLS certificates and reconstructing their chains",
	SilenceUsage: true,
}

var parseCmd = &cobra.Command{
	Use:   "parse FILE...",
	Short: "parse decodes every input file and prints the result",
	Args:  cobra.MinimumNArgs(1),
	RunE:  doParse,
}

var chainCmd = &cobra.Command{
	Use:   "chain FILE...",
	Short: "chain decodes all inputs into one pool and reconstructs certificate chains",
	Args:  cobra.MinimumNArgs(1),
	RunE:  doChain,
}

var bundleCmd = &cobra.Command{
	Use:   "bundle FILE...",
	Short: "bundle serializes a reconstructed chain plus key as an nginx-ready PEM bundle",
	Args:  cobra.MinimumNArgs(1),
	RunE:  doBundle,
}

var cbomCmd = &cobra.Command{
	Use:   "cbom FILE...",
	Short: "cbom exports decoded certificates and keys as a CycloneDX BOM",
	Args:  cobra.MinimumNArgs(1),
	RunE:  doCBOM,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "version provides version of a weaver",
	Run: func(cmd *cobra.Command, args []string) {
		info, ok := debug.ReadBuildInfo()
		if !ok {
			fmt.Println("weaver: version info not available")
			return
		}

		if configPath != "" {
			fmt.Printf("config: %s\n", configPath)
		}
		fmt.Printf("weaver: %s\n", info.Main.Version)
		fmt.Printf("go:     %s\n", info.GoVersion)
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				fmt.Printf("commit: %s\n", s.Value)
			case "vcs.time":
				fmt.Printf("date:   %s\n", s.Value)
			case "vcs.modified":
				fmt.Printf("dirty:  %s\n", s.Value)
			}
		}
		fmt.Println()
	},
}

func initWeaver(cmd *cobra.Command, _ []string) error {
	if envConfig, ok := os.LookupEnv("WEAVERCONFIG"); ok {
		configPath = envConfig
	} else if flagConfigFilePath != "" {
		configPath = flagConfigFilePath
	} else {
		for _, d := range []string{userConfigPath, "."} {
			path := filepath.Join(d, "weaver.yaml")
			if exists(path) {
				configPath = path
				break
			}
		}
	}

	// store default configuration
	if configPath == "" {
		config = model.DefaultConfig()
		configPath = filepath.Join(userConfigPath, "weaver.yaml")
		err := os.MkdirAll(filepath.Dir(configPath), 0755)
		if err != nil {
			return fmt.Errorf("creating directory %s: %w", filepath.Dir(configPath), err)
		}

		f, err := os.Create(configPath)
		if err != nil {
			return fmt.Errorf("creating file %s: %w", configPath, err)
		}
		defer func() {
			_ = f.Close()
		}()
		if err := model.StoreConfig(f, config); err != nil {
			return fmt.Errorf("storing configuration: %w", err)
		}
	} else {
		f, err := os.Open(configPath)
		if err != nil {
			return fmt.Errorf("opening config file: %w", err)
		}
		defer func() {
			_ = f.Close()
		}()
		config, err = model.LoadConfig(f)
		if err != nil {
			return fmt.Errorf("parsing config: %w", err)
		}
	}

	// --verbose has a precedence over config file
	if flagVerbose {
		config.Verbose = true
	}
	// --password candidates are tried before the configured ones
	config.Passwords = append(flagPasswords, config.Passwords...)

	log.Setup(config.Verbose)

	// config is not logged, the password list belongs to no log
	slog.Debug("weaver run", "configPath", configPath, "output", config.Output, "passwords", len(config.Passwords))
	return nil
}

func exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
