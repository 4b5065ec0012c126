package main

import (
	"fmt"
	"log"
	"os"
	"path"
	"path/filepath"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"anythingllm-sync/internal/api"
	"anythingllm-sync/internal/config"
	"anythingllm-sync/internal/db"
	"anythingllm-sync/internal/logging"
	"anythingllm-sync/internal/scanner"
	"anythingllm-sync/internal/sync"
	"anythingllm-sync/pkg/utils"
	"anythingllm-sync/pkg/version"
)

func main() {
	cli.VersionFlag = &cli.BoolFlag{
		Name:    "version",
		Aliases: []string{"V"},
		Usage:   "print the version",
	}

	configFlag := &cli.StringFlag{
		Name:  "config",
		Usage: "Config file name inside ~/.anythingllm-sync",
		Value: config.DefaultName,
	}
	verboseFlag := &cli.BoolFlag{
		Name:    "verbose",
		Aliases: []string{"v"},
		Usage:   "Log every scanned file and per-document progress",
	}

	app := &cli.App{
		Name:                 "allmsync",
		Usage:                "Keep an AnythingLLM workspace in sync with local directories",
		Version:              version.Version,
		EnableBashCompletion: true,
		Commands: []*cli.Command{
			{
				Name:  "version",
				Usage: "Print detailed version information",
				Action: func(c *cli.Context) error {
					fmt.Printf("Version:    %s\n", version.Version)
					fmt.Printf("Git commit: %s\n", version.GitCommit)
					fmt.Printf("Built:      %s\n", version.BuildTime)
					return nil
				},
			},
			{
				Name:   "init",
				Usage:  "Create a starter config file",
				Flags:  []cli.Flag{configFlag},
				Action: initConfig,
			},
			{
				Name:  "sync",
				Usage: "Reconcile local files with the workspace",
				Flags: []cli.Flag{
					configFlag,
					verboseFlag,
					&cli.BoolFlag{
						Name:    "force",
						Aliases: []string{"f"},
						Usage:   "Delete the tracking ledger first and re-sync everything",
					},
				},
				Action: runSync,
			},
			{
				Name:  "purge",
				Usage: "Remove all embeddings from the workspace",
				Flags: []cli.Flag{
					configFlag,
					verboseFlag,
					&cli.BoolFlag{
						Name:  "purge-raw",
						Usage: "Also delete the raw uploads tracked in the local ledger",
					},
				},
				Action: runPurge,
			},
			{
				Name:   "status",
				Usage:  "Show local, tracked and remote document counts",
				Flags:  []cli.Flag{configFlag, verboseFlag},
				Action: showStatus,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// setup loads the configuration and builds the logger shared by every
// command. The returned cleanup flushes the logger.
func setup(c *cli.Context) (*config.Config, *zap.SugaredLogger, func(), string, error) {
	dir, err := config.Dir()
	if err != nil {
		return nil, nil, nil, "", err
	}

	cfg, err := config.Load(filepath.Join(dir, c.String("config")))
	if err != nil {
		return nil, nil, nil, "", err
	}

	logger, cleanup := logging.New(dir, c.Bool("verbose"))
	return cfg, logger, cleanup, dir, nil
}

func initConfig(c *cli.Context) error {
	dir, err := config.Dir()
	if err != nil {
		return err
	}

	cfgPath := filepath.Join(dir, c.String("config"))
	if err := config.WriteTemplate(cfgPath); err != nil {
		return err
	}

	fmt.Printf("Config template created at: %s\n", cfgPath)
	fmt.Println("Edit it with your real values and re-run.")
	return nil
}

func runSync(c *cli.Context) error {
	cfg, logger, cleanup, dir, err := setup(c)
	if err != nil {
		return err
	}
	defer cleanup()

	client := api.New(cfg.BaseURL, cfg.APIKey, cfg.WorkspaceSlug, logger)
	if err := client.Authenticate(c.Context); err != nil {
		return fmt.Errorf("authentication failed, check your api-key: %w", err)
	}

	ledgerPath := cfg.LedgerPath(dir)
	if c.Bool("force") {
		if _, err := os.Stat(ledgerPath); err == nil {
			logger.Warnw("force mode: deleting tracking ledger", "path", ledgerPath)
			if err := removeLedger(ledgerPath); err != nil {
				return err
			}
		}
	}

	ledger, err := db.New(ledgerPath)
	if err != nil {
		return err
	}
	defer ledger.Close()

	sc := scanner.New(cfg.FilePaths, cfg.DirectoryExcludes, cfg.FileExcludes, logger)
	engineCfg := sync.DefaultSyncerConfig()
	engineCfg.ShowProgress = !c.Bool("verbose")
	engine := sync.NewSyncer(ledger, client, sc, logger, &engineCfg)

	report, err := engine.Run(c.Context)
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}

	fmt.Printf("Sync completed in %s\n", utils.FormatDuration(report.Duration))
	fmt.Printf("- Scanned: %d files (skipped %d)\n", report.Scanned, report.Skipped)
	fmt.Printf("- Uploaded: %d (failed %d)\n", report.Uploaded, report.UploadErrors)
	fmt.Printf("- Embedded: %d (failed %d)\n", report.Embedded, report.EmbedErrors)
	fmt.Printf("- Unembedded: %d (failed %d)\n", report.Unembedded, report.UnembedErrors)
	fmt.Printf("- Unloaded: %d (failed %d)\n", report.Unloaded, report.UnloadErrors)
	return nil
}

// removeLedger deletes the sqlite file plus its WAL sidecars.
func removeLedger(ledgerPath string) error {
	if err := os.Remove(ledgerPath); err != nil {
		return fmt.Errorf("failed to delete ledger: %w", err)
	}
	for _, suffix := range []string{"-wal", "-shm"} {
		_ = os.Remove(ledgerPath + suffix)
	}
	return nil
}

func runPurge(c *cli.Context) error {
	cfg, logger, cleanup, dir, err := setup(c)
	if err != nil {
		return err
	}
	defer cleanup()

	logger.Warnw("purge mode activated", "workspace", cfg.WorkspaceSlug)

	client := api.New(cfg.BaseURL, cfg.APIKey, cfg.WorkspaceSlug, logger)
	if err := client.Authenticate(c.Context); err != nil {
		return fmt.Errorf("authentication failed, check your api-key: %w", err)
	}

	ledger, err := db.New(cfg.LedgerPath(dir))
	if err != nil {
		return err
	}
	defer ledger.Close()

	sc := scanner.New(cfg.FilePaths, cfg.DirectoryExcludes, cfg.FileExcludes, logger)
	engine := sync.NewSyncer(ledger, client, sc, logger, nil)

	report, err := engine.Purge(c.Context, c.Bool("purge-raw"))
	if err != nil {
		return fmt.Errorf("purge failed: %w", err)
	}

	fmt.Printf("Purge completed: %d embeddings removed", report.PurgedEmbeddings)
	if c.Bool("purge-raw") {
		fmt.Printf(", %d raw uploads deleted", report.PurgedRaw)
	}
	fmt.Println()
	return nil
}

func showStatus(c *cli.Context) error {
	cfg, logger, cleanup, dir, err := setup(c)
	if err != nil {
		return err
	}
	defer cleanup()

	client := api.New(cfg.BaseURL, cfg.APIKey, cfg.WorkspaceSlug, logger)
	if err := client.Authenticate(c.Context); err != nil {
		return fmt.Errorf("authentication failed, check your api-key: %w", err)
	}

	ledger, err := db.New(cfg.LedgerPath(dir))
	if err != nil {
		return err
	}
	defer ledger.Close()

	sc := scanner.New(cfg.FilePaths, cfg.DirectoryExcludes, cfg.FileExcludes, logger)
	desired, err := sc.Scan()
	if err != nil {
		return err
	}
	var totalSize int64
	for _, f := range desired {
		totalSize += f.Size
	}

	tracked, err := ledger.List()
	if err != nil {
		return err
	}

	remoteNames, err := client.ListDocuments(c.Context)
	if err != nil {
		return err
	}
	remote := make(map[string]struct{}, len(remoteNames))
	for _, name := range remoteNames {
		remote[name] = struct{}{}
	}

	// Remote locations are folder-qualified; the tree listing carries
	// bare names.
	missing := 0
	for _, doc := range tracked {
		if _, ok := remote[path.Base(doc.RemoteLocation)]; !ok {
			missing++
		}
	}

	fmt.Printf("Workspace: %s\n", cfg.WorkspaceSlug)
	fmt.Printf("Local files: %d (%s)\n", len(desired), utils.FormatSize(totalSize))
	fmt.Printf("Tracked documents: %d\n", len(tracked))
	fmt.Printf("Remote documents: %d\n", len(remoteNames))
	if missing > 0 {
		fmt.Printf("Tracked but missing remotely: %d (run 'sync --force' to rebuild)\n", missing)
	}
	return nil
}
