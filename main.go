package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"
)

type options struct {
	configPath   string
	codesFile    string
	platform     string
	resume       bool
	resetHistory bool
	saveList     string
	loadList     string
	exportPath   string
	relay        bool
	watch        bool
	debug        bool
	headless     bool
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", "config.yaml", "Path to configuration file")
	flag.StringVar(&opts.codesFile, "codes", "", "File to read codes from ('-' for stdin, which skips the login prompt)")
	flag.StringVar(&opts.platform, "platform", "", "Redeem for: Steam, Xbox Live, Epic or PSN (overrides config)")
	flag.BoolVar(&opts.resume, "resume", false, "Resume the interrupted run")
	flag.BoolVar(&opts.resetHistory, "reset-history", false, "Clear the history of attempted codes (asks for confirmation)")
	flag.StringVar(&opts.saveList, "save-list", "", "Save the parsed input codes under this name")
	flag.StringVar(&opts.loadList, "load-list", "", "Load a saved code list as input")
	flag.StringVar(&opts.exportPath, "export", "", "Write the run's results as CSV to this path")
	flag.BoolVar(&opts.relay, "relay", false, "Run the companion relay server instead of redeeming")
	flag.BoolVar(&opts.watch, "watch", false, "Keep running and redeem codes delivered through the mailbox")
	flag.BoolVar(&opts.debug, "debug", false, "Enable detailed debug logging")
	flag.BoolVar(&opts.headless, "headless", false, "Run the browser headless")
	flag.Parse()

	if err := InitLocale(); err != nil {
		log.Printf("Warning: Locale initialization failed, using default English: %v", err)
	}

	checkUserDataDirPermissions()

	config, err := LoadConfig(opts.configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if opts.platform != "" {
		config.Platform = opts.platform
	}
	if opts.debug {
		config.DebugMode = true
	}
	if opts.headless {
		config.Headless = true
	}
	if opts.codesFile == "-" {
		config.SkipLoginPrompt = true
	}
	if err := config.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	statusLog := NewStatusLog(os.Stdout)

	if opts.relay {
		if err := runRelay(ctx, cancel, config, statusLog); err != nil {
			log.Fatalf("Relay failed: %v", err)
		}
		return
	}

	if err := run(ctx, cancel, config, opts, statusLog, flag.Args()); err != nil {
		log.Fatalf("%v", err)
	}
}

func run(ctx context.Context, cancel context.CancelFunc, config *Config, opts options, statusLog *StatusLog, args []string) error {
	platform, _ := ParsePlatform(config.Platform)

	sqlStore, err := OpenSQLiteStore(config.StatePath)
	if err != nil {
		return fmt.Errorf("open state store: %w", err)
	}
	defer sqlStore.Close()
	store := NewStateStore(sqlStore)

	ledger, err := LoadLedger(ctx, store)
	if err != nil {
		statusLog.Warn(T("ledger_load_failed", err))
	}

	if opts.resetHistory {
		fmt.Print(T("reset_history_confirm"))
		if confirm(os.Stdin) {
			if err := NewController(config, nil, store, ledger, statusLog).ResetHistory(ctx); err != nil {
				return err
			}
		}
	}

	input, err := gatherInput(ctx, opts, store, args)
	if err != nil {
		return err
	}
	if opts.saveList != "" {
		codes := ParseCodes(input)
		if err := store.SaveList(ctx, opts.saveList, codes); err != nil {
			return fmt.Errorf("save list: %w", err)
		}
		statusLog.OK(T("list_saved", len(codes), opts.saveList))
	}

	saved, err := store.LoadRunState(ctx)
	if err != nil {
		statusLog.Warn(T("state_load_failed", err))
	}
	interrupted := saved != nil && saved.Running && len(saved.Remaining()) > 0
	resume := opts.resume || interrupted

	if !resume && strings.TrimSpace(input) == "" && !opts.watch {
		if saved != nil && len(saved.Remaining()) > 0 {
			statusLog.Info(T("resume_available", len(saved.Remaining())))
		} else if !opts.resetHistory && opts.saveList == "" {
			statusLog.Warn(T("no_input"))
		}
		return nil
	}

	printBanner(config, platform)

	automation := NewAutomation(config, statusLog)
	defer automation.Close()

	if err := automation.setupBrowser(cancel); err != nil {
		return fmt.Errorf("failed to setup browser: %w", err)
	}
	if err := automation.openRewardsPage(os.Stdin); err != nil {
		return err
	}

	engine := NewStepEngine(automation.Surface(), TimingsFromConfig(config.Timings), config.MaxDismissals)
	engine.SetDebug(automation.debugLog)
	controller := NewController(config, engine, store, ledger, statusLog)
	controller.AppendInput(input)

	stopped := make(chan struct{})
	go handleSignals(ctx, cancel, controller, stopped)

	var poller *MailboxPoller
	mailbox, err := OpenMailbox(ctx, config.Mailbox)
	if err != nil {
		statusLog.Warn(T("mailbox_unavailable", err))
	} else if mailbox != nil {
		defer mailbox.Close()
		poller = NewMailboxPoller(mailbox, controller, statusLog, ms(config.Mailbox.PollIntervalMs))
		poller.Start(ctx)
	}

	if resume {
		if err := controller.Resume(ctx); err != nil && !isBenign(err) {
			return err
		}
		exportRun(opts, config, controller, statusLog)
	}

	if strings.TrimSpace(input) != "" && !isClosed(stopped) {
		if err := controller.Start(ctx, platform); err != nil && !isBenign(err) {
			return err
		}
		exportRun(opts, config, controller, statusLog)
	}

	if !opts.watch && poller != nil && !isClosed(stopped) {
		ran, err := finishMailbox(ctx, poller, controller, platform)
		if err != nil && !isBenign(err) {
			return err
		}
		if ran {
			exportRun(opts, config, controller, statusLog)
		}
	}

	if opts.watch && poller != nil && !isClosed(stopped) {
		statusLog.Info(T("watching_mailbox"))
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-stopped:
				return nil
			case <-poller.Delivered():
				if err := controller.Start(ctx, platform); err != nil && !isBenign(err) {
					return err
				}
				exportRun(opts, config, controller, statusLog)
			}
		}
	}

	if config.KeepBrowserOpen && ctx.Err() == nil {
		fmt.Println(T("keeping_browser_open"))
		time.Sleep(30 * time.Second)
	}
	return nil
}

// finishMailbox halts the poller and runs once more over codes it delivered
// while the earlier batches were in progress.
func finishMailbox(ctx context.Context, poller *MailboxPoller, controller *Controller, platform Platform) (bool, error) {
	poller.Halt()
	select {
	case <-poller.Delivered():
		return true, controller.Start(ctx, platform)
	default:
		return false, nil
	}
}

// isBenign reports errors that end a run without failing the program.
func isBenign(err error) bool {
	return errors.Is(err, ErrNoNewCodes) ||
		errors.Is(err, ErrNothingToResume) ||
		errors.Is(err, ErrCircuitOpen) ||
		errors.Is(err, context.Canceled)
}

func gatherInput(ctx context.Context, opts options, store *StateStore, args []string) (string, error) {
	var parts []string
	if len(args) > 0 {
		parts = append(parts, strings.Join(args, "\n"))
	}
	switch opts.codesFile {
	case "":
	case "-":
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("read codes from stdin: %w", err)
		}
		parts = append(parts, string(data))
	default:
		data, err := os.ReadFile(opts.codesFile)
		if err != nil {
			return "", fmt.Errorf("read codes file: %w", err)
		}
		parts = append(parts, string(data))
	}
	if opts.loadList != "" {
		codes, err := store.LoadList(ctx, opts.loadList)
		if err != nil {
			return "", fmt.Errorf("load list: %w", err)
		}
		parts = append(parts, strings.Join(codes, "\n"))
	}
	return strings.Join(parts, "\n"), nil
}

func exportRun(opts options, config *Config, controller *Controller, statusLog *StatusLog) {
	if opts.exportPath == "" && config.ExportDir == "" {
		return
	}
	results := controller.LastRun().Results
	if len(results) == 0 {
		statusLog.Warn(T("no_results_to_export"))
		return
	}
	path, err := ExportResults(opts.exportPath, config.ExportDir, results, time.Now())
	if err != nil {
		statusLog.Error(T("export_failed", err))
		return
	}
	statusLog.OK(T("exported_results", len(results), path))
}

// handleSignals turns the first interrupt into a cooperative stop and the second into an abort.
func handleSignals(ctx context.Context, cancel context.CancelFunc, controller *Controller, stopped chan struct{}) {
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)

	stopping := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-sigs:
			if stopping || controller.Phase() == PhaseIdle {
				cancel()
				return
			}
			stopping = true
			close(stopped)
			controller.Stop()
		}
	}
}

func runRelay(ctx context.Context, cancel context.CancelFunc, config *Config, statusLog *StatusLog) error {
	mailbox, err := OpenMailbox(ctx, config.Mailbox)
	if err != nil {
		return err
	}
	if mailbox == nil {
		return fmt.Errorf("mailbox.redis_addr is required for the relay")
	}
	defer mailbox.Close()

	go func() {
		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
		<-sigs
		cancel()
	}()

	return NewRelay(mailbox, statusLog).Serve(ctx, config.Relay.ListenAddr, config.Relay.AllowedOrigins)
}

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

// confirm reads a y/N answer.
func confirm(r io.Reader) bool {
	line, _ := bufio.NewReader(r).ReadString('\n')
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

func printBanner(config *Config, platform Platform) {
	fmt.Println("╔═══════════════════════════════════════════════════════════╗")
	fmt.Println("║                 SHiFT Code Redeem Helper                  ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf(T("banner_rewards_url")+"\n", config.RewardsURL)
	fmt.Printf(T("banner_platform")+"\n", platform)
	fmt.Printf(T("banner_profile")+"\n", config.BrowserProfilePath)
	if config.DebugMode {
		fmt.Println(T("banner_debug"))
	}
	fmt.Println()
}

// Store init error for later display (after locale is loaded)
var initUserDataDirError error

func init() {
	userDataDir := getUserDataDir()
	if err := os.MkdirAll(userDataDir, 0755); err != nil {
		initUserDataDirError = err
	}
}

func checkUserDataDirPermissions() {
	if initUserDataDirError != nil {
		if runtime.GOOS == "darwin" && strings.Contains(initUserDataDirError.Error(), "operation not permitted") {
			fmt.Printf(T("error_macos_permission")+"\n", getUserDataDir())
		}
		log.Printf(T("error_user_data_dir_warning"), initUserDataDirError)
	}
}

func getUserDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./shift-helper-data"
	}
	return filepath.Join(home, ".shift-helper")
}
