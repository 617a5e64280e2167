package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"runtime"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

const userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// Automation owns the Chrome process and the rewards page.
type Automation struct {
	config   *Config
	browser  *rod.Browser
	page     *rod.Page
	launcher *launcher.Launcher
	stopChan chan bool
	log      *StatusLog
}

func NewAutomation(config *Config, log *StatusLog) *Automation {
	return &Automation{
		config:   config,
		stopChan: make(chan bool, 1),
		log:      log,
	}
}

func (a *Automation) Close() {
	select {
	case a.stopChan <- true:
	default:
	}

	fmt.Println(T("cleaning_up"))

	if a.page != nil {
		a.page.Close()
	}

	if a.browser != nil {
		a.browser.Close()
	}

	if a.launcher != nil {
		a.launcher.Cleanup()
	}

	fmt.Println(T("browser_destroyed"))
}

func (a *Automation) isBrowserAlive() bool {
	if a.browser == nil {
		return false
	}

	_, err := a.browser.Version()
	if err != nil {
		a.debugLog("Browser version check failed: %v", err)
		return false
	}

	if a.page != nil {
		_, err := a.page.Info()
		if err != nil {
			a.debugLog("Page info check failed: %v", err)
			return false
		}
	}

	return true
}

// watchBrowser calls abort once the user closes the browser window.
func (a *Automation) watchBrowser(abort context.CancelFunc) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-a.stopChan:
			return
		case <-ticker.C:
			if !a.isBrowserAlive() {
				a.log.Error(T("browser_closed_by_user"))
				abort()
				return
			}
		}
	}
}

func (a *Automation) debugLog(format string, args ...interface{}) {
	if a.config.DebugMode {
		fmt.Printf("[DEBUG] "+format+"\n", args...)
	}
}

func (a *Automation) setupBrowser(abort context.CancelFunc) error {
	fmt.Println(T("browser_launching"))

	// Leakless deadlocks on Windows: https://github.com/go-rod/rod/issues/853
	useLeakless := runtime.GOOS != "windows"

	chromePath, chromeExists := launcher.LookPath()

	a.launcher = launcher.New().
		Leakless(useLeakless).
		Headless(a.config.Headless)

	// Must be set before Bin()
	if a.config.BrowserProfilePath != "" {
		a.launcher = a.launcher.UserDataDir(a.config.BrowserProfilePath)
		a.debugLog("Browser profile: %s", a.config.BrowserProfilePath)
	}

	if chromeExists {
		a.launcher = a.launcher.Bin(chromePath)
		fmt.Println(T("browser_using_system_chrome"))
		a.debugLog("Chrome binary: %s", chromePath)
	} else {
		fmt.Println(T("browser_chrome_not_found"))
	}

	url, err := a.launcher.Launch()
	if err != nil {
		errMsg := err.Error()
		if strings.Contains(errMsg, "ProcessSingleton") ||
			strings.Contains(errMsg, "SingletonLock") ||
			strings.Contains(errMsg, "Opening in existing browser session") {
			fmt.Println(T("error_chrome_already_running"))
			return fmt.Errorf("browser profile is in use: %w", err)
		}
		return fmt.Errorf("failed to launch browser: %w", err)
	}

	a.browser = rod.New().ControlURL(url)
	if err := a.browser.Connect(); err != nil {
		return fmt.Errorf("failed to connect to browser: %w", err)
	}

	go a.watchBrowser(abort)
	a.debugLog("Browser watcher started")

	fmt.Println(T("browser_launched"))
	return nil
}

// openRewardsPage opens a stealth tab on the rewards page and, unless
// disabled, waits for the user to confirm they are logged in.
func (a *Automation) openRewardsPage(stdin io.Reader) error {
	fmt.Printf(T("loading_rewards_page")+"\n", a.config.RewardsURL)

	var err error
	a.page, err = stealth.Page(a.browser)
	if err != nil {
		return fmt.Errorf("failed to create stealth page: %w", err)
	}

	err = a.page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: userAgent})
	if err != nil {
		a.debugLog("Warning: Failed to set User-Agent: %v", err)
	}

	timeout := time.Duration(a.config.Timings.PageLoadTimeoutSecs) * time.Second
	if err := a.page.Timeout(timeout).Navigate(a.config.RewardsURL); err != nil {
		return fmt.Errorf("failed to navigate: %w", err)
	}
	if err := a.page.Timeout(timeout).WaitLoad(); err != nil {
		return fmt.Errorf("page failed to load: %w", err)
	}

	if a.config.SkipLoginPrompt {
		return nil
	}

	fmt.Println()
	fmt.Println(T("login_required_header"))
	fmt.Println(T("login_instructions"))
	fmt.Print(T("login_prompt"))

	if err := waitForEnter(stdin); err != nil {
		return err
	}
	fmt.Println()
	fmt.Println(T("user_confirmed_ready"))
	return nil
}

// waitForEnter blocks until Enter; ESC cancels.
func waitForEnter(stdin io.Reader) error {
	reader := bufio.NewReader(stdin)
	for {
		input, err := reader.ReadByte()
		if err != nil {
			return fmt.Errorf("failed to read input: %w", err)
		}

		if input == '\n' || input == '\r' {
			return nil
		}

		if input == 27 {
			fmt.Println()
			fmt.Println(T("user_requested_exit"))
			return fmt.Errorf("user canceled operation")
		}
	}
}

// Surface exposes the rewards page to the locator and step engine.
func (a *Automation) Surface() Surface {
	return &RodSurface{page: a.page}
}
