package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrCodeEU/lpad/pkg/access"
	"github.com/MrCodeEU/lpad/pkg/camera"
	"github.com/MrCodeEU/lpad/pkg/clock"
	"github.com/MrCodeEU/lpad/pkg/config"
	"github.com/MrCodeEU/lpad/pkg/display"
	"github.com/MrCodeEU/lpad/pkg/logging"
)

const version = "0.3.0"

// Exit codes:
//
//	0 = access granted
//	1 = access denied (spoof) or face not recognized
//	2 = no model, timeout or no face (fall back to another method)
//	3 = system error
const (
	exitGranted  = 0
	exitDenied   = 1
	exitFallback = 2
	exitSystem   = 3
)

func main() {
	os.Exit(run())
}

func run() int {
	configFile := flag.String("config", "", "Path to configuration file")
	timeout := flag.Duration("timeout", 15*time.Second, "Give up after this long")
	headless := flag.Bool("headless", false, "Do not open a window (the flash check needs one)")
	flag.Parse()

	cfg, err := config.Resolve(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "lpad: Configuration error: %v\n", err)
		return exitSystem
	}
	cfg.ExpandPaths()

	// Log to file only; stdout belongs to the caller.
	if err := logging.Init(cfg.Logging.Level, cfg.Logging.File); err != nil {
		fmt.Fprintf(os.Stderr, "lpad: Could not initialize file logging: %v\n", err)
	}
	logging.SetFormat(cfg.Logging.Format)
	logging.Infof("lpad-verify v%s starting", version)

	// Override timeout if set in environment
	if env := os.Getenv("LPAD_VERIFY_TIMEOUT"); env != "" {
		if d, err := time.ParseDuration(env); err == nil && d > 0 {
			*timeout = d
		}
	}

	sys, err := access.NewSystem(cfg, clock.Real{})
	if err != nil {
		logging.Errorf("Failed to initialize kiosk: %v", err)
		fmt.Fprintln(os.Stderr, "lpad: Initialization error")
		return exitSystem
	}
	defer sys.Close()

	cam, err := camera.Open(sys.CameraSettings())
	if err != nil {
		logging.Errorf("Failed to open camera: %v", err)
		fmt.Fprintln(os.Stderr, "lpad: Camera error")
		return exitSystem
	}
	defer func() { _ = cam.Close() }()

	var disp access.Display
	if !*headless {
		win := display.NewWindow("lpad-verify", true)
		defer func() { _ = win.Close() }()
		disp = win
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	fmt.Fprintln(os.Stderr, "lpad: Look at the screen...")
	result := sys.Runner(cam).Verify(ctx, disp, *timeout)

	return report(result, os.Stderr)
}

// exitCode maps a verification result to the process exit code.
func exitCode(result access.AuthResult) int {
	if result.Success {
		return exitGranted
	}

	code, ok := access.CodeOf(result.Error)
	if !ok {
		return exitDenied
	}
	switch code {
	case access.ErrCodeLiveness, access.ErrCodeNotRecognized:
		return exitDenied
	case access.ErrCodeNotEnrolled, access.ErrCodeTimeout, access.ErrCodeNoFace, access.ErrCodeCancelled:
		return exitFallback
	case access.ErrCodeCamera:
		return exitSystem
	}
	return exitDenied
}

// report writes a one-line summary of result to w and returns the exit code.
func report(result access.AuthResult, w io.Writer) int {
	if result.Success {
		logging.Infof("Verification successful for %s (attempts: %d, duration: %v)",
			result.Username, result.Attempts, result.Duration)
		fmt.Fprintf(w, "lpad: Access granted, welcome %s\n", result.Username)
		return exitGranted
	}

	logging.Warnf("Verification failed: %s (duration: %v)", result.Reason, result.Duration)

	msg := result.Reason
	if code, ok := access.CodeOf(result.Error); ok {
		msg = access.GetErrorMessage(code)
	}
	fmt.Fprintf(w, "lpad: %s\n", msg)
	return exitCode(result)
}
