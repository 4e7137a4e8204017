package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/MrCodeEU/lpad/pkg/access"
	"github.com/MrCodeEU/lpad/pkg/camera"
	"github.com/MrCodeEU/lpad/pkg/clock"
	"github.com/MrCodeEU/lpad/pkg/display"
	"github.com/MrCodeEU/lpad/pkg/kiosk"
	"github.com/MrCodeEU/lpad/pkg/logging"
)

const windowTitle = "lpad"

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// openSystem ensures the data directories exist and wires the kiosk.
func openSystem(clk clock.Clock) (*access.System, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}
	return access.NewSystem(cfg, clk)
}

func cmdRun(args []string) error {
	sys, err := openSystem(clock.Real{})
	if err != nil {
		return err
	}
	defer sys.Close()

	cam, err := camera.Open(sys.CameraSettings())
	if err != nil {
		return err
	}
	defer func() { _ = cam.Close() }()

	win := display.NewWindow(windowTitle, true)
	defer func() { _ = win.Close() }()

	ctx, cancel := signalContext()
	defer cancel()
	sys.ServeStatus(ctx)

	if !sys.Service.Trained() {
		fmt.Println("No users enrolled yet. Run 'lpad enroll <name>' first.")
	}
	fmt.Println("Kiosk running: s = security mode, x = stop, q = quit")

	return sys.Runner(cam).Run(ctx, win)
}

// quitAfterTraining ends the loop once the enrollment quota is reached. The
// runner still trains before it honours the quit.
type quitAfterTraining struct {
	access.Display
}

func (q quitAfterTraining) Show(frame camera.Frame, r kiosk.Render) access.Action {
	action := q.Display.Show(frame, r)
	if r.TrainingPending {
		return access.ActionQuit
	}
	return action
}

// userName reads the identity argument of command.
func userName(command string, args []string) (string, error) {
	if len(args) < 1 {
		return "", fmt.Errorf("name required\nUsage: lpad %s <name>", command)
	}
	name := strings.TrimSpace(args[0])
	if !kiosk.ValidIdentity(name) {
		return "", fmt.Errorf("invalid name %q", name)
	}
	return name, nil
}

func cmdEnroll(args []string) error {
	name, err := userName("enroll", args)
	if err != nil {
		return err
	}

	if err := authorizeAdmin(); err != nil {
		return err
	}

	sys, err := openSystem(clock.Real{})
	if err != nil {
		return err
	}
	defer sys.Close()

	if sys.Store.UserExists(name) {
		fmt.Printf("User '%s' already has samples; new samples replace them by index.\n", name)
	}

	cam, err := camera.Open(sys.CameraSettings())
	if err != nil {
		return err
	}
	defer func() { _ = cam.Close() }()

	win := display.NewWindow(windowTitle, false)
	defer func() { _ = win.Close() }()

	if err := sys.Kiosk.StartEnrollment(name); err != nil {
		return err
	}

	fmt.Printf("Enrolling '%s': face the camera (q to abort)...\n", name)
	logging.Infof("Starting enrollment for user: %s", name)

	ctx, cancel := signalContext()
	defer cancel()

	if err := sys.Runner(cam).Run(ctx, quitAfterTraining{win}); err != nil {
		return err
	}

	if !sys.Service.Trained() || !contains(sys.Service.Model().Identities(), name) {
		return fmt.Errorf("enrollment of '%s' did not complete", name)
	}
	fmt.Printf("User '%s' enrolled with %d sample(s).\n", name, sys.Store.SampleCount(name))
	return nil
}

func cmdRemove(args []string) error {
	name, err := userName("remove", args)
	if err != nil {
		return err
	}

	if err := authorizeAdmin(); err != nil {
		return err
	}

	sys, err := openSystem(clock.Real{})
	if err != nil {
		return err
	}
	defer sys.Close()

	logging.Infof("Removing face data for user: %s", name)
	if err := sys.Service.DeleteUser(name); err != nil {
		return fmt.Errorf("failed to remove user: %w", err)
	}

	fmt.Printf("Face data for '%s' has been removed.\n", name)
	return nil
}

func cmdTrain(args []string) error {
	sys, err := openSystem(clock.Real{})
	if err != nil {
		return err
	}
	defer sys.Close()

	start := time.Now()
	if err := sys.Service.Train(); err != nil {
		return err
	}

	m := sys.Service.Model()
	fmt.Printf("Trained %d user(s) from %d sample(s) in %v.\n",
		len(m.Identities()), len(m.Embeddings), time.Since(start).Round(time.Millisecond))
	return nil
}

func cmdReplay(args []string) error {
	fs := flag.NewFlagSet("replay", flag.ContinueOnError)
	fps := fs.Int("fps", cfg.Camera.FPS, "Simulated frame rate")
	loop := fs.Bool("loop", false, "Loop the recording until interrupted")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("directory required\nUsage: lpad replay [-fps n] [-loop] <dir>")
	}

	clk := clock.NewManual(time.Now())
	sys, err := openSystem(clk)
	if err != nil {
		return err
	}
	defer sys.Close()

	src, err := camera.OpenReplay(fs.Arg(0), *fps, clk, *loop)
	if err != nil {
		return err
	}
	defer func() { _ = src.Close() }()

	if err := sys.Kiosk.StartSecurity(); err != nil {
		return err
	}

	fmt.Printf("Replaying %d frame(s) at %d fps\n", src.Len(), *fps)

	ctx, cancel := signalContext()
	defer cancel()

	if err := sys.Runner(src).Run(ctx, display.NewPrinter(os.Stdout)); err != nil {
		return err
	}

	st := sys.Kiosk.Snapshot().Liveness
	fmt.Printf("Final state: %s", st.State)
	if st.Identity != "" {
		fmt.Printf(" (%s, %d failed cycle(s))", st.Identity, st.Attempts)
	}
	fmt.Println()
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
