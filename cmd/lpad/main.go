package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/MrCodeEU/lpad/pkg/config"
	"github.com/MrCodeEU/lpad/pkg/logging"
	"github.com/MrCodeEU/lpad/pkg/recognition"
	"github.com/MrCodeEU/lpad/pkg/storage"
)

const version = "0.3.0"

// Command represents a CLI command.
type Command struct {
	Name        string
	Description string
	Usage       string
	Run         func(args []string) error
}

var (
	cfg      *config.Config
	commands map[string]*Command
)

// commandOrder is the order commands are listed in the usage text.
var commandOrder = []string{
	"run", "enroll", "remove", "list", "train", "passwd", "replay",
	"download-models", "config", "version", "help",
}

func init() {
	commands = map[string]*Command{
		"run": {
			Name:        "run",
			Description: "Start the kiosk (s = security mode, x = stop, q = quit)",
			Usage:       "lpad run",
			Run:         cmdRun,
		},
		"enroll": {
			Name:        "enroll",
			Description: "Record face samples for a user and retrain",
			Usage:       "lpad enroll <name>",
			Run:         cmdEnroll,
		},
		"remove": {
			Name:        "remove",
			Description: "Remove a user's samples and retrain",
			Usage:       "lpad remove <name>",
			Run:         cmdRemove,
		},
		"list": {
			Name:        "list",
			Description: "List all enrolled users",
			Usage:       "lpad list",
			Run:         cmdList,
		},
		"train": {
			Name:        "train",
			Description: "Retrain the recognizer from stored samples",
			Usage:       "lpad train",
			Run:         cmdTrain,
		},
		"passwd": {
			Name:        "passwd",
			Description: "Set or change the admin password",
			Usage:       "lpad passwd",
			Run:         cmdPasswd,
		},
		"replay": {
			Name:        "replay",
			Description: "Run a security session over recorded frames without a camera",
			Usage:       "lpad replay [-fps n] [-loop] <dir>",
			Run:         cmdReplay,
		},
		"download-models": {
			Name:        "download-models",
			Description: "Download the dlib face models",
			Usage:       "lpad download-models [dir]",
			Run:         cmdDownloadModels,
		},
		"config": {
			Name:        "config",
			Description: "Show current configuration",
			Usage:       "lpad config",
			Run:         cmdConfig,
		},
		"version": {
			Name:        "version",
			Description: "Show version information",
			Usage:       "lpad version",
			Run:         cmdVersion,
		},
		"help": {
			Name:        "help",
			Description: "Show help information",
			Usage:       "lpad help [command]",
			Run:         cmdHelp,
		},
	}
}

func main() {
	// Parse global flags
	configFile := flag.String("config", "", "Path to configuration file")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	args := flag.Args()

	var err error
	cfg, err = config.Resolve(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not load config: %v\n", err)
		cfg = config.DefaultConfig()
	}
	cfg.ExpandPaths()

	logLevel := cfg.Logging.Level
	if *debug {
		logLevel = "debug"
	}
	if err := logging.Init(logLevel, cfg.Logging.File); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not initialize file logging: %v\n", err)
	}
	logging.SetFormat(cfg.Logging.Format)

	logging.Debugf("lpad v%s starting", version)
	logging.Debugf("Config loaded, storage dir: %s", cfg.Storage.DataDir)

	if len(args) < 1 {
		printUsage()
		os.Exit(0)
	}

	cmdName := args[0]
	cmd, ok := commands[cmdName]
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmdName)
		printUsage()
		os.Exit(1)
	}

	if err := cmd.Run(args[1:]); err != nil {
		logging.WithError(err).Errorf("Command '%s' failed", cmdName)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("lpad - Face access kiosk with flash liveness check")
	fmt.Printf("Version: %s\n\n", version)
	fmt.Println("Usage: lpad [options] <command> [arguments]")
	fmt.Println("\nOptions:")
	fmt.Println("  -config <file>   Path to configuration file")
	fmt.Println("  -debug           Enable debug logging")
	fmt.Println("\nCommands:")
	for _, name := range commandOrder {
		cmd := commands[name]
		fmt.Printf("  %-16s %s\n", cmd.Name, cmd.Description)
	}
	fmt.Println("\nExamples:")
	fmt.Println("  lpad download-models       # Fetch the face models once")
	fmt.Println("  lpad enroll alice          # Enroll user 'alice'")
	fmt.Println("  lpad run                   # Start the kiosk")
	fmt.Println("\nRun 'lpad help <command>' for more information on a command.")
}

// openStore opens the sample store without loading the face models.
func openStore() (*storage.FileStorage, error) {
	store, err := storage.NewFileStorage(cfg.Storage.DataDir, cfg.Storage.EncryptionEnabled)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	return store, nil
}

func cmdList(args []string) error {
	logging.Debug("Listing enrolled users")

	store, err := openStore()
	if err != nil {
		return err
	}

	users, err := store.ListUsers()
	if err != nil {
		return err
	}
	if len(users) == 0 {
		fmt.Println("No users enrolled.")
		return nil
	}

	trained := map[string]bool{}
	model, err := store.LoadModel()
	switch {
	case err == nil:
		for _, id := range model.Identities() {
			trained[id] = true
		}
	case !errors.Is(err, recognition.ErrModelNotFound):
		logging.WithError(err).Warn("Failed to load model")
	}

	fmt.Print(formatUserList(users, store.SampleCount, trained))
	return nil
}

// formatUserList renders the list command output.
func formatUserList(users []string, samples func(string) int, trained map[string]bool) string {
	var b strings.Builder
	b.WriteString("Enrolled users:\n")
	for _, user := range users {
		mark := ""
		if !trained[user] {
			mark = " (not trained)"
		}
		fmt.Fprintf(&b, "  - %s: %d sample(s)%s\n", user, samples(user), mark)
	}
	fmt.Fprintf(&b, "\nTotal: %d user(s)\n", len(users))
	return b.String()
}

func cmdConfig(args []string) error {
	logging.Debug("Showing configuration")

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to render configuration: %w", err)
	}

	fmt.Println("# Current configuration")
	fmt.Print(string(data))
	if err := cfg.Validate(); err != nil {
		fmt.Printf("\n# WARNING: %v\n", err)
	}
	return nil
}

func cmdVersion(args []string) error {
	fmt.Printf("lpad v%s\n", version)
	fmt.Println("Face access kiosk with flash liveness check")
	return nil
}

func cmdHelp(args []string) error {
	if len(args) == 0 {
		printUsage()
		return nil
	}

	cmdName := args[0]
	cmd, ok := commands[cmdName]
	if !ok {
		return fmt.Errorf("unknown command: %s", cmdName)
	}

	fmt.Printf("Command: %s\n", cmd.Name)
	fmt.Printf("Description: %s\n", cmd.Description)
	fmt.Printf("Usage: %s\n", cmd.Usage)

	switch cmdName {
	case "run":
		fmt.Println("\nSecurity mode:")
		fmt.Println("  1. Look at the screen until your name is shown")
		fmt.Println("  2. Hold still while the screen goes dark and then flashes")
		fmt.Println("  3. Access is granted for the reauthentication interval")
	case "enroll":
		fmt.Println("\nEnrollment Process:")
		fmt.Println("  1. Enter the admin password (set on first use)")
		fmt.Println("  2. Face the camera until all samples are recorded")
		fmt.Println("  3. The recognizer is retrained and the command exits")
	case "replay":
		fmt.Println("\nReplay:")
		fmt.Println("  Frames are read in name order and timed by -fps, so a")
		fmt.Println("  recording gives the same decisions on every run.")
	case "config":
		fmt.Println("\nConfiguration Locations:")
		fmt.Printf("  System: %s\n", config.SystemConfigPath)
		fmt.Println("  User:   ~/.config/lpad/lpad.yaml")
		fmt.Println("\nUse -config flag to specify a custom config file.")
	}

	return nil
}
