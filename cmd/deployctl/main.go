package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	apiclient "github.com/splax/deploystream/pkg/api/client"
	jwtpkg "github.com/splax/deploystream/pkg/jwt"
	"golang.org/x/term"
)

type cliConfig struct {
	ServerURL   string `json:"server_url"`
	AccessToken string `json:"access_token"`
}

const defaultServerURL = "http://localhost:8080"

var buildVersion = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "login":
		err = commandLogin(args)
	case "token":
		err = commandToken(args)
	case "config":
		err = commandConfig(args)
	case "guide":
		err = commandGuide(args)
	case "deploy":
		err = commandDeploy(args)
	case "dry-run":
		err = commandDryRun(args)
	case "version", "--version", "-v":
		printVersion()
		return
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func commandLogin(args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	server := fs.String("server", "", "Server base URL (default http://localhost:8080)")
	token := fs.String("token", "", "Operator token (supply to avoid prompt)")
	fs.Parse(args)

	secret := strings.TrimSpace(*token)
	if secret == "" {
		value, err := readSecret("Operator token: ")
		if err != nil {
			return err
		}
		secret = value
	}

	cfg, _ := loadConfig()
	if strings.TrimSpace(*server) != "" {
		cfg.ServerURL = *server
	}
	cfg.AccessToken = secret
	if err := saveConfig(cfg); err != nil {
		return err
	}
	fmt.Println("login saved")
	return nil
}

func commandToken(args []string) error {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	operator := fs.String("operator", "", "Operator name embedded in the token")
	secret := fs.String("secret", "", "Signing secret (default $AUTH_TOKEN_SECRET)")
	ttl := fs.Duration("ttl", 12*time.Hour, "Token lifetime")
	fs.Parse(args)

	if strings.TrimSpace(*operator) == "" {
		return errors.New("--operator is required")
	}
	key := strings.TrimSpace(*secret)
	if key == "" {
		key = strings.TrimSpace(os.Getenv("AUTH_TOKEN_SECRET"))
	}
	if key == "" {
		return errors.New("--secret or AUTH_TOKEN_SECRET is required")
	}
	token, err := jwtpkg.GenerateToken(*operator, key, *ttl)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

func commandConfig(args []string) error {
	fs := flag.NewFlagSet("config", flag.ExitOnError)
	server := fs.String("server", "", "Server base URL")
	fs.Parse(args)

	client, err := newClient(*server)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	cfg, err := client.Config(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Deployment: %s\n", cfg.ActiveDeployment)
	if cfg.Description != "" {
		fmt.Printf("Description: %s\n", cfg.Description)
	}
	if len(cfg.Versions) > 0 {
		fmt.Printf("Versions: %s (default %s)\n", strings.Join(cfg.Versions, ", "), cfg.DefaultVersion)
	}
	return nil
}

func commandGuide(args []string) error {
	fs := flag.NewFlagSet("guide", flag.ExitOnError)
	server := fs.String("server", "", "Server base URL")
	fs.Parse(args)

	client, err := newClient(*server)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	doc, err := client.Help(ctx)
	if err != nil {
		return err
	}
	var pretty any
	if err := json.Unmarshal(doc, &pretty); err != nil {
		return fmt.Errorf("decode help: %w", err)
	}
	out, err := json.MarshalIndent(pretty, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func commandDeploy(args []string) error {
	fs := flag.NewFlagSet("deploy", flag.ExitOnError)
	server := fs.String("server", "", "Server base URL")
	version := fs.String("version", "", "Version to deploy (default from server config)")
	keyEnv := fs.String("api-key-env", "NGC_API_KEY", "Environment variable holding the API key")
	sync := fs.Bool("sync", false, "Wait for the full result instead of streaming progress")
	fs.Parse(args)

	apiKey, err := resolveAPIKey(*keyEnv)
	if err != nil {
		return err
	}
	client, err := newClient(*server)
	if err != nil {
		return err
	}
	req := apiclient.DeployRequest{APIKey: apiKey, Version: strings.TrimSpace(*version)}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *sync {
		resp, err := client.Deploy(ctx, req)
		if err != nil {
			var apiErr apiclient.APIError
			if errors.As(err, &apiErr) && apiErr.Output != "" {
				fmt.Println(apiErr.Output)
			}
			return err
		}
		if resp.Output != "" {
			fmt.Println(resp.Output)
		}
		fmt.Println(resp.Message)
		return nil
	}

	last, err := client.Stream(ctx, req, func(e apiclient.Event) error {
		printEvent(os.Stdout, e)
		return nil
	})
	if err != nil {
		return err
	}
	if last.Type == "error" {
		return errors.New("deployment failed")
	}
	return nil
}

func commandDryRun(args []string) error {
	fs := flag.NewFlagSet("dry-run", flag.ExitOnError)
	server := fs.String("server", "", "Server base URL")
	version := fs.String("version", "", "Version to resolve")
	keyEnv := fs.String("api-key-env", "NGC_API_KEY", "Environment variable holding the API key")
	fs.Parse(args)

	apiKey, err := resolveAPIKey(*keyEnv)
	if err != nil {
		return err
	}
	client, err := newClient(*server)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	resp, err := client.DryRun(ctx, apiclient.DeployRequest{APIKey: apiKey, Version: strings.TrimSpace(*version)})
	if err != nil {
		return err
	}
	w := resp.WouldExecute
	fmt.Println(resp.Message)
	fmt.Printf("Deployment: %s %s\n", w.DeploymentType, w.Version)
	fmt.Printf("Working directory: %s\n", w.WorkingDirectory)
	for i, cmd := range w.PreCommands {
		fmt.Printf("Pre-command %d: %s\n", i+1, cmd)
	}
	fmt.Printf("Command: %s\n", w.MainCommand)
	return nil
}

func printEvent(w io.Writer, e apiclient.Event) {
	switch e.Type {
	case "start", "success":
		fmt.Fprintf(w, "%s\n", e.Message)
	case "section":
		fmt.Fprintf(w, "\n== %s ==\n", e.Message)
	case "command":
		fmt.Fprintf(w, "$ %s\n", e.Message)
	case "pods":
		fmt.Fprintf(w, "\n%s\n", e.Message)
	case "pod":
		fmt.Fprintf(w, "  %s\n", e.Message)
	case "error":
		fmt.Fprintf(w, "ERROR: %s\n", e.Message)
	case "complete":
		fmt.Fprintln(w, "Deployment complete.")
	default:
		fmt.Fprintln(w, e.Message)
	}
}

func resolveAPIKey(envVar string) (string, error) {
	if value := strings.TrimSpace(os.Getenv(envVar)); value != "" {
		return value, nil
	}
	value, err := readSecret("API key: ")
	if err != nil {
		return "", err
	}
	if value == "" {
		return "", errors.New("API key is required")
	}
	return value, nil
}

func readSecret(prompt string) (string, error) {
	fmt.Print(prompt)
	bytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Print("\n")
	if err != nil {
		return "", fmt.Errorf("read secret: %w", err)
	}
	return strings.TrimSpace(string(bytes)), nil
}

func newClient(server string) (*apiclient.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(server) != "" {
		cfg.ServerURL = server
	}
	return apiclient.New(cfg.ServerURL, apiclient.WithToken(cfg.AccessToken))
}

func loadConfig() (cliConfig, error) {
	path, err := configPath()
	if err != nil {
		return cliConfig{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cliConfig{ServerURL: defaultServerURL}, nil
		}
		return cliConfig{}, err
	}
	var cfg cliConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cliConfig{}, err
	}
	if cfg.ServerURL == "" {
		cfg.ServerURL = defaultServerURL
	}
	return cfg, nil
}

func saveConfig(cfg cliConfig) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func configPath() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "deploystream", "config.json"), nil
}

func printUsage() {
	fmt.Printf("deployctl %s\n\n", buildVersion)
	fmt.Print(`Usage:
	deployctl login [--server http://localhost:8080] [--token <operator-token>]
	deployctl token --operator <name> [--secret <signing-secret>] [--ttl 12h]
	deployctl config [--server URL]
	deployctl guide [--server URL]
	deployctl deploy [--version v] [--api-key-env NGC_API_KEY] [--sync]
	deployctl dry-run [--version v] [--api-key-env NGC_API_KEY]
	deployctl version
`)
}

func printVersion() {
	fmt.Println(strings.TrimSpace(buildVersion))
}
