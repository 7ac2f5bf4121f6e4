package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"golang.org/x/term"

	apiclient "github.com/splax/domainmap/pkg/api/client"
	"github.com/splax/domainmap/pkg/jwt"
)

type cliConfig struct {
	APIBaseURL  string `json:"api_base_url"`
	AccessToken string `json:"access_token"`
}

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
	case "domain":
		err = commandDomain(args)
	case "settings":
		err = commandSettings(args)
	case "logs":
		err = commandLogs(args)
	case "integrations":
		err = commandIntegrations(args)
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

// commandLogin mints an admin token from the shared JWT secret and stores it.
func commandLogin(args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	subject := fs.String("subject", "domainctl", "Token subject")
	secretFlag := fs.String("secret", "", "JWT signing secret (supply to avoid prompt)")
	scopes := fs.String("scopes", "", "Comma separated scopes (default all)")
	ttl := fs.Duration("ttl", 12*time.Hour, "Token lifetime")
	apiBase := fs.String("api", "", "API base URL (default http://localhost:4000)")
	fs.Parse(args)

	secret := strings.TrimSpace(*secretFlag)
	if secret == "" {
		fmt.Print("JWT secret: ")
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Print("\n")
		if err != nil {
			return fmt.Errorf("read secret: %w", err)
		}
		secret = strings.TrimSpace(string(raw))
	}
	if secret == "" {
		return errors.New("secret is required")
	}

	var scopeList []string
	for _, s := range strings.Split(*scopes, ",") {
		if s = strings.TrimSpace(s); s != "" {
			scopeList = append(scopeList, s)
		}
	}
	token, err := jwt.GenerateToken(*subject, scopeList, secret, *ttl)
	if err != nil {
		return err
	}

	cfg, _ := loadConfig()
	if strings.TrimSpace(*apiBase) != "" {
		cfg.APIBaseURL = *apiBase
	}
	cfg.AccessToken = token
	if err := saveConfig(cfg); err != nil {
		return err
	}
	fmt.Println("token saved")
	return nil
}

func commandDomain(args []string) error {
	if len(args) == 0 {
		return errors.New("domain subcommand required (list|add|delete|restart|dns)")
	}
	switch args[0] {
	case "list":
		return domainList(args[1:])
	case "add":
		return domainAdd(args[1:])
	case "delete":
		return domainByID("delete", args[1:])
	case "restart":
		return domainByID("restart", args[1:])
	case "dns":
		return domainByID("dns", args[1:])
	}
	return fmt.Errorf("unknown domain subcommand: %s", args[0])
}

func session() (*apiclient.Client, cliConfig, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, cfg, err
	}
	if cfg.AccessToken == "" {
		return nil, cfg, errors.New("not logged in; run domainctl login")
	}
	client, err := apiclient.New(cfg.APIBaseURL)
	return client, cfg, err
}

func domainList(args []string) error {
	fs := flag.NewFlagSet("domain list", flag.ExitOnError)
	site := fs.String("site", "", "Filter by site id")
	limit := fs.Int("limit", 50, "Maximum domains to list")
	fs.Parse(args)

	client, cfg, err := session()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	domains, err := client.ListDomains(ctx, cfg.AccessToken, *site, *limit)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tDOMAIN\tSITE\tSTAGE\tSECURE\tPRIMARY")
	for _, d := range domains {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\t%t\n", d.ID, d.Domain, d.SiteID, d.Stage, d.Secure, d.PrimaryDomain)
	}
	return w.Flush()
}

func domainAdd(args []string) error {
	fs := flag.NewFlagSet("domain add", flag.ExitOnError)
	site := fs.String("site", "", "Site id")
	host := fs.String("domain", "", "Hostname to map")
	primary := fs.Bool("primary", false, "Make this the site's primary domain")
	fs.Parse(args)
	if strings.TrimSpace(*site) == "" || strings.TrimSpace(*host) == "" {
		return errors.New("--site and --domain are required")
	}

	client, cfg, err := session()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	d, err := client.CreateDomain(ctx, cfg.AccessToken, *site, *host, *primary)
	if err != nil {
		return err
	}
	fmt.Printf("domain %s mapped (id %s, stage %s)\n", d.Domain, d.ID, d.Stage)
	return nil
}

func domainByID(action string, args []string) error {
	fs := flag.NewFlagSet("domain "+action, flag.ExitOnError)
	id := fs.String("id", "", "Domain id")
	fs.Parse(args)
	if strings.TrimSpace(*id) == "" {
		return errors.New("--id is required")
	}

	client, cfg, err := session()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch action {
	case "delete":
		if err := client.DeleteDomain(ctx, cfg.AccessToken, *id); err != nil {
			return err
		}
		fmt.Println("domain deleted")
	case "restart":
		d, err := client.RestartDomain(ctx, cfg.AccessToken, *id)
		if err != nil {
			return err
		}
		fmt.Printf("verification restarted for %s\n", d.Domain)
	case "dns":
		report, err := client.DomainDNS(ctx, cfg.AccessToken, *id)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TYPE\tDATA\tTTL")
		for _, r := range report.Entries {
			fmt.Fprintf(w, "%s\t%s\t%d\n", r.Type, r.Data, r.TTL)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Printf("network ip: %s\n", strings.Join(report.NetworkIP, ", "))
	}
	return nil
}

func commandSettings(args []string) error {
	if len(args) < 2 {
		return errors.New("usage: domainctl settings get <key> | set <key> <json-value>")
	}
	client, cfg, err := session()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	var value any
	switch args[0] {
	case "get":
		value, err = client.GetSetting(ctx, cfg.AccessToken, args[1])
	case "set":
		if len(args) < 3 {
			return errors.New("value required")
		}
		var parsed any
		if jsonErr := json.Unmarshal([]byte(args[2]), &parsed); jsonErr != nil {
			parsed = args[2]
		}
		value, err = client.SetSetting(ctx, cfg.AccessToken, args[1], parsed)
	default:
		return fmt.Errorf("unknown settings subcommand: %s", args[0])
	}
	if err != nil {
		return err
	}
	out, _ := json.Marshal(value)
	fmt.Printf("%s = %s\n", args[1], out)
	return nil
}

func commandLogs(args []string) error {
	fs := flag.NewFlagSet("logs", flag.ExitOnError)
	channel := fs.String("channel", "", "Log channel, for example domain-shop.example.com")
	limit := fs.Int("limit", 50, "Lines to fetch")
	fs.Parse(args)
	if strings.TrimSpace(*channel) == "" {
		return errors.New("--channel is required")
	}

	client, cfg, err := session()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	entries, err := client.ListLogs(ctx, cfg.AccessToken, *channel, *limit)
	if err != nil {
		return err
	}
	for _, e := range entries {
		fmt.Printf("%s  %s\n", e.CreatedAt.Local().Format(time.DateTime), e.Message)
	}
	return nil
}

func commandIntegrations(args []string) error {
	if len(args) < 1 || args[0] != "test" {
		return errors.New("usage: domainctl integrations test")
	}
	client, cfg, err := session()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	results, err := client.TestIntegrations(ctx, cfg.AccessToken)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Println("no integrations configured")
		return nil
	}
	failed := 0
	for _, res := range results {
		if res.OK {
			fmt.Printf("%-20s ok\n", res.ID)
			continue
		}
		failed++
		fmt.Printf("%-20s FAILED  %s\n", res.ID, res.Error)
	}
	if failed > 0 {
		return fmt.Errorf("%d integration(s) failed", failed)
	}
	return nil
}

func loadConfig() (cliConfig, error) {
	path, err := configPath()
	if err != nil {
		return cliConfig{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cliConfig{APIBaseURL: "http://localhost:4000"}, nil
		}
		return cliConfig{}, err
	}
	var cfg cliConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cliConfig{}, err
	}
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = "http://localhost:4000"
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
	return filepath.Join(base, "domainmap", "config.json"), nil
}

func printUsage() {
	fmt.Printf("domainctl %s\n\n", buildVersion)
	fmt.Print(`Usage:
	domainctl login [--secret s] [--scopes domains,settings] [--ttl 12h] [--api http://localhost:4000]
	domainctl domain list [--site <site-id>] [--limit N]
	domainctl domain add --site <site-id> --domain <host> [--primary]
	domainctl domain delete --id <domain-id>
	domainctl domain restart --id <domain-id>
	domainctl domain dns --id <domain-id>
	domainctl settings get <key>
	domainctl settings set <key> <json-value>
	domainctl logs --channel <channel> [--limit N]
	domainctl integrations test
	domainctl version
`)
}

func printVersion() {
	fmt.Println(strings.TrimSpace(buildVersion))
}
