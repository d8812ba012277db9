package builtin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/bbcli/bb/pkg/api"
	"github.com/bbcli/bb/pkg/auth"
	"github.com/bbcli/bb/pkg/auth/storage"
	"github.com/bbcli/bb/pkg/cli/interactive"
	"github.com/bbcli/bb/pkg/config"
	"github.com/bbcli/bb/pkg/progress"
	"github.com/bbcli/bb/pkg/secrets"
	"github.com/pterm/pterm"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// AuthOptions configures the auth command behavior.
type AuthOptions struct {
	ConfigStore *config.Store
	Settings    *config.Settings
	Credentials storage.CredentialStore
	Prompter    *interactive.Prompter
	Output      io.Writer

	// OAuth overrides the OAuth configuration derived from Settings.
	OAuth *auth.OAuthConfig
	// ClientOptions are passed to every API client the commands create.
	ClientOptions []api.Option
	// Progress configures the spinner shown while validating credentials.
	Progress *progress.Config
}

// NewAuthCommand creates the auth command group.
func NewAuthCommand(opts *AuthOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage authentication",
		Long: `Manage Bitbucket credentials.

Available subcommands:
  login   - Log in to Bitbucket Cloud or a Bitbucket Server/DC host
  logout  - Log out and remove stored credentials
  status  - Show authentication status for every configured host
  refresh - Refresh the Bitbucket Cloud OAuth token
  token   - Print the stored token for a host
  switch  - Set or list the default profile`,
	}

	cmd.AddCommand(newAuthLoginCommand(opts))
	cmd.AddCommand(newAuthLogoutCommand(opts))
	cmd.AddCommand(newAuthStatusCommand(opts))
	cmd.AddCommand(newAuthRefreshCommand(opts))
	cmd.AddCommand(newAuthTokenCommand(opts))
	cmd.AddCommand(newAuthSwitchCommand(opts))

	return cmd
}

type loginOptions struct {
	host        string
	server      bool
	withToken   bool
	appPassword bool
	username    string
	scopes      []string
	profile     string
	makeDefault bool
}

func newAuthLoginCommand(opts *AuthOptions) *cobra.Command {
	lo := &loginOptions{}

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in to a Bitbucket host",
		Long: `Log in to Bitbucket and store the credential in the system keyring.

Bitbucket Cloud logins use OAuth in the browser by default. Use --with-token to
read an access token from stdin, or --app-password to log in with a username
and app password.

Bitbucket Server/DC logins use a personal access token, read from stdin with
--with-token or prompted for without echo.`,
		Example: `  bb auth login
  bb auth login --app-password --username alice
  echo "$TOKEN" | bb auth login --host git.example.com --with-token`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuthLogin(cmd.Context(), opts, lo)
		},
	}

	lo.addFlags(cmd.Flags())
	cmd.MarkFlagsMutuallyExclusive("app-password", "scopes")

	return cmd
}

func (lo *loginOptions) addFlags(fs *pflag.FlagSet) {
	fs.StringVar(&lo.host, "host", "", "Host to log in to (default bitbucket.org)")
	fs.BoolVar(&lo.server, "server", false, "Log in to a Bitbucket Server/DC host (requires --host)")
	fs.BoolVar(&lo.withToken, "with-token", false, "Read the token or password from stdin")
	fs.BoolVar(&lo.appPassword, "app-password", false, "Log in to Bitbucket Cloud with an app password")
	fs.StringVarP(&lo.username, "username", "u", "", "Username for app password logins")
	fs.StringSliceVar(&lo.scopes, "scopes", nil, "OAuth scopes to request")
	fs.StringVar(&lo.profile, "profile", "", "Profile name to record (default: the host)")
	fs.BoolVar(&lo.makeDefault, "default", false, "Make the profile the default")
}

func runAuthLogin(ctx context.Context, opts *AuthOptions, lo *loginOptions) error {
	ctx = orBackground(ctx)

	host := config.NormalizeHost(lo.host)
	if host == "" {
		if lo.server {
			return fmt.Errorf("--server requires --host")
		}
		host = config.CloudHost
	}
	cloud := config.IsCloudHost(host)
	if lo.server && cloud {
		return fmt.Errorf("%s is Bitbucket Cloud; omit --server", host)
	}
	if cloud {
		host = config.CloudHost
	}
	if !cloud && lo.appPassword {
		return fmt.Errorf("app passwords are only supported on Bitbucket Cloud")
	}

	var (
		cred     *auth.Credential
		username string
		err      error
	)
	if cloud {
		cred, username, err = loginCloud(ctx, opts, lo)
	} else {
		cred, username, err = loginServer(ctx, opts, lo, host)
	}
	if err != nil {
		return err
	}

	value, err := cred.Marshal()
	if err != nil {
		return err
	}
	if err := opts.Credentials.Store(ctx, config.HostKey(host), value); err != nil {
		return fmt.Errorf("failed to store credentials: %w", err)
	}

	if err := recordLogin(opts, lo, host, username, cred.Kind); err != nil {
		return err
	}

	who := username
	if who == "" {
		who = "unknown user"
	}
	pterm.Success.WithWriter(opts.Output).Printf("Logged in to %s as %s\n", host, who)
	return nil
}

func loginCloud(ctx context.Context, opts *AuthOptions, lo *loginOptions) (*auth.Credential, string, error) {
	var cred *auth.Credential

	switch {
	case lo.appPassword:
		username := lo.username
		if username == "" {
			var err error
			username, err = opts.Prompter.Text(&interactive.TextPromptOptions{Message: "Username", Required: true})
			if err != nil {
				return nil, "", err
			}
		}
		password, err := readSecret(opts, lo.withToken, "App password")
		if err != nil {
			return nil, "", err
		}
		cred = auth.NewAppPassword(username, password)

	case lo.withToken:
		token, err := readSecret(opts, true, "Access token")
		if err != nil {
			return nil, "", err
		}
		cred = auth.NewPersonalAccessToken(token)

	default:
		cfg := opts.oauthConfig()
		if len(lo.scopes) > 0 {
			cfg.Scopes = lo.scopes
		}
		flow := auth.NewOAuthFlow(cfg)
		resp, err := flow.Login(ctx)
		if err != nil {
			return nil, "", fmt.Errorf("authentication failed: %w", err)
		}
		cred = resp.Credential(time.Now())
	}

	if err := cred.Validate(); err != nil {
		return nil, "", err
	}

	client := api.NewCloud(opts.clientOptions(cred)...)
	if err := opts.validate(ctx, client); err != nil {
		return nil, "", err
	}

	username := client.CurrentUsername(ctx)
	if username == "" {
		username = fallbackUsername(cred)
	}
	return cred, username, nil
}

// fallbackUsername names the account when the API did not: the app password
// user, or the username claim of a bearer token that is a JWT.
func fallbackUsername(cred *auth.Credential) string {
	switch cred.Kind {
	case auth.KindAppPassword:
		return cred.Username
	case auth.KindOAuth, auth.KindPAT:
		username, err := auth.ExtractUsername(cred.Secret())
		if err != nil {
			log.Debugf("no username in token: %v", err)
			return ""
		}
		return username
	}
	return ""
}

func loginServer(ctx context.Context, opts *AuthOptions, lo *loginOptions, host string) (*auth.Credential, string, error) {
	token, err := readSecret(opts, lo.withToken, "Personal access token")
	if err != nil {
		return nil, "", err
	}
	cred := auth.NewPersonalAccessToken(token)

	client := api.NewServer(host, opts.clientOptions(cred)...)
	if err := opts.validate(ctx, client); err != nil {
		return nil, "", err
	}

	username := client.CurrentUsername(ctx)
	if username == "" {
		username = lo.username
	}
	return cred, username, nil
}

// readSecret reads a token from stdin when fromInput is set, otherwise it
// prompts without echo.
func readSecret(opts *AuthOptions, fromInput bool, label string) (string, error) {
	var (
		secret string
		err    error
	)
	if fromInput {
		secret, err = opts.Prompter.ReadAll()
	} else {
		secret, err = opts.Prompter.Secret(label)
	}
	if err != nil {
		return "", err
	}
	if !auth.ValidateTokenFormat(secret) {
		return "", fmt.Errorf("invalid %s: must be non-empty and contain no whitespace", strings.ToLower(label))
	}
	return secret, nil
}

func recordLogin(opts *AuthOptions, lo *loginOptions, host, username string, kind auth.Kind) error {
	cfg, err := opts.ConfigStore.Load()
	if err != nil {
		return err
	}

	hc, ok := cfg.HostConfig(host)
	if !ok {
		hc = config.HostConfig{APIVersion: config.ServerAPIVersion}
		if config.IsCloudHost(host) {
			hc = config.CloudHostConfig()
		}
	}
	hc.Host = host
	if username != "" {
		hc.User = username
	}
	cfg.SetHost(hc)

	name := lo.profile
	if name == "" {
		name = config.HostKey(host)
	}

	profiles := cfg.ProfileManager()
	profiles.Add(auth.Profile{
		Name:           name,
		Host:           host,
		Username:       username,
		CredentialKind: kind,
		IsDefault:      lo.makeDefault || profiles.DefaultName() == "" || profiles.DefaultName() == name,
	})
	cfg.SetProfiles(profiles)

	return opts.ConfigStore.Save(cfg)
}

func newAuthLogoutCommand(opts *AuthOptions) *cobra.Command {
	var (
		host string
		all  bool
	)

	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Log out and remove credentials",
		Long:  "Remove the stored credential, host entry and profiles for a host.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuthLogout(cmd.Context(), opts, host, all)
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "Host to log out of (default: the default profile's host)")
	cmd.Flags().BoolVar(&all, "all", false, "Log out of every configured host")
	cmd.MarkFlagsMutuallyExclusive("host", "all")
	_ = cmd.RegisterFlagCompletionFunc("host", HostCompletion(opts.ConfigStore))

	return cmd
}

func runAuthLogout(ctx context.Context, opts *AuthOptions, host string, all bool) error {
	ctx = orBackground(ctx)

	cfg, err := opts.ConfigStore.Load()
	if err != nil {
		return err
	}

	var hosts []string
	if all {
		hosts = cfg.HostKeys()
	} else {
		hosts = []string{config.HostKey(resolveHost(cfg, host))}
	}

	removed := 0
	for _, h := range hosts {
		_, found, err := opts.Credentials.Get(ctx, h)
		if err != nil {
			log.Debugf("failed to read credential for %s: %v", h, err)
		}
		if err := opts.Credentials.Delete(ctx, h); err != nil {
			pterm.Warning.WithWriter(opts.Output).Printf("failed to remove credential for %s: %v\n", h, err)
			continue
		}
		if cfg.RemoveHost(h) || found {
			pterm.Success.WithWriter(opts.Output).Printf("Logged out of %s\n", h)
			removed++
		}
	}

	if removed == 0 {
		_, _ = fmt.Fprintln(opts.Output, "No credentials found")
		return nil
	}

	return opts.ConfigStore.Save(cfg)
}

func newAuthStatusCommand(opts *AuthOptions) *cobra.Command {
	var showToken bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show authentication status",
		Long: `Display the authentication status of every configured host.

Each stored credential is checked against its host. A credential the host
rejects is reported as invalid; one that could not be checked is reported as
unknown.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuthStatus(cmd.Context(), opts, showToken)
		},
	}

	cmd.Flags().BoolVarP(&showToken, "show-token", "t", false, "Display the full token")

	return cmd
}

func runAuthStatus(ctx context.Context, opts *AuthOptions, showToken bool) error {
	ctx = orBackground(ctx)
	out := opts.Output

	cfg, err := opts.ConfigStore.Load()
	if err != nil {
		return err
	}

	hosts := cfg.HostKeys()
	if len(hosts) == 0 {
		return &api.Error{
			Kind:    api.KindAuthRequired,
			Message: "not logged in to any hosts",
			Hint:    "Run: bb auth login",
		}
	}

	defaultHost := ""
	if p, ok := cfg.ProfileManager().DefaultProfile(); ok {
		defaultHost = config.HostKey(p.Host)
	}

	for _, key := range hosts {
		hc := cfg.Hosts[key]

		header := key
		if key == defaultHost {
			header += " (default)"
		}
		_, _ = fmt.Fprintln(out, pterm.Bold.Sprint(header))

		value, found, err := opts.Credentials.Get(ctx, key)
		if err != nil || !found {
			pterm.Error.WithWriter(out).Println("No credential stored")
			continue
		}
		cred, err := auth.ParseCredential(value)
		if err != nil {
			pterm.Error.WithWriter(out).Printf("Stored credential is unreadable: %v\n", err)
			continue
		}

		client := api.NewFromConfig(hc, opts.clientOptions(cred)...)
		valid, err := client.Validate(ctx)

		switch {
		case err != nil:
			log.Debugf("could not check credential for %s: %v", key, err)
			pterm.Warning.WithWriter(out).Println("Status: Unknown (could not reach host)")
		case valid:
			pterm.Success.WithWriter(out).Println("Status: Active")
		default:
			pterm.Error.WithWriter(out).Println("Status: Invalid")
		}

		if hc.User != "" {
			_, _ = fmt.Fprintf(out, "  User: %s\n", hc.User)
		}
		_, _ = fmt.Fprintf(out, "  Auth: %s\n", cred.Kind)

		token := cred.Secret()
		if !showToken {
			token = secrets.MaskValue(token, nil)
		}
		_, _ = fmt.Fprintf(out, "  Token: %s\n", token)

		if expiresAt, ok := auth.DisplayExpiry(cred); ok {
			remaining := time.Until(expiresAt)
			if remaining > 0 {
				_, _ = fmt.Fprintf(out, "  Expires: %s (in %s)\n", expiresAt.Format(time.RFC3339), formatDuration(remaining))
			} else {
				_, _ = fmt.Fprintf(out, "  Expires: %s (expired)\n", expiresAt.Format(time.RFC3339))
			}
		}
	}

	return nil
}

func newAuthRefreshCommand(opts *AuthOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Refresh authentication tokens",
		Long:  "Exchange the stored Bitbucket Cloud refresh token for a new access token.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuthRefresh(cmd.Context(), opts)
		},
	}
}

func runAuthRefresh(ctx context.Context, opts *AuthOptions) error {
	ctx = orBackground(ctx)
	host := config.CloudHost

	cred, err := loadCredential(ctx, opts, host)
	if err != nil {
		return err
	}
	if !cred.CanRefresh() {
		return fmt.Errorf("the credential for %s cannot be refreshed; run: bb auth login", host)
	}

	flow := auth.NewOAuthFlow(opts.oauthConfig())
	resp, err := flow.Refresh(ctx, cred.RefreshToken)
	if err != nil {
		var exErr *auth.ExchangeError
		if errors.As(err, &exErr) && exErr.Status >= 400 && exErr.Status < 500 {
			return &api.Error{
				Kind:    api.KindAuthFailed,
				Status:  exErr.Status,
				Message: "refresh token was rejected",
				Body:    exErr.Body,
				Hint:    "Run: bb auth login",
				Cause:   err,
			}
		}
		return err
	}

	refreshed := resp.Credential(time.Now())
	value, err := refreshed.Marshal()
	if err != nil {
		return err
	}
	if err := opts.Credentials.Store(ctx, host, value); err != nil {
		return fmt.Errorf("failed to store credentials: %w", err)
	}

	msg := fmt.Sprintf("Refreshed token for %s", host)
	if !refreshed.ExpiresAt.IsZero() {
		msg += fmt.Sprintf(", expires %s", refreshed.ExpiresAt.Format(time.RFC3339))
	}
	pterm.Success.WithWriter(opts.Output).Println(msg)
	return nil
}

func newAuthTokenCommand(opts *AuthOptions) *cobra.Command {
	var host string

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print the stored token",
		Long:  "Print the stored token or password for a host, for use in scripts.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuthToken(cmd.Context(), opts, host)
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "Host to print the token for (default: the default profile's host)")
	_ = cmd.RegisterFlagCompletionFunc("host", HostCompletion(opts.ConfigStore))

	return cmd
}

func runAuthToken(ctx context.Context, opts *AuthOptions, host string) error {
	ctx = orBackground(ctx)

	cfg, err := opts.ConfigStore.Load()
	if err != nil {
		return err
	}

	cred, err := loadCredential(ctx, opts, resolveHost(cfg, host))
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintln(opts.Output, cred.Secret())
	return nil
}

func newAuthSwitchCommand(opts *AuthOptions) *cobra.Command {
	var profile string

	cmd := &cobra.Command{
		Use:               "switch [profile]",
		Short:             "Set or list the default profile",
		Args:              cobra.MaximumNArgs(1),
		ValidArgsFunction: ProfileCompletion(opts.ConfigStore),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				profile = args[0]
			}
			return runAuthSwitch(opts, profile)
		},
	}

	cmd.Flags().StringVar(&profile, "profile", "", "Profile to make the default")
	_ = cmd.RegisterFlagCompletionFunc("profile", ProfileCompletion(opts.ConfigStore))

	return cmd
}

func runAuthSwitch(opts *AuthOptions, name string) error {
	cfg, err := opts.ConfigStore.Load()
	if err != nil {
		return err
	}
	profiles := cfg.ProfileManager()

	if name == "" {
		list := profiles.List()
		if len(list) == 0 {
			_, _ = fmt.Fprintln(opts.Output, "No profiles configured")
			return nil
		}
		for _, p := range list {
			marker := " "
			if p.Name == profiles.DefaultName() {
				marker = "*"
			}
			_, _ = fmt.Fprintf(opts.Output, "%s %s\t%s\t%s\n", marker, p.Name, p.Host, p.CredentialKind)
		}
		return nil
	}

	if !profiles.SetDefault(name) {
		return fmt.Errorf("profile %q not found", name)
	}
	cfg.SetProfiles(profiles)
	if err := opts.ConfigStore.Save(cfg); err != nil {
		return err
	}

	pterm.Success.WithWriter(opts.Output).Printf("Default profile is now %s\n", name)
	return nil
}

// resolveHost returns the normalized flag value, the default profile's host or
// Bitbucket Cloud, in that order.
func resolveHost(cfg *config.Config, flag string) string {
	if h := config.NormalizeHost(flag); h != "" {
		return h
	}
	if p, ok := cfg.ProfileManager().DefaultProfile(); ok && p.Host != "" {
		return p.Host
	}
	return config.CloudHost
}

func loadCredential(ctx context.Context, opts *AuthOptions, host string) (*auth.Credential, error) {
	key := config.HostKey(host)
	value, found, err := opts.Credentials.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials: %w", err)
	}
	if !found {
		return nil, api.ErrAuthRequired(key)
	}
	return auth.ParseCredential(value)
}

func (opts *AuthOptions) oauthConfig() auth.OAuthConfig {
	var cfg auth.OAuthConfig
	switch {
	case opts.OAuth != nil:
		cfg = *opts.OAuth
	case opts.Settings != nil:
		cfg = opts.Settings.OAuthConfig()
	default:
		cfg = auth.DefaultOAuthConfig()
	}
	if cfg.Output == nil {
		cfg.Output = opts.Output
	}
	return cfg
}

func (opts *AuthOptions) clientOptions(cred *auth.Credential) []api.Option {
	o := append([]api.Option{}, opts.ClientOptions...)
	return append(o, api.WithCredential(cred))
}

// validate checks the client's credential behind a spinner. A rejected
// credential and an inconclusive check are both login failures.
func (opts *AuthOptions) validate(ctx context.Context, client *api.Client) error {
	cfg := opts.Progress
	if cfg == nil {
		cfg = progress.DefaultConfig()
	}
	spinner := progress.NewSpinner(cfg)
	_ = spinner.Start("Validating credentials...")

	valid, err := client.Validate(ctx)
	switch {
	case err != nil:
		spinner.Failure("Could not validate credentials")
		return err
	case !valid:
		spinner.Failure("Credentials were rejected")
		return &api.Error{
			Kind:    api.KindAuthFailed,
			Status:  401,
			Message: fmt.Sprintf("credentials rejected by %s", client.Host()),
			Hint:    "Check the token and try again",
		}
	}

	spinner.Success("Credentials are valid")
	return nil
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	} else if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	} else if d < 24*time.Hour {
		return fmt.Sprintf("%dh", int(d.Hours()))
	}
	return fmt.Sprintf("%dd", int(d.Hours()/24))
}

func orBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

// NewDefaultAuthOptions wires the auth commands to the user's config file,
// environment settings and the configured credential store.
func NewDefaultAuthOptions() (*AuthOptions, error) {
	settings, err := config.LoadSettings()
	if err != nil {
		return nil, err
	}

	store, err := storage.New(settings.StorageConfig())
	if err != nil {
		return nil, err
	}

	return &AuthOptions{
		ConfigStore: config.NewStore(""),
		Settings:    settings,
		Credentials: store,
		Prompter:    interactive.NewPrompter(nil),
		Output:      os.Stdout,
	}, nil
}
