package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"voicechat/backend/internal/client"
	"voicechat/backend/internal/config"
	"voicechat/backend/internal/localization"
	"voicechat/backend/internal/logging"
	"voicechat/backend/internal/models"
	"voicechat/backend/internal/rtc"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

const (
	serverKey    = "server"
	tokenKey     = "token"
	devTokenKey  = "dev-token"
	countryKey   = "country"
	interestsKey = "interests"
	preferKey    = "prefer"
	avoidKey     = "avoid"
	autoKey      = "auto"
	langKey      = "lang"
	stunKey      = "stun"
	logLevelKey  = "log-level"
)

var rootCmd = &cobra.Command{
	Use:   "caller",
	Short: "Headless voice chat client",
	Long: `caller connects to a voicechat gateway, joins the queue and holds calls
with a silent microphone. Type commands on stdin:

  call [interests...]
           join the queue, optionally overriding the configured interests
  hangup   cancel the search or end the call
  mute     toggle the microphone
  auto on|off
  quit`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context())
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.voicechat.yaml)")
	flags.String(serverKey, "ws://localhost:3001/ws", "gateway WebSocket URL")
	flags.String(tokenKey, "", "session token")
	flags.Bool(devTokenKey, false, "fetch a development token from the gateway's /dev/token")
	flags.String(countryKey, "", "country claim for development tokens")
	flags.StringSlice(interestsKey, nil, "interests to match on")
	flags.StringSlice(preferKey, nil, "preferred partner countries (max 3)")
	flags.StringSlice(avoidKey, nil, "countries to avoid (max 3)")
	flags.Bool(autoKey, false, "redial automatically after a call ends")
	flags.String(langKey, localization.DefaultLanguage, "message language")
	flags.StringSlice(stunKey, rtc.DefaultICEServers, "STUN server URLs")
	flags.String(logLevelKey, "warn", "log level")

	for _, key := range []string{serverKey, tokenKey, devTokenKey, countryKey, interestsKey, preferKey, avoidKey, autoKey, langKey, stunKey, logLevelKey} {
		viper.BindPFlag(key, flags.Lookup(key))
	}
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if home, err := os.UserHomeDir(); err == nil {
		viper.AddConfigPath(home)
		viper.SetConfigName(".voicechat")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("VOICECHAT")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func run(ctx context.Context) error {
	logging.Init(viper.GetString(logLevelKey), "console")

	token := viper.GetString(tokenKey)
	if viper.GetBool(devTokenKey) {
		var err error
		token, err = fetchDevToken(ctx, viper.GetString(serverKey), viper.GetString(countryKey))
		if err != nil {
			return err
		}
	}

	filters := models.FilterSet{
		Interests:             viper.GetStringSlice(interestsKey),
		PreferredCountries:    viper.GetStringSlice(preferKey),
		NonPreferredCountries: viper.GetStringSlice(avoidKey),
	}.Normalize()

	signaling := client.NewSignalingClient(viper.GetString(serverKey), token)
	signaling.InitialBackoff = config.ReconnectInitialDelay
	signaling.MaxBackoff = config.ReconnectMaxDelay

	session := client.NewCallSession(signaling, rtc.SilenceDevices{}, rtc.NewFactory(viper.GetStringSlice(stunKey)),
		client.WithRedialDelay(config.AutoRedialDelay),
		client.WithSearchTimeout(config.SearchTimeout),
		client.WithMediaTimeout(config.MediaAcquireTimeout),
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	gatewayErr := make(chan error, 1)
	go func() { gatewayErr <- signaling.Run(ctx) }()
	go session.Run(ctx)

	if err := session.SetAutoRedial(ctx, viper.GetBool(autoKey)); err != nil {
		return err
	}

	l := localization.Default()
	lang := viper.GetString(langKey)
	go func() {
		for ev := range session.Events() {
			if line := describe(l, lang, ev); line != "" {
				fmt.Println(line)
			}
		}
	}()

	lines := readLines(ctx, os.Stdin)

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-gatewayErr:
			if errors.Is(err, client.ErrAuthRequired) {
				return errors.New(l.GetString(lang, "failure.auth-required"))
			}
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := handleCommand(ctx, session, filters, line)
			if err != nil {
				fmt.Fprintln(os.Stderr, "error:", err)
			}
			if quit {
				session.EndCall(ctx)
				return nil
			}
		}
	}
}

func handleCommand(ctx context.Context, s *client.CallSession, filters models.FilterSet, line string) (quit bool, err error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}
	switch fields[0] {
	case "call":
		if len(fields) > 1 {
			filters.Interests = fields[1:]
		}
		return false, s.StartCall(ctx, filters.Normalize())
	case "hangup", "cancel":
		return false, s.EndCall(ctx)
	case "mute":
		_, err := s.ToggleMute(ctx)
		return false, err
	case "auto":
		if len(fields) != 2 || (fields[1] != "on" && fields[1] != "off") {
			return false, errors.New("usage: auto on|off")
		}
		return false, s.SetAutoRedial(ctx, fields[1] == "on")
	case "state":
		st, err := s.State(ctx)
		if err == nil {
			fmt.Println(st)
		}
		return false, err
	case "quit", "exit":
		return true, nil
	}
	return false, fmt.Errorf("unknown command %q", fields[0])
}

// readLines streams trimmed lines from r until r ends or ctx is done. The
// channel is closed either way.
func readLines(ctx context.Context, r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lines <- strings.TrimSpace(scanner.Text()):
			case <-ctx.Done():
				return
			}
		}
	}()
	return lines
}

// fetchDevToken asks the gateway for a development session token.
func fetchDevToken(ctx context.Context, wsURL, country string) (string, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "wss":
		u.Scheme = "https"
	default:
		u.Scheme = "http"
	}
	u.Path = strings.TrimSuffix(u.Path, "/ws") + "/dev/token"
	q := url.Values{}
	if country != "" {
		q.Set("country", country)
	}
	u.RawQuery = q.Encode()

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch dev token: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch dev token: %s", resp.Status)
	}

	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode dev token: %w", err)
	}
	log.Debug().Str("module", "caller").Msg("dev token issued")
	return body.Token, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
