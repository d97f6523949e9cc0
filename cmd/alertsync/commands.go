package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nhle/commodity-alerts/internal/credential"
	"github.com/nhle/commodity-alerts/internal/model"
	"github.com/nhle/commodity-alerts/internal/reconcile"
	"github.com/nhle/commodity-alerts/internal/sync"
)

// syncCmd polls the backend until interrupted.
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Poll the backend and print every update until interrupted",
	Args:  cobra.NoArgs,
	RunE:  runSync,
}

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Run a single refresh cycle and print the result",
	Args:  cobra.NoArgs,
	RunE:  runRefresh,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached notifications without contacting the backend",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "List market alerts",
	Args:  cobra.NoArgs,
	RunE:  runAlerts,
}

var readCmd = &cobra.Command{
	Use:   "read [id]",
	Short: "Mark a notification as read",
	Args:  cobra.ExactArgs(1),
	RunE:  runRead,
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all cached notifications",
	Args:  cobra.NoArgs,
	RunE:  runClear,
}

var prefsCmd = &cobra.Command{
	Use:   "prefs",
	Short: "Show or change alert preferences",
}

var prefsGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Show alert preferences",
	Args:  cobra.NoArgs,
	RunE:  runPrefsGet,
}

var prefsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Change alert preferences",
	Long: `Updates the alert preferences on the backend. Only flags that are given
change; everything else keeps its current value.

Example:
  alertsync prefs set --commodities XAU,WTI --threshold high`,
	Args: cobra.NoArgs,
	RunE: runPrefsSet,
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage the API token in the system keyring",
}

var tokenSetCmd = &cobra.Command{
	Use:   "set [token]",
	Short: "Store the API token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := credential.Set(credential.TokenKey, strings.TrimSpace(args[0])); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Token saved.")
		return nil
	},
}

var tokenDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Remove the stored API token",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := credential.Delete(credential.TokenKey); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Token deleted.")
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the current configuration to the config file",
	Args:  cobra.NoArgs,
	RunE:  runConfigInit,
}

func runSync(cmd *cobra.Command, args []string) error {
	d, err := openDeps()
	if err != nil {
		return err
	}
	defer d.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	c := d.controller(sync.WithObserver(func(snap sync.Snapshot) {
		renderSnapshot(out, snap, false)
		fmt.Fprintln(out)
	}))
	c.Start()
	defer c.Close()

	<-ctx.Done()
	return nil
}

func runRefresh(cmd *cobra.Command, args []string) error {
	d, err := openDeps()
	if err != nil {
		return err
	}
	defer d.Close()

	c := d.controller()
	defer c.Close()

	snap, err := c.RefreshNow(cmd.Context())
	renderSnapshot(cmd.OutOrStdout(), snap, false)
	if errors.Is(err, sync.ErrUnavailable) {
		return errors.New(sync.RetryPrompt)
	}
	return err
}

func runList(cmd *cobra.Command, args []string) error {
	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	list, err := s.LoadNotifications(cmd.Context())
	if err != nil {
		return err
	}
	unreadOnly, _ := cmd.Flags().GetBool("unread")

	state := sync.StateReady
	if len(list) == 0 {
		state = sync.StateEmpty
	}
	renderSnapshot(cmd.OutOrStdout(), sync.Snapshot{
		Notifications: list,
		UnreadCount:   reconcile.UnreadCount(list),
		State:         state,
		Source:        sync.SourceCache,
	}, unreadOnly)
	return nil
}

func runAlerts(cmd *cobra.Command, args []string) error {
	d, err := openDeps()
	if err != nil {
		return err
	}
	defer d.Close()

	ctx := cmd.Context()
	if refresh, _ := cmd.Flags().GetBool("refresh"); refresh {
		alerts, err := d.client.FetchMarketAlerts(ctx, cfg.Sync.AlertLimit)
		if err != nil {
			logger.Warn("fetching market alerts failed, showing cache", zap.Error(err))
		} else if err := d.store.SaveMarketAlerts(ctx, alerts); err != nil {
			logger.Warn("caching market alerts failed", zap.Error(err))
		}
	}

	alerts, err := d.store.LoadMarketAlerts(ctx)
	if err != nil {
		return err
	}
	renderAlerts(cmd.OutOrStdout(), alerts)
	return nil
}

func runRead(cmd *cobra.Command, args []string) error {
	d, err := openDeps()
	if err != nil {
		return err
	}
	defer d.Close()

	c := d.controller()
	defer c.Close()

	id := model.ID(strings.TrimSpace(args[0]))
	if err := c.MarkRead(cmd.Context(), id); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Marked %s as read.\n", id)
	return nil
}

func runClear(cmd *cobra.Command, args []string) error {
	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.ClearNotifications(cmd.Context()); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Notification cache cleared.")
	return nil
}

func runPrefsGet(cmd *cobra.Command, args []string) error {
	d, err := openDeps()
	if err != nil {
		return err
	}
	defer d.Close()

	p, err := d.prefs().Get(cmd.Context())
	if err != nil {
		return err
	}
	renderPreferences(cmd.OutOrStdout(), p)
	return nil
}

func runPrefsSet(cmd *cobra.Command, args []string) error {
	d, err := openDeps()
	if err != nil {
		return err
	}
	defer d.Close()

	svc := d.prefs()
	ctx := cmd.Context()
	p, err := svc.Get(ctx)
	if err != nil {
		return err
	}
	applyPrefsFlags(cmd, &p)

	saved, err := svc.Update(ctx, p)
	if err != nil {
		return err
	}
	renderPreferences(cmd.OutOrStdout(), saved)
	return nil
}

// applyPrefsFlags copies every flag the user set onto p.
func applyPrefsFlags(cmd *cobra.Command, p *model.AlertPreferences) {
	flags := cmd.Flags()
	if flags.Changed("commodities") {
		v, _ := flags.GetStringSlice("commodities")
		p.Commodities = model.NewStringSet(v...)
	}
	if flags.Changed("regions") {
		v, _ := flags.GetStringSlice("regions")
		p.Regions = model.NewStringSet(v...)
	}
	if flags.Changed("currencies") {
		v, _ := flags.GetStringSlice("currencies")
		p.Currencies = model.StringSet(v)
	}
	if flags.Changed("frequency") {
		v, _ := flags.GetString("frequency")
		p.Frequency = model.Frequency(v)
	}
	if flags.Changed("threshold") {
		v, _ := flags.GetString("threshold")
		p.Threshold = model.Severity(v)
	}
	if flags.Changed("push") {
		p.PushEnabled, _ = flags.GetBool("push")
	}
	if flags.Changed("email") {
		p.EmailEnabled, _ = flags.GetBool("email")
	}
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	force, _ := cmd.Flags().GetBool("force")
	if _, err := os.Stat(cfgPath); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", cfgPath)
	}
	if err := model.SaveConfig(cfgPath, cfg); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", cfgPath)
	return nil
}
