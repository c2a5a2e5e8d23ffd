package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/visanavi/vnavi/internal/askapi"
	"github.com/visanavi/vnavi/internal/config"
	"github.com/visanavi/vnavi/internal/history"
)

// --- ask ---

var askCmd = &cobra.Command{
	Use:   "ask [question...]",
	Short: "Ask a question through the membership gate",
	Long: `Ask a question through the membership gate.

With no arguments, starts an interactive loop reading questions from stdin.

Examples:
  vnavi ask 在留資格の更新に必要な書類は？
  vnavi ask --lang EN "How do I renew my visa?"
  vnavi ask --return-url "https://visanavi.example.com/?session_id=cs_test_123"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		lang, _ := cmd.Flags().GetString("lang")
		returnURL, _ := cmd.Flags().GetString("return-url")

		app, err := newApp(true)
		if err != nil {
			return err
		}
		defer app.Close()
		lang = app.askLang(lang)

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		// Absorb a pasted payment-return URL before anything else, the way
		// the page handles a redirect back from checkout on load.
		if returnURL != "" {
			u, err := url.Parse(returnURL)
			if err != nil {
				return fmt.Errorf("parsing return URL: %w", err)
			}
			cleaned := app.payment.VerifyOnReturn(ctx, u)
			if cleaned != nil && cleaned.String() != u.String() {
				printStatus("URL", "%s", cleaned.String())
			}
		}

		if !app.ctrl.WaitReady(ctx) {
			printError("backend is not responding at %s", app.base)
			return fmt.Errorf("backend not ready")
		}

		if len(args) > 0 {
			return app.ctrl.Submit(ctx, strings.Join(args, " "), lang)
		}

		// Interactive loop. An empty line or EOF ends the session.
		scanner := bufio.NewScanner(os.Stdin)
		for {
			printStep("質問を入力してください (空行で終了):")
			if !scanner.Scan() {
				break
			}
			question := strings.TrimSpace(scanner.Text())
			if question == "" {
				break
			}
			if err := app.ctrl.Submit(ctx, question, lang); err != nil {
				return err
			}
		}
		return scanner.Err()
	},
}

func init() {
	askCmd.Flags().String("lang", "", "answer language code (default from config)")
	askCmd.Flags().String("return-url", "", "payment return URL to verify before asking")
}

// --- ping ---

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Probe the backend health endpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp(false)
		if err != nil {
			return err
		}
		defer app.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		ok, err := app.client.Ping(ctx)
		if err != nil {
			printError("backend unreachable: %v", err)
			return fmt.Errorf("ping failed")
		}
		if !ok {
			printError("backend responded but reported not ok")
			return fmt.Errorf("ping failed")
		}
		printSuccess("backend is up")
		return nil
	},
}

// --- verify ---

var verifyCmd = &cobra.Command{
	Use:   "verify <return-url>",
	Short: "Verify a payment return URL and persist membership",
	Long: `Verify a payment return URL and persist membership.

Paste the address the payment provider redirected to after checkout. On a
successful verification the email and membership verdict are saved, and the
cleaned URL (without session_id and email parameters) is printed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp(false)
		if err != nil {
			return err
		}
		defer app.Close()

		u, err := url.Parse(args[0])
		if err != nil {
			return fmt.Errorf("parsing return URL: %w", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		cleaned := app.payment.VerifyOnReturn(ctx, u)
		if cleaned != nil {
			fmt.Println(cleaned.String())
		}
		return nil
	},
}

// --- status ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show client and membership status",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp(false)
		if err != nil {
			return err
		}
		defer app.Close()

		printStatus("Mode", "%s", app.mode)
		printStatus("Site", "%s", app.cfg.Site.URL)
		if app.mode.IsDev() {
			printStatus("Dev base", "%s", app.cfg.API.DevBaseURL)
		}

		email := app.store.SavedEmail(nil)
		if email != "" {
			printStatus("Email", "%s", email)
		} else {
			printStatus("Email", "not saved")
		}

		if c := app.store.ReadMemberCache(); c != nil {
			state := "active"
			if !c.OK {
				state = "inactive"
				if c.Reason != "" {
					state = fmt.Sprintf("inactive (%s)", c.Reason)
				}
			}
			if c.Expired(time.Now()) {
				state += ", cache expired"
			}
			printStatus("Member cache", "%s", state)
		} else {
			printStatus("Member cache", "empty")
		}

		// Probe the backend and the membership endpoint concurrently.
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		var pingOK bool
		var pingErr error
		var memberStatus *askapi.MemberStatus

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			pingOK, pingErr = app.client.Ping(gctx)
			return nil
		})
		if email != "" {
			g.Go(func() error {
				st, err := app.gate.CheckMember(gctx, email)
				if err == nil {
					memberStatus = &st
				}
				return nil
			})
		}
		_ = g.Wait()

		switch {
		case pingErr != nil:
			printStatus("Backend", "unreachable (%v)", pingErr)
		case pingOK:
			printStatus("Backend", "up")
		default:
			printStatus("Backend", "responding but not ok")
		}

		if memberStatus != nil {
			if memberStatus.OK {
				printStatus("Membership", "active")
			} else if memberStatus.Reason != "" {
				printStatus("Membership", "inactive (%s)", memberStatus.Reason)
			} else {
				printStatus("Membership", "inactive")
			}
		}

		printStatus("Data dir", "%s", app.cfg.Storage.DataDir)
		return nil
	},
}

// --- reset ---

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear saved email, cookies, and the membership cache",
	RunE: func(cmd *cobra.Command, args []string) error {
		confirm, _ := cmd.Flags().GetBool("confirm")
		if !confirm {
			printWarning("This will clear the saved email and membership state. Use --confirm to proceed.")
			return nil
		}

		app, err := newApp(false)
		if err != nil {
			return err
		}
		defer app.Close()

		if err := app.store.Reset(); err != nil {
			return fmt.Errorf("resetting session state: %w", err)
		}
		printSuccess("Session state cleared")
		return nil
	},
}

func init() {
	resetCmd.Flags().Bool("confirm", false, "confirm the reset")
}

// --- history ---

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect the local interaction log",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent interactions",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		app, err := newApp(true)
		if err != nil {
			return err
		}
		defer app.Close()

		interactions, err := app.hist.List(limit)
		if err != nil {
			return err
		}
		if len(interactions) == 0 {
			fmt.Println("No interactions found.")
			return nil
		}

		for _, ix := range interactions {
			question := ix.Question
			if len(question) > 80 {
				question = question[:80] + "..."
			}
			fmt.Printf("%s  %s  [%s]  %s\n",
				colorize(colorCyan, ix.ID[:8]),
				ix.CreatedAt.Format(time.RFC3339),
				ix.Status,
				question,
			)
		}
		return nil
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a single interaction as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp(true)
		if err != nil {
			return err
		}
		defer app.Close()

		ix, err := app.hist.Get(args[0])
		if err != nil {
			if err == history.ErrNotFound {
				return fmt.Errorf("no interaction with id %q", args[0])
			}
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(ix)
	},
}

var historyPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete all recorded interactions",
	RunE: func(cmd *cobra.Command, args []string) error {
		confirm, _ := cmd.Flags().GetBool("confirm")
		if !confirm {
			printWarning("This will delete ALL recorded interactions. Use --confirm to proceed.")
			return nil
		}

		app, err := newApp(true)
		if err != nil {
			return err
		}
		defer app.Close()

		if err := app.hist.Purge(); err != nil {
			return err
		}
		printSuccess("History purged")
		return nil
	},
}

func init() {
	historyListCmd.Flags().Int("limit", 20, "maximum number of interactions to list")
	historyPurgeCmd.Flags().Bool("confirm", false, "confirm the purge")
	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyPurgeCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
