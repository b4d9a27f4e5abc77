package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"bankpay/internal/apiclient"
	"bankpay/internal/cache"
	"bankpay/internal/config"
	"bankpay/internal/feed"
	"bankpay/internal/payment"
	"bankpay/internal/qrcode"
	"bankpay/internal/recipient"
	"bankpay/internal/scan"
	"bankpay/internal/session"
)

const usageText = `Usage: bankpay [-config path] <command> [arguments]

Commands:
  register <username> <password> [image]   create an account
  login <username> <password>              sign in and store the token
  logout                                   drop the stored token
  me                                       show own profile and balance
  users [query]                            list (or search) the directory
  send <username> <amount>                 transfer money by username
  deposit <amount>                         add money to own balance
  history                                  show the classified feed
  qr                                       print own payment QR payload
  scan <payload>                           start a transfer from a QR payload
`

func main() {
	_ = godotenv.Load()

	cfg := config.MustLoad()
	log := setupLogger(cfg.Env)

	args := flag.Args()
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usageText)
		os.Exit(2)
	}

	app, err := newApp(cfg, log)
	if err != nil {
		log.Error("Failed to initialize", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := app.run(ctx, args[0], args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

type app struct {
	sess   *session.Session
	client *apiclient.Client
	store  *cache.Store
	flow   *payment.Controller
	log    *slog.Logger
}

func newApp(cfg *config.Config, log *slog.Logger) (*app, error) {
	tokenPath := cfg.Client.TokenPath
	if tokenPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		tokenPath = filepath.Join(home, ".bankpay", "token")
	}

	sess, err := session.Load(session.NewFileStore(tokenPath))
	if err != nil {
		return nil, err
	}
	if sess.Authed() && sess.Expired() {
		log.Info("Stored token expired, logging out")
		if err := sess.Logout(); err != nil {
			return nil, err
		}
	}

	client := apiclient.New(cfg.Client.BaseURL, sess, log)
	store := cache.NewStore(client, log)
	flow := payment.NewController(client, store, log)

	return &app{sess: sess, client: client, store: store, flow: flow, log: log}, nil
}

func (a *app) run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "register":
		if len(args) < 2 {
			return errors.New("usage: register <username> <password> [image]")
		}
		image := ""
		if len(args) > 2 {
			image = args[2]
		}
		if err := a.client.Register(ctx, args[0], args[1], image); err != nil {
			return err
		}
		fmt.Println("Registered. Now run: bankpay login", args[0], "<password>")
		return nil

	case "login":
		if len(args) != 2 {
			return errors.New("usage: login <username> <password>")
		}
		if err := a.client.Login(ctx, args[0], args[1]); err != nil {
			return err
		}
		fmt.Println("Logged in as", a.sess.Username())
		return nil

	case "logout":
		return a.sess.Logout()

	case "me":
		me, err := a.store.Me(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("%s\nBalance: %s\n", me.Username, formatAmount(me.Balance.StringFixed(2)))
		return nil

	case "users":
		users, err := a.store.Users(ctx)
		if err != nil {
			return err
		}
		if len(args) > 0 {
			users = recipient.Filter(args[0], users)
		}
		for _, u := range users {
			fmt.Println(u.Username)
		}
		return nil

	case "send":
		if len(args) != 2 {
			return errors.New("usage: send <username> <amount>")
		}
		users, err := a.store.Users(ctx)
		if err != nil {
			return err
		}
		cand, err := recipient.ResolveByUsername(args[0], users)
		if err != nil {
			return errors.New("User not found")
		}
		return a.submit(ctx, cand, args[1])

	case "deposit":
		if len(args) != 1 {
			return errors.New("usage: deposit <amount>")
		}
		return a.submit(ctx, nil, args[0])

	case "history":
		me, err := a.store.Me(ctx)
		if err != nil {
			return err
		}
		txs, err := a.store.Transactions(ctx)
		if err != nil {
			return err
		}
		feed.Sort(txs)
		for _, tx := range txs {
			e := feed.Classify(tx, me.Username)
			when := ""
			if tx.CreatedAt != nil {
				when = tx.CreatedAt.Format("Jan 2, 2006")
			}
			fmt.Printf("%-11s %-20s %10s  %s\n",
				e.Category, e.Counterpart, formatAmount(e.Amount.StringFixed(2)), when)
		}
		return nil

	case "qr":
		me, err := a.store.Me(ctx)
		if err != nil {
			return err
		}
		fmt.Println(qrcode.Encode(me.Username, me.ID))
		return nil

	case "scan":
		if len(args) != 1 {
			return errors.New("usage: scan <payload>")
		}
		var cand *recipient.Candidate
		var resolveErr error
		gate := scan.NewGate(func(raw string) {
			cand, resolveErr = recipient.ResolveFromQR(raw)
		})
		gate.Deliver(args[0])
		if resolveErr != nil {
			return errors.New("This QR code is not a valid payment code")
		}

		fmt.Printf("Send money to %s. Amount: ", cand.Username)
		var amount string
		if _, err := fmt.Scanln(&amount); err != nil {
			return err
		}
		return a.submit(ctx, cand, amount)

	default:
		fmt.Fprint(os.Stderr, usageText)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// submit drives the payment flow end to end: open, enter amount, confirm,
// await settlement.
func (a *app) submit(ctx context.Context, cand *recipient.Candidate, amount string) error {
	var err error
	if cand != nil {
		err = a.flow.ChooseRecipient(cand)
	} else {
		err = a.flow.BeginDeposit()
	}
	if err != nil {
		return err
	}

	a.flow.SetAmount(strings.TrimSpace(amount))
	done, err := a.flow.Confirm(ctx)
	if err != nil {
		_ = a.flow.Cancel()
		return err
	}

	s := <-done
	if !s.OK {
		return errors.New(s.Message)
	}
	if cand != nil {
		fmt.Println("Money sent successfully")
	} else {
		fmt.Println("Money deposited successfully")
	}

	me, err := a.store.Me(ctx)
	if err == nil {
		fmt.Println("New balance:", formatAmount(me.Balance.StringFixed(2)))
	}
	return nil
}

// formatAmount renders a fixed-point amount as en-US currency, e.g. $1,234.50.
func formatAmount(fixed string) string {
	neg := strings.HasPrefix(fixed, "-")
	fixed = strings.TrimPrefix(fixed, "-")

	intPart, frac, _ := strings.Cut(fixed, ".")
	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	out := "$" + b.String() + "." + frac
	if neg {
		out = "-" + out
	}
	return out
}

func setupLogger(env string) *slog.Logger {
	var handler slog.Handler
	switch env {
	case "dev":
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})
	case "prod":
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})
	default:
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})
	}
	return slog.New(handler)
}
