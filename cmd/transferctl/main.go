package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joripage/transfer-orders/config"
	"github.com/joripage/transfer-orders/pkg/client"
	"github.com/joripage/transfer-orders/pkg/logging"
	"github.com/joripage/transfer-orders/pkg/model"
	"github.com/joripage/transfer-orders/pkg/txn"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const usage = `usage: transferctl [-config-file path] <command> [args]

commands:
  connect                     connect the wallet and print the state
  view                        print the state
  select <id>                 load one of your orders
  create <receiver> <amount>  create an order paying amount plus the fee
  confirm <id>                confirm an order
  modify <id> <receiver>      change the receiver of an order
  cancel <id>                 cancel an order
  watch                       follow account changes and serve /metrics
`

func main() {
	os.Exit(realMain())
}

func realMain() int {
	var configFile string
	flag.StringVar(&configFile, "config-file", "", "Specify config file path")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		return 2
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		return 1
	}

	logger := logging.NewLogger(logging.ParseLevel(cfg.LogLevel)).Named(cfg.ServiceName)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "start: %v\n", err)
		return 1
	}
	defer a.Close(context.Background())

	if err := run(ctx, a, flag.Arg(0), flag.Args()[1:]); err != nil {
		kind := client.Classify(err)
		logger.Error(ctx, "command fail", zap.String("command", flag.Arg(0)), zap.Stringer("kind", kind), zap.Error(err))
		if reason := client.Reason(err); reason != "" {
			fmt.Fprintf(os.Stderr, "%s error: %s\n", kind, reason)
		} else {
			fmt.Fprintf(os.Stderr, "%s error: %v\n", kind, err)
		}
		return 1
	}
	return 0
}

func run(ctx context.Context, a *app, cmd string, args []string) error {
	c := a.client
	defer printTrace(a.journal)

	if cmd == "watch" {
		return watch(ctx, a)
	}

	if _, err := c.Connect(ctx); err != nil {
		return err
	}

	switch cmd {
	case "connect", "view":
		if err := needArgs(args, 0); err != nil {
			return err
		}
	case "select":
		if err := needArgs(args, 1); err != nil {
			return err
		}
		if err := c.SelectID(ctx, args[0]); err != nil {
			return err
		}
	case "create":
		if err := needArgs(args, 2); err != nil {
			return err
		}
		receiver, err := parseAddress(args[0])
		if err != nil {
			return err
		}
		amount, err := decimal.NewFromString(args[1])
		if err != nil {
			return fmt.Errorf("amount %q: %w", args[1], err)
		}
		receipt, err := c.CreateOrder(ctx, receiver, amount)
		printReceipt(receipt)
		if err != nil {
			return err
		}
	case "confirm", "cancel":
		if err := needArgs(args, 1); err != nil {
			return err
		}
		if err := c.SelectID(ctx, args[0]); err != nil {
			return err
		}
		var receipt model.Receipt
		var err error
		if cmd == "confirm" {
			receipt, err = c.ConfirmCurrentOrder(ctx)
		} else {
			receipt, err = c.CancelCurrentOrder(ctx)
		}
		printReceipt(receipt)
		if err != nil {
			return err
		}
	case "modify":
		if err := needArgs(args, 2); err != nil {
			return err
		}
		receiver, err := parseAddress(args[1])
		if err != nil {
			return err
		}
		if err := c.SelectID(ctx, args[0]); err != nil {
			return err
		}
		receipt, err := c.ModifyCurrentReceiver(ctx, receiver)
		printReceipt(receipt)
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}

	printSnapshot(c.View())
	return nil
}

func printTrace(j *txn.Journal) {
	for _, ev := range j.Outcome() {
		line := fmt.Sprintf("%s %s %s", ev.Time.Format(time.RFC3339), ev.Action, ev.Type)
		if ev.TxHash != "" {
			line += " tx=" + ev.TxHash
		}
		if ev.Stage != "" {
			line += " stage=" + string(ev.Stage)
		}
		fmt.Println(line)
	}
}

// watch keeps the session alive: account changes in the wallet reset and
// reload the state, and every published snapshot is printed.
func watch(ctx context.Context, a *app) error {
	unsubscribe := a.store.Subscribe(printSnapshot)
	defer unsubscribe()

	if _, err := a.client.Connect(ctx); err != nil {
		a.logger.Warn(ctx, "initial connect fail", zap.Error(err))
	}

	watcher, err := a.identity.Watch(ctx, a.provider, a.cfg.Wallet.AccountPollInterval)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	if addr := a.cfg.Metrics.ListenAddr; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		g.Go(func() error {
			a.logger.Info(gctx, "metrics listening", zap.String("addr", addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return watcher.Stop(stopCtx)
	})

	fmt.Println("Watching wallet. Press Ctrl+C to exit.")
	err = g.Wait()
	fmt.Println("Exited cleanly.")
	return err
}

func needArgs(args []string, n int) error {
	if len(args) != n {
		return fmt.Errorf("want %d arguments, got %d", n, len(args))
	}
	return nil
}

func parseAddress(raw string) (common.Address, error) {
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("%q is not an address", raw)
	}
	return common.HexToAddress(raw), nil
}

func printReceipt(r model.Receipt) {
	if r.TxHash == (common.Hash{}) {
		return
	}
	fmt.Printf("tx %s mined in block %v (success=%v)\n", r.TxHash.Hex(), r.BlockNumber, r.Success)
}

func printSnapshot(snap model.Snapshot) {
	out, err := json.MarshalIndent(snap, "", "   ")
	if err != nil {
		zap.S().Warnf("could not convert snapshot to JSON: %v", err)
		return
	}
	fmt.Println(string(out))
}
